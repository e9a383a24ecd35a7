// Package capture reads low-level flux captures from disk: KryoFlux raw
// streams and WAV recordings of a drive's read channel. Every reader
// produces the same Capture: the time between successive flux transitions.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotACapture marks a file that is not a usable flux capture. Callers
// skip such files and carry on with the rest.
var ErrNotACapture = errors.New("not a flux capture")

type Kind string

const (
	KindKryoFlux Kind = "kryoflux"
	KindWAV      Kind = "wav"
)

// Capture is one capture file, fully read into memory.
type Capture struct {
	Path  string
	Kind  Kind
	Flux  []uint32 // ns between transitions
	Index []int    // positions in Flux where an index pulse was seen
}

// Name is the capture's file name, used as reading provenance.
func (c *Capture) Name() string {
	return filepath.Base(c.Path)
}

// Duration is the total captured time in ns.
func (c *Capture) Duration() uint64 {
	var total uint64
	for _, f := range c.Flux {
		total += uint64(f)
	}
	return total
}

// Open reads a capture, picking the decoder from the file signature.
func Open(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}

	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return DecodeWAV(path, bytes.NewReader(data), DefaultWAVConfig())
	}
	return DecodeKryoFlux(path, data)
}
