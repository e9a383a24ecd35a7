package fmsum

import (
	"encoding/binary"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Trailer is the byte written after every data field checksum.
const Trailer = 0x10

// Sector is one sector to lay down on a synthetic track.
type Sector struct {
	At   models.Coordinate
	Data []byte
	// EraseAddressMark overwrites the ID mark and field with plain zero
	// bytes of the same length, as a worn or damaged mark reads back.
	EraseAddressMark bool
}

// EncodeDataField renders the cells that follow a data mark: payload,
// checksum and trailer.
func EncodeDataField(data []byte) flux.Sequence {
	field := make([]byte, 0, len(data)+checksumLen+1)
	field = append(field, data...)
	field = binary.BigEndian.AppendUint16(field, Checksum(data))
	field = append(field, Trailer)
	return EncodeBytes(field)
}

func encodeIDField(at models.Coordinate) flux.Sequence {
	id := []byte{byte(at.Cylinder), byte(at.Head), byte(at.Sector)}
	id = binary.BigEndian.AppendUint16(id, Checksum(id))
	return EncodeBytes(id)
}

func fill(v byte, n int) flux.Sequence {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return EncodeBytes(b)
}

// EncodeTrack renders one revolution holding the given sectors in order.
func EncodeTrack(sectors []Sector) flux.Sequence {
	parts := []flux.Sequence{fill(0xff, 16)}
	for _, s := range sectors {
		parts = append(parts, fill(0x00, 6))
		if s.EraseAddressMark {
			parts = append(parts, fill(0x00, 1+idFieldBytes))
		} else {
			parts = append(parts, idMark, encodeIDField(s.At))
		}
		parts = append(parts,
			fill(0xff, 11),
			fill(0x00, 6),
			dataMark,
			EncodeDataField(s.Data),
			fill(0xff, 16),
		)
	}
	return flux.Concat(parts...)
}

// TrackCapture wraps track cells as an in-memory capture.
func (f *Format) TrackCapture(name string, revolutions ...flux.Sequence) *capture.Capture {
	c := &capture.Capture{Path: name, Kind: capture.KindKryoFlux}
	for _, rev := range revolutions {
		c.Index = append(c.Index, len(c.Flux))
		c.Flux = append(c.Flux, flux.ToDurations(rev, f.CellNs)...)
	}
	return c
}
