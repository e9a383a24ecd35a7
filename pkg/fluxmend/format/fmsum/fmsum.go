// Package fmsum is a format adapter for single-density FM media whose ID
// and data fields carry a 16-bit additive checksum.
//
// Each byte is sixteen cells, a clock cell then a data cell per bit, most
// significant bit first. Ordinary bytes have every clock present. The ID
// address mark (data 0xFE) and data mark (data 0xFB) are written with the
// clock pattern 0xC7, which ordinary data cannot produce.
//
// ID field:   cylinder, head, sector, checksum (big-endian sum of the three)
// Data field: L payload bytes, checksum (big-endian sum of the payload)
package fmsum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

const (
	CellsPerByte  = 16
	DefaultCellNs = 2000

	idMarkByte   = 0xfe
	dataMarkByte = 0xfb
	markClock    = 0xc7
	normalClock  = 0xff

	idFieldBytes = 5
	checksumLen  = 2

	// How far past an ID field the data mark may start.
	defaultDataSearch = 48 * CellsPerByte
)

// ErrMarkerDecode is returned when an ID field fails its checksum or is
// too short to hold one.
var ErrMarkerDecode = errors.New("fmsum: marker does not decode")

var (
	idMark   = EncodeByte(idMarkByte, markClock)
	dataMark = EncodeByte(dataMarkByte, markClock)
)

type Format struct {
	// CellNs is the nominal bit-cell period used to quantise flux.
	CellNs float64
	// DataSearch bounds the distance, in cells, from the end of an ID
	// field to its data mark.
	DataSearch int
}

func New() *Format {
	return &Format{CellNs: DefaultCellNs, DataSearch: defaultDataSearch}
}

func (f *Format) Name() string { return "fmsum" }

// Cells quantises a capture into bit cells.
func (f *Format) Cells(c *capture.Capture) flux.Sequence {
	return flux.FromDurations(c.Flux, f.CellNs)
}

// FrameCells is the size of a data field of length bytes, checksum included.
func (f *Format) FrameCells(length int) int {
	return (length + checksumLen) * CellsPerByte
}

// DataBits drops the clock cells.
func (f *Format) DataBits(cells flux.Sequence) flux.Sequence {
	return flux.Decimate(cells, 1, 2)
}

// Probe accepts captures holding at least one readable ID field.
func (f *Format) Probe(c *capture.Capture) bool {
	cells := f.Cells(c)
	for _, p := range findAll(cells, idMark) {
		if _, err := decodeID(cells.Slice(p+len(idMark), len(cells))); err == nil {
			return true
		}
	}
	return false
}

// FluxForSector returns, for every readable ID field naming at, the cells
// following its data mark to the end of the capture. Callers trim to the
// length they need.
func (f *Format) FluxForSector(at models.Coordinate, c *capture.Capture) []flux.Sequence {
	cells := f.Cells(c)
	var out []flux.Sequence
	for _, p := range findAll(cells, idMark) {
		idStart := p + len(idMark)
		got, err := decodeID(cells.Slice(idStart, len(cells)))
		if err != nil || got != at {
			continue
		}
		from := idStart + idFieldBytes*CellsPerByte
		dm := cells.Index(dataMark, from)
		if dm < 0 || dm-from > f.DataSearch {
			continue
		}
		out = append(out, cells.Slice(dm+len(dataMark), len(cells)))
	}
	return out
}

type markAt struct {
	pos  int
	isID bool
}

// SplitStream groups a capture by ID mark. Each group's marker runs from
// just after the ID mark to the next mark of either kind; each data span
// runs from just after a data mark to the next mark.
func (f *Format) SplitStream(c *capture.Capture) []flux.Group {
	cells := f.Cells(c)

	var marks []markAt
	for _, p := range findAll(cells, idMark) {
		marks = append(marks, markAt{pos: p, isID: true})
	}
	for _, p := range findAll(cells, dataMark) {
		marks = append(marks, markAt{pos: p})
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].pos < marks[j].pos })

	var groups []flux.Group
	for i, m := range marks {
		end := len(cells)
		if i+1 < len(marks) {
			end = marks[i+1].pos
		}
		span := cells.Slice(m.pos+CellsPerByte, end)
		switch {
		case m.isID:
			groups = append(groups, flux.Group{Marker: span})
		case len(groups) > 0:
			g := &groups[len(groups)-1]
			g.Data = append(g.Data, span)
		}
	}
	return groups
}

// MarkerToCoordinate decodes an ID field span.
func (f *Format) MarkerToCoordinate(_ *capture.Capture, marker flux.Sequence) (models.Coordinate, error) {
	return decodeID(marker)
}

// ProposeSector validates a data field given as data bits (clock cells
// already removed). It returns a single sector when the checksum holds
// and nothing otherwise.
func (f *Format) ProposeSector(at models.Coordinate, length int, bits flux.Sequence) []models.DecodedSector {
	need := (length + checksumLen) * 8
	if length <= 0 || len(bits) < need {
		return nil
	}
	raw := flux.Bytes(bits.Truncate(need))
	payload, stored := raw[:length], binary.BigEndian.Uint16(raw[length:])
	if Checksum(payload) != stored {
		return nil
	}
	return []models.DecodedSector{models.NewDecodedSector(at, payload)}
}

func decodeID(cells flux.Sequence) (models.Coordinate, error) {
	need := idFieldBytes * CellsPerByte
	if len(cells) < need {
		return models.Coordinate{}, fmt.Errorf("%w: %d cells, need %d", ErrMarkerDecode, len(cells), need)
	}
	b := flux.Bytes(flux.Decimate(cells.Truncate(need), 1, 2))
	if Checksum(b[:3]) != binary.BigEndian.Uint16(b[3:]) {
		return models.Coordinate{}, fmt.Errorf("%w: bad ID checksum", ErrMarkerDecode)
	}
	return models.Coordinate{Cylinder: int(b[0]), Head: int(b[1]), Sector: int(b[2])}, nil
}

func findAll(cells, pat flux.Sequence) []int {
	var out []int
	for p := cells.Index(pat, 0); p >= 0; p = cells.Index(pat, p+len(pat)) {
		out = append(out, p)
	}
	return out
}

// Checksum is the 16-bit additive sum of b.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// EncodeByte renders one byte with the given clock pattern.
func EncodeByte(data, clock byte) flux.Sequence {
	buf := make([]byte, 0, CellsPerByte)
	for bit := 7; bit >= 0; bit-- {
		buf = append(buf, cell(clock>>uint(bit)&1), cell(data>>uint(bit)&1))
	}
	return flux.Sequence(buf)
}

// EncodeBytes renders ordinary bytes.
func EncodeBytes(b []byte) flux.Sequence {
	parts := make([]flux.Sequence, len(b))
	for i, v := range b {
		parts[i] = EncodeByte(v, normalClock)
	}
	return flux.Concat(parts...)
}

func cell(bit byte) byte {
	if bit != 0 {
		return byte(flux.Mark)
	}
	return byte(flux.Space)
}
