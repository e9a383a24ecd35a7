package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// KryoFlux stream clocks.
const (
	masterClock = 18432000.0 * 73.0 / 14.0 / 2.0
	sampleClock = masterClock / 2.0
)

// Stream block codes.
const (
	blockFlux2Max = 0x07
	blockNop1     = 0x08
	blockNop2     = 0x09
	blockNop3     = 0x0a
	blockOvl16    = 0x0b
	blockFlux3    = 0x0c
	blockOOB      = 0x0d
)

// Out-of-band block types.
const (
	oobStreamInfo = 0x01
	oobIndex      = 0x02
	oobStreamEnd  = 0x03
	oobKFInfo     = 0x04
	oobEOF        = 0x0d
)

func ticksToNs(ticks uint32) uint32 {
	return uint32(math.Round(float64(ticks) * 1e9 / sampleClock))
}

func nsToTicks(ns uint32) uint32 {
	t := uint32(math.Round(float64(ns) * sampleClock / 1e9))
	if t == 0 {
		t = 1
	}
	return t
}

// DecodeKryoFlux decodes a KryoFlux raw stream. Anything that does not
// parse as a stream, or carries no out-of-band info at all, is reported as
// ErrNotACapture.
func DecodeKryoFlux(path string, data []byte) (*Capture, error) {
	var (
		flux      []uint32
		fluxPos   []int // stream position of each flux block
		indexPos  []uint32
		overflow  uint32
		streamPos int
		sawInfo   bool
		sawEOF    bool
	)

	need := func(i, n int) error {
		if i+n > len(data) {
			return fmt.Errorf("%s: %w: truncated block at offset %d", path, ErrNotACapture, i)
		}
		return nil
	}
	emit := func(val uint32) {
		flux = append(flux, ticksToNs(overflow+val))
		fluxPos = append(fluxPos, streamPos)
		overflow = 0
	}

	i := 0
	for i < len(data) && !sawEOF {
		b := data[i]
		switch {
		case b <= blockFlux2Max:
			if err := need(i, 2); err != nil {
				return nil, err
			}
			emit(uint32(b)<<8 | uint32(data[i+1]))
			i += 2
			streamPos += 2
		case b == blockNop1, b == blockNop2, b == blockNop3:
			n := int(b-blockNop1) + 1
			if err := need(i, n); err != nil {
				return nil, err
			}
			i += n
			streamPos += n
		case b == blockOvl16:
			overflow += 0x10000
			i++
			streamPos++
		case b == blockFlux3:
			if err := need(i, 3); err != nil {
				return nil, err
			}
			emit(uint32(data[i+1])<<8 | uint32(data[i+2]))
			i += 3
			streamPos += 3
		case b == blockOOB:
			if err := need(i, 2); err != nil {
				return nil, err
			}
			typ := data[i+1]
			if typ == oobEOF {
				sawEOF = true
				break
			}
			if err := need(i, 4); err != nil {
				return nil, err
			}
			size := int(binary.LittleEndian.Uint16(data[i+2:]))
			if err := need(i+4, size); err != nil {
				return nil, err
			}
			payload := data[i+4 : i+4+size]
			switch typ {
			case oobStreamInfo, oobStreamEnd, oobKFInfo:
				sawInfo = true
			case oobIndex:
				if size < 4 {
					return nil, fmt.Errorf("%s: %w: short index block", path, ErrNotACapture)
				}
				indexPos = append(indexPos, binary.LittleEndian.Uint32(payload))
			default:
				return nil, fmt.Errorf("%s: %w: unknown OOB type %#x", path, ErrNotACapture, typ)
			}
			i += 4 + size
		default:
			emit(uint32(b))
			i++
			streamPos++
		}
	}

	if !sawInfo {
		return nil, fmt.Errorf("%s: %w: no stream info blocks", path, ErrNotACapture)
	}

	c := &Capture{Path: path, Kind: KindKryoFlux, Flux: flux}
	for _, pos := range indexPos {
		j := 0
		for j < len(fluxPos) && fluxPos[j] < int(pos) {
			j++
		}
		c.Index = append(c.Index, j)
	}
	return c, nil
}

// WriteKryoFlux encodes transition intervals (ns) as a KryoFlux raw stream
// with an index pulse at the start. It is the inverse of DecodeKryoFlux up
// to sample-clock rounding.
func WriteKryoFlux(w io.Writer, flux []uint32) error {
	var body []byte
	oob := func(typ byte, payload []byte) {
		body = append(body, blockOOB, typ)
		body = binary.LittleEndian.AppendUint16(body, uint16(len(payload)))
		body = append(body, payload...)
	}

	oob(oobKFInfo, []byte("name=FluxMend, version=1\x00"))
	idx := make([]byte, 12)
	oob(oobIndex, idx)

	streamPos := 0
	for _, ns := range flux {
		ticks := nsToTicks(ns)
		for ticks >= 0x10000 {
			body = append(body, blockOvl16)
			streamPos++
			ticks -= 0x10000
		}
		switch {
		case ticks > blockOOB && ticks <= 0xff:
			body = append(body, byte(ticks))
			streamPos++
		case ticks < 0x800:
			body = append(body, byte(ticks>>8), byte(ticks))
			streamPos += 2
		default:
			body = append(body, blockFlux3, byte(ticks>>8), byte(ticks))
			streamPos += 3
		}
	}

	end := make([]byte, 8)
	binary.LittleEndian.PutUint32(end, uint32(streamPos))
	oob(oobStreamEnd, end)
	body = append(body, blockOOB, oobEOF, oobEOF, oobEOF)

	_, err := w.Write(body)
	return err
}
