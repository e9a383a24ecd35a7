// Package flux holds the bit-cell view of a capture that the repair tools
// work on. A capture's transition timings are quantised into cells, each
// either a Mark (a flux transition fell in the cell) or a Space.
package flux

import (
	"fmt"
	"math"
	"strings"
)

// Interval is one bit cell.
type Interval byte

const (
	Space Interval = '-'
	Mark  Interval = '|'
)

// Sequence is an ordered run of Intervals. Being a string it is immutable
// and doubles as its own map key.
type Sequence string

// Parse validates s as a Sequence.
func Parse(s string) (Sequence, error) {
	for i := 0; i < len(s); i++ {
		if c := Interval(s[i]); c != Space && c != Mark {
			return "", fmt.Errorf("flux: invalid cell %q at %d", s[i], i)
		}
	}
	return Sequence(s), nil
}

func (s Sequence) Len() int          { return len(s) }
func (s Sequence) At(i int) Interval { return Interval(s[i]) }
func (s Sequence) String() string    { return string(s) }

// Slice returns the cells in [i, j).
func (s Sequence) Slice(i, j int) Sequence { return s[i:j] }

// Truncate returns at most the first n cells of s.
func (s Sequence) Truncate(n int) Sequence {
	if n < len(s) {
		return s[:n]
	}
	return s
}

// Index returns the first position of pat in s at or after from, or -1.
func (s Sequence) Index(pat Sequence, from int) int {
	if from >= len(s) {
		return -1
	}
	if from < 0 {
		from = 0
	}
	i := strings.Index(string(s[from:]), string(pat))
	if i < 0 {
		return -1
	}
	return from + i
}

// Concat joins sequences.
func Concat(parts ...Sequence) Sequence {
	var b strings.Builder
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	b.Grow(n)
	for _, p := range parts {
		b.WriteString(string(p))
	}
	return Sequence(b.String())
}

// FromBits renders the low width bits of v, most significant first,
// with 1 as Mark and 0 as Space.
func FromBits(v uint64, width int) Sequence {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		if v&(1<<uint(width-1-i)) != 0 {
			buf[i] = byte(Mark)
		} else {
			buf[i] = byte(Space)
		}
	}
	return Sequence(buf)
}

// Decimate keeps every stride-th cell starting at offset. With offset 1 and
// stride 2 it drops the clock cells of an FM or MFM stream.
func Decimate(s Sequence, offset, stride int) Sequence {
	if stride <= 0 || offset < 0 || offset >= len(s) {
		return ""
	}
	buf := make([]byte, 0, (len(s)-offset+stride-1)/stride)
	for i := offset; i < len(s); i += stride {
		buf = append(buf, s[i])
	}
	return Sequence(buf)
}

// Bytes packs cells eight at a time, MSB first, into bytes. Trailing
// cells that do not fill a byte are ignored.
func Bytes(s Sequence) []byte {
	out := make([]byte, len(s)/8)
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			b <<= 1
			if Interval(s[i*8+j]) == Mark {
				b |= 1
			}
		}
		out[i] = b
	}
	return out
}

// FromDurations quantises transition intervals (in ns) into cells of the
// given nominal period. Each interval becomes Spaces followed by a Mark,
// rounding to the nearest whole number of cells and never less than one.
func FromDurations(durations []uint32, cellNs float64) Sequence {
	if cellNs <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(durations) * 2)
	for _, d := range durations {
		n := int(math.Round(float64(d) / cellNs))
		if n < 1 {
			n = 1
		}
		for i := 1; i < n; i++ {
			b.WriteByte(byte(Space))
		}
		b.WriteByte(byte(Mark))
	}
	return Sequence(b.String())
}

// Group is one marker and the data spans that follow it on a track, up to
// the next marker. Spans start just after their sync pattern.
type Group struct {
	Marker Sequence
	Data   []Sequence
}

// Lengths lists the cell length of each data span.
func (g Group) Lengths() []int {
	out := make([]int, len(g.Data))
	for i, d := range g.Data {
		out[i] = len(d)
	}
	return out
}

// ToDurations is the inverse of FromDurations: the time from the start of
// s (or the previous Mark) to each Mark. Spaces after the last Mark are
// dropped.
func ToDurations(s Sequence, cellNs float64) []uint32 {
	var out []uint32
	last := -1
	for i := 0; i < len(s); i++ {
		if Interval(s[i]) != Mark {
			continue
		}
		out = append(out, uint32(math.Round(float64(i-last)*cellNs)))
		last = i
	}
	return out
}
