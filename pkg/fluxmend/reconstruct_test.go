package fluxmend

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/format/fmsum"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

var testTarget = models.Coordinate{Cylinder: 7, Head: 0, Sector: 3}

func testPayload(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13+5) ^ seed
	}
	return b
}

// dataField renders a data field followed by one gap byte, with the stored
// checksum optionally altered.
func dataField(payload []byte, checksumDelta uint16) flux.Sequence {
	raw := append([]byte(nil), payload...)
	raw = binary.BigEndian.AppendUint16(raw, fmsum.Checksum(payload)+checksumDelta)
	raw = append(raw, fmsum.Trailer, 0xff)
	return fmsum.EncodeBytes(raw)
}

func holeIn(field flux.Sequence, at, width, suffixLen int, length int) Hypothesis {
	return Hypothesis{
		Prefix: field[:at],
		Suffix: field[at+width : at+width+suffixLen],
		Width:  width,
		Target: testTarget,
		Length: length,
	}
}

func newTestReconstructor(workers int) *Reconstructor {
	return NewReconstructor(workers, 0, logger.Discard())
}

func TestFillerEnumeratesEveryPattern(t *testing.T) {
	const width = 10
	seen := make(map[flux.Sequence]bool)
	for i := uint64(0); i < 1<<width; i++ {
		f := Filler(i, width)
		require.Len(t, f, width)
		seen[f] = true
	}
	assert.Len(t, seen, 1<<width)
	assert.Equal(t, flux.Sequence("|-----|--|"), Filler(0x209, width))
}

func TestSearchRoundTrip(t *testing.T) {
	payload := testPayload(20, 0x3c)
	field := dataField(payload, 0)
	h := holeIn(field, 100, 16, len(field)-116, 20)

	res, err := newTestReconstructor(1).Search(context.Background(), h, fmsum.New())
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<16), res.Tried)
	assert.Equal(t, 256, res.RawHits)

	got, err := res.Unique()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Octets())
	assert.Equal(t, testTarget, got.Coordinate())
	assert.Empty(t, got.Provenance())
}

func TestSearchIndependentOfWorkers(t *testing.T) {
	payload := testPayload(32, 0x81)
	field := dataField(payload, 0)
	h := holeIn(field, 200, 12, len(field)-212, 32)

	want, err := newTestReconstructor(1).Search(context.Background(), h, fmsum.New())
	require.NoError(t, err)
	for _, workers := range []int{2, 3, 8, 5000} {
		got, err := newTestReconstructor(workers).Search(context.Background(), h, fmsum.New())
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers %d", workers)
	}
}

func TestSearchRejectsCorruptedPayload(t *testing.T) {
	payload := testPayload(20, 0x77)
	corrupt := append([]byte(nil), payload...)
	corrupt[15] ^= 0x40

	// the checksum still describes the original payload
	raw := append([]byte(nil), corrupt...)
	raw = binary.BigEndian.AppendUint16(raw, fmsum.Checksum(payload))
	raw = append(raw, fmsum.Trailer, 0xff)
	field := fmsum.EncodeBytes(raw)

	h := holeIn(field, 40, 16, len(field)-56, 20)
	res, err := newTestReconstructor(4).Search(context.Background(), h, fmsum.New())
	require.NoError(t, err)
	for _, hit := range res.Hits {
		assert.False(t, bytes.Equal(payload, hit.Octets()))
	}
}

func TestSearchEndToEnd(t *testing.T) {
	const length = 255
	payload := testPayload(length, 0xa5)
	f := fmsum.New()
	require.Equal(t, 4112, f.FrameCells(length))

	h := holeIn(dataField(payload, 0), 2700, 16, 1414, length)
	require.Len(t, h.Prefix, 2700)
	require.Len(t, h.Suffix, 1414)

	res, err := newTestReconstructor(4).Search(context.Background(), h, f)
	require.NoError(t, err)
	assert.Equal(t, uint64(65536), res.Tried)
	assert.Equal(t, 256, res.RawHits)
	got, err := res.Unique()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Octets())

	// wrong high checksum byte: no filler can make up a difference of 256
	bad := holeIn(dataField(payload, 0x0100), 2700, 16, 1414, length)
	res, err = newTestReconstructor(4).Search(context.Background(), bad, f)
	require.NoError(t, err)
	assert.Zero(t, res.RawHits)
	_, err = res.Unique()
	assert.True(t, errors.Is(err, ErrNoHits))
}

func TestSearchBounds(t *testing.T) {
	field := dataField(testPayload(20, 1), 0)
	r := newTestReconstructor(1)
	f := fmsum.New()

	for _, width := range []int{0, -3, DefaultMaxHoleWidth + 1} {
		h := holeIn(field, 10, 0, 100, 20)
		h.Width = width
		_, err := r.Search(context.Background(), h, f)
		assert.True(t, errors.Is(err, ErrHoleTooWide), "width %d", width)
	}

	limited := NewReconstructor(1, 8, logger.Discard())
	_, err := limited.Search(context.Background(), holeIn(field, 10, 9, 300, 20), f)
	assert.True(t, errors.Is(err, ErrHoleTooWide))

	// a hole of 64 cells or more would overflow the candidate count
	unbounded := NewReconstructor(2, 100, logger.Discard())
	for _, width := range []int{64, 70} {
		h := holeIn(field, 10, 0, 300, 20)
		h.Width = width
		_, err = unbounded.Search(context.Background(), h, f)
		assert.True(t, errors.Is(err, ErrHoleTooWide), "width %d", width)
	}

	// 10 + 4 + 100 cells cannot cover a 352-cell frame
	_, err = r.Search(context.Background(), holeIn(field, 10, 4, 100, 20), f)
	assert.True(t, errors.Is(err, ErrHoleTooNarrow))
}

// acceptAll validates anything, returning the data bits as the payload.
type acceptAll struct {
	*fmsum.Format
}

func (acceptAll) ProposeSector(at models.Coordinate, _ int, bits flux.Sequence) []models.DecodedSector {
	return []models.DecodedSector{models.NewDecodedSector(at, []byte(bits))}
}

func TestSearchAmbiguous(t *testing.T) {
	field := dataField(testPayload(20, 9), 0)
	res, err := newTestReconstructor(2).Search(context.Background(), holeIn(field, 8, 4, len(field)-12, 20), acceptAll{fmsum.New()})
	require.NoError(t, err)

	// four cells span two data bits
	assert.Equal(t, 16, res.RawHits)
	assert.Len(t, res.Hits, 4)
	for i := 1; i < len(res.Hits); i++ {
		assert.Negative(t, models.ComparePayload(res.Hits[i-1], res.Hits[i]))
	}

	_, err = res.Unique()
	var amb *AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, 4, amb.Count)
	assert.True(t, errors.Is(err, ErrAmbiguous))
}

func TestSearchCancelled(t *testing.T) {
	field := dataField(testPayload(20, 2), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReconstructor(3).Search(ctx, holeIn(field, 100, 16, len(field)-116, 20), fmsum.New())
	assert.True(t, errors.Is(err, context.Canceled))
}
