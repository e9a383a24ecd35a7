package fluxmend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/format/fmsum"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

func writeTrack(t *testing.T, dir, name string, revs ...flux.Sequence) string {
	t.Helper()
	c := fmsum.New().TrackCapture(name, revs...)
	var buf bytes.Buffer
	require.NoError(t, capture.WriteKryoFlux(&buf, c.Flux))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// damage blanks one byte of a sector's data field on the track.
func damage(t *testing.T, track flux.Sequence, payload []byte, byteIndex int) flux.Sequence {
	t.Helper()
	at := strings.Index(string(track), string(fmsum.EncodeDataField(payload)))
	require.GreaterOrEqual(t, at, 0)
	start := at + byteIndex*fmsum.CellsPerByte
	blank := strings.Repeat(string(flux.Space), fmsum.CellsPerByte)
	return track[:start] + flux.Sequence(blank) + track[start+fmsum.CellsPerByte:]
}

// setupTestService creates a service over a fresh capture directory and
// database.
func setupTestService(t *testing.T) (Service, string) {
	t.Helper()

	dir := t.TempDir()
	captures := filepath.Join(dir, "captures")
	require.NoError(t, os.MkdirAll(captures, 0o755))

	svc, err := NewService(
		WithDBPath(filepath.Join(dir, "db", "test.sqlite3")),
		WithCaptureDir(captures),
		WithMedia("q1"),
		WithLogger(logger.Discard()),
		WithWorkers(2),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return svc, captures
}

func TestRepairByBruteForce(t *testing.T) {
	svc, dir := setupTestService(t)
	sectors, track := interleavedTrack()
	target := sectors[0]

	writeTrack(t, dir, "track39.0.raw", track, track, track)
	writeTrack(t, dir, "track39.0.raw.1", damage(t, track, target.Data, 5), damage(t, track, target.Data, 5))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "track39.0.raw.2"), []byte("not a stream"), 0o644))

	ctx := context.Background()
	sess, err := svc.OpenSession(ctx, target.At, 20)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Len(t, sess.Captures, 2)
	assert.Equal(t, "fmsum", sess.Format.Name())

	_, err = sess.BruteForce(ctx, HoleSpec{Row: 1, PrefixToken: 0, SuffixToken: 2, Width: 16})
	assert.True(t, errors.Is(err, ErrNoReport))

	rep := sess.Analyze()
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, 3, rep.Rows[0].Reading.Count)
	require.Len(t, rep.Rows[1].Tokens, 3)
	width := rep.Rows[1].Tokens[1].Len()
	require.Positive(t, width)
	require.LessOrEqual(t, width, fmsum.CellsPerByte)

	// rebuild the blanked byte of the damaged reading
	res, err := sess.BruteForce(ctx, HoleSpec{Row: 1, PrefixToken: 0, SuffixToken: 2, Width: width})
	require.NoError(t, err)
	got, err := res.Unique()
	require.NoError(t, err)
	assert.Equal(t, target.Data, got.Octets())

	_, err = sess.BruteForce(ctx, HoleSpec{Row: 1, PrefixToken: 2, SuffixToken: 1, Width: width})
	assert.True(t, errors.Is(err, ErrTokenOutOfRange))
	_, err = sess.BruteForce(ctx, HoleSpec{Row: 9, PrefixToken: 0, SuffixToken: 2, Width: width})
	assert.True(t, errors.Is(err, ErrRankOutOfRange))

	id, err := svc.Accept(sess, got)
	require.NoError(t, err)
	again, err := svc.Accept(sess, got)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stored, err := svc.ListSectors()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, target.At, stored[0].At)
	assert.Equal(t, models.ProvenanceRepaired, stored[0].Provenance)
	assert.Equal(t, "session "+sess.ID, stored[0].Source)

	var img bytes.Buffer
	summary, err := svc.WriteImage(&img)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sectors)
	assert.Equal(t, target.Data, img.Bytes())
	assert.Empty(t, summary.Conflicts)
}

func TestDropOutlier(t *testing.T) {
	svc, dir := setupTestService(t)
	sectors, track := interleavedTrack()
	target := sectors[3]

	writeTrack(t, dir, "track39.0.raw", track, track)
	writeTrack(t, dir, "track39.0.raw.1", damage(t, track, target.Data, 2))

	sess, err := svc.OpenSession(context.Background(), target.At, 20)
	require.NoError(t, err)

	before := sess.Analyze()
	require.Len(t, before.Rows, 2)
	assert.Positive(t, before.Divergence())

	require.NoError(t, sess.Drop(1))
	after := sess.Analyze()
	require.Len(t, after.Rows, 1)
	assert.Zero(t, after.Divergence())
	assert.Less(t, after.Divergence(), before.Divergence())
}

func TestRepairByLocating(t *testing.T) {
	svc, dir := setupTestService(t)
	sectors, track := interleavedTrack()
	target, neighbor := sectors[2], sectors[1]

	writeTrack(t, dir, "track39.0.raw", track)
	writeTrack(t, dir, "track39.0.raw.1", track)

	ctx := context.Background()
	sess, err := svc.OpenSession(ctx, target.At, 20)
	require.NoError(t, err)
	assert.Zero(t, sess.Comparator().Len(), "the erased mark hides every reading")

	_, err = sess.Locate(ctx, models.Coordinate{}, 1200)
	assert.True(t, errors.Is(err, ErrInterleaveUnknown))

	res, err := sess.Locate(ctx, neighbor.At, 1200)
	require.NoError(t, err)
	got, err := res.Unique()
	require.NoError(t, err)
	assert.Equal(t, target.Data, got.Octets())

	// the located spans can also go through the consensus path
	n, err := sess.AlignLocated(neighbor.At, 1200)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	rep := sess.Analyze()
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, 2, rep.Rows[0].Reading.Count)

	_, err = svc.Accept(sess, got)
	require.NoError(t, err)

	_, err = svc.Accept(sess, models.NewDecodedSector(neighbor.At, neighbor.Data))
	assert.Error(t, err)
}

func TestScanTrack(t *testing.T) {
	svc, dir := setupTestService(t)
	_, track := interleavedTrack()
	path := writeTrack(t, dir, "track39.0.raw", track)

	entries, err := svc.ScanTrack(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	var coords []models.Coordinate
	for _, e := range entries {
		require.NoError(t, e.Err)
		coords = append(coords, e.At)
	}
	assert.Equal(t, []models.Coordinate{chs(39, 0, 17), chs(39, 0, 80), chs(39, 0, 81), chs(39, 0, 82)}, coords)
	assert.Len(t, entries[1].Spans, 2)
	assert.Len(t, entries[2].Spans, 2)
	assert.True(t, strings.HasPrefix(entries[1].String(), "(39, 0, 80) "))

	bad := filepath.Join(dir, "junk.raw")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o644))
	_, err = svc.ScanTrack(context.Background(), bad)
	assert.True(t, errors.Is(err, capture.ErrNotACapture))
}

func TestOpenSessionWithoutCaptures(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.OpenSession(context.Background(), chs(1, 0, 1), 20)
	assert.True(t, errors.Is(err, ErrNoReadings))

	_, err = svc.OpenSession(context.Background(), chs(1, 0, 1), 0)
	assert.Error(t, err)
}

func TestSelectFormat(t *testing.T) {
	f := fmsum.New()
	_, track := interleavedTrack()
	good := f.TrackCapture("good", track)
	blank := f.TrackCapture("blank", fmsum.EncodeBytes(make([]byte, 64)))

	got, err := SelectFormat([]Format{f}, []*capture.Capture{blank, good})
	require.NoError(t, err)
	assert.Equal(t, "fmsum", got.Name())

	_, err = SelectFormat([]Format{f}, []*capture.Capture{blank})
	assert.True(t, errors.Is(err, ErrNoFormat))
	_, err = SelectFormat(nil, []*capture.Capture{good})
	assert.True(t, errors.Is(err, ErrNoFormat))
}
