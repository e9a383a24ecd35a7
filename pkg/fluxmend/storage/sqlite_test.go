package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_fluxmend.sqlite3")
	t.Setenv("FLUXMEND_DB_PATH", dbPath)

	client, err := NewDBClient()
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func sector(c, h, s int, octets string) models.DecodedSector {
	at := models.Coordinate{Cylinder: c, Head: h, Sector: s}
	return models.NewDecodedSector(at, []byte(octets)).Accepted(models.ProvenanceRepaired)
}

func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	require.NotNil(t, client.DB)
	require.NotNil(t, client.db)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
}

func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = os.Stat(customPath)
	assert.NoError(t, err)
}

func TestAddSectorIsIdempotent(t *testing.T) {
	client, _ := setupTestDB(t)

	id, err := client.AddSector("q1", sector(7, 0, 3, "payload"), "session a")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	again, err := client.AddSector("q1", sector(7, 0, 3, "payload"), "session b")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := client.AddSector("q2", sector(7, 0, 3, "payload"), "session c")
	require.NoError(t, err)
	assert.NotEqual(t, id, other, "media are kept apart")

	rows, err := client.SectorsAt("q1", models.Coordinate{Cylinder: 7, Head: 0, Sector: 3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte("payload"), rows[0].Octets)
	assert.Equal(t, 7, rows[0].Length)
	assert.Equal(t, Digest([]byte("payload")), rows[0].Digest)
	assert.Equal(t, models.ProvenanceRepaired, rows[0].Provenance)
	assert.Equal(t, "session a", rows[0].Source)
}

func TestListSectorsOrder(t *testing.T) {
	client, _ := setupTestDB(t)

	for _, s := range []models.DecodedSector{
		sector(2, 0, 1, "c"),
		sector(1, 1, 0, "b"),
		sector(1, 0, 5, "a"),
	} {
		_, err := client.AddSector("q1", s, "test")
		require.NoError(t, err)
	}

	rows, err := client.ListSectors("q1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, string(rows[i].Octets))
	}
}

func TestWriteImageReportsConflicts(t *testing.T) {
	client, _ := setupTestDB(t)

	for _, s := range []models.DecodedSector{
		sector(0, 0, 1, "AAAA"),
		sector(0, 0, 2, "BBBB"),
		sector(0, 0, 2, "bbbb"),
		sector(0, 1, 1, "CCCC"),
	} {
		_, err := client.AddSector("q1", s, "test")
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	summary, err := client.WriteImage("q1", &buf)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBBCCCC", buf.String())
	assert.Equal(t, 3, summary.Sectors)
	assert.Equal(t, int64(12), summary.Bytes)
	assert.Equal(t, []models.Coordinate{{Cylinder: 0, Head: 0, Sector: 2}}, summary.Conflicts)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteImageWriterError(t *testing.T) {
	client, _ := setupTestDB(t)
	_, err := client.AddSector("q1", sector(0, 0, 1, "x"), "test")
	require.NoError(t, err)

	_, err = client.WriteImage("q1", failingWriter{})
	assert.Error(t, err)
}

func TestNilClient(t *testing.T) {
	var client *DBClient
	_, err := client.AddSector("q1", sector(0, 0, 1, "x"), "test")
	assert.EqualError(t, err, errDBClientNil)
	_, err = client.ListSectors("q1")
	assert.EqualError(t, err, errDBClientNil)
	assert.NoError(t, client.Close())
}
