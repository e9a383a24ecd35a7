package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/format/fmsum"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

func testSectors() []fmsum.Sector {
	data := func(seed byte) []byte {
		b := make([]byte, 20)
		for i := range b {
			b[i] = byte(i*5+1) ^ seed
		}
		return b
	}
	return []fmsum.Sector{
		{At: models.Coordinate{Cylinder: 2, Sector: 1}, Data: data(1)},
		{At: models.Coordinate{Cylinder: 2, Sector: 6}, Data: data(6)},
		{At: models.Coordinate{Cylinder: 2, Sector: 2}, Data: data(2), EraseAddressMark: true},
		{At: models.Coordinate{Cylinder: 2, Sector: 7}, Data: data(7)},
	}
}

func kryoflux(t *testing.T) []byte {
	t.Helper()
	c := fmsum.New().TrackCapture("track02.0.raw", fmsum.EncodeTrack(testSectors()))
	var buf bytes.Buffer
	require.NoError(t, capture.WriteKryoFlux(&buf, c.Flux))
	return buf.Bytes()
}

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	captures := filepath.Join(dir, "captures")
	require.NoError(t, os.MkdirAll(captures, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(captures, "track02.0.raw"), kryoflux(t), 0o644))

	svc, err := fluxmend.NewService(
		fluxmend.WithDBPath(filepath.Join(dir, "test.sqlite3")),
		fluxmend.WithCaptureDir(captures),
		fluxmend.WithMedia("q1"),
		fluxmend.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	s := NewServer(svc, &ServerConfig{
		DBPath:     filepath.Join(dir, "test.sqlite3"),
		CaptureDir: captures,
		Media:      "q1",
		TempDir:    dir,
	})
	s.log = logger.Discard()
	return s.setupRoutes()
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndRoot(t *testing.T) {
	h := setupTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodOptions, "/api/sectors", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecipeStoresSector(t *testing.T) {
	h := setupTestServer(t)
	body := "target: 2,0,2\nlength: 20\nlocate: {neighbor: \"2,0,6\", max_gap: 1200}\naccept: true\n"

	rec := do(h, httptest.NewRequest(http.MethodPost, "/api/recipes", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RecipeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, testSectors()[2].Data, resp.Payload)
	assert.NotEmpty(t, resp.StoredID)
	assert.Equal(t, 1, resp.Distinct)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/sectors", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListSectorsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 2, list.Sectors[0].Sector)
	assert.Equal(t, "repaired", list.Sectors[0].Provenance)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/image", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testSectors()[2].Data, rec.Body.Bytes())
	assert.Equal(t, "1", rec.Header().Get("X-Sector-Count"))
}

func TestRecipeErrors(t *testing.T) {
	h := setupTestServer(t)

	tests := map[string]struct {
		body string
		code int
	}{
		"bad yaml":       {"target: [", http.StatusBadRequest},
		"other media":    {"media: q2\ntarget: 2,0,2\nlength: 20\n", http.StatusBadRequest},
		"no readings":    {"target: 9,0,1\nlength: 20\n", http.StatusUnprocessableEntity},
		"wrong neighbor": {"target: 2,0,2\nlength: 20\nlocate: {neighbor: \"2,0,7\", max_gap: 1200}\n", http.StatusConflict},
	}
	for name, tt := range tests {
		rec := do(h, httptest.NewRequest(http.MethodPost, "/api/recipes", strings.NewReader(tt.body)))
		assert.Equal(t, tt.code, rec.Code, name)
	}

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/recipes", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScanUpload(t *testing.T) {
	h := setupTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("capture", "track02.0.raw")
	require.NoError(t, err)
	_, err = part.Write(kryoflux(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScanResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "(2, 0, 6)", resp.Entries[1].At)
	assert.Len(t, resp.Entries[1].Spans, 2)
}
