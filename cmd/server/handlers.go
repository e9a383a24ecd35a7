package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/FluxMend/internal/recipe"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/logger"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service fluxmend.Service
	config  *ServerConfig
	log     fluxmend.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	CaptureDir     string
	Media          string
	TempDir        string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service fluxmend.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().Named("server"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "FluxMend API",
		"version": "1.0.0",
		"media":   s.config.Media,
		"endpoints": map[string]string{
			"health":  "GET /health",
			"metrics": "GET /api/health/metrics",
			"sectors": "GET /api/sectors",
			"image":   "GET /api/image",
			"scan":    "POST /api/scan",
			"recipe":  "POST /api/recipes",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	sectors, err := s.service.ListSectors()
	if err != nil {
		s.log.Errorf("Failed to get sector count: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		CaptureDir:   s.config.CaptureDir,
		Media:        s.config.Media,
		SectorCount:  len(sectors),
	})
}

// handleListSectors handles GET /api/sectors
func (s *Server) handleListSectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sectors, err := s.service.ListSectors()
	if err != nil {
		s.log.Errorf("Failed to list sectors: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve sectors")
		return
	}

	dtos := make([]SectorDTO, len(sectors))
	for i, sector := range sectors {
		dtos[i] = newSectorDTO(sector)
	}
	s.respondJSON(w, http.StatusOK, ListSectorsResponse{
		Media:   s.config.Media,
		Sectors: dtos,
		Count:   len(dtos),
	})
}

// handleImage handles GET /api/image. The image is built in memory so that
// a storage failure can still be reported as JSON.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var buf bytes.Buffer
	summary, err := s.service.WriteImage(&buf)
	if err != nil {
		s.log.Errorf("Failed to build image: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to build image")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.config.Media+".img"))
	w.Header().Set("Content-Length", strconv.FormatInt(summary.Bytes, 10))
	w.Header().Set("X-Sector-Count", strconv.Itoa(summary.Sectors))
	w.Header().Set("X-Conflict-Count", strconv.Itoa(len(summary.Conflicts)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log.Warnf("Failed to send image: %v", err)
	}
}

// handleScan handles POST /api/scan (multipart capture upload)
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("capture")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "capture file is required")
		return
	}
	defer file.Close()

	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("upload_%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename)))
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer os.Remove(tempFile)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	out.Close()

	entries, err := s.service.ScanTrack(ctx, tempFile)
	if err != nil {
		if errors.Is(err, capture.ErrNotACapture) {
			s.respondError(w, http.StatusUnprocessableEntity, "not a recognised capture")
			return
		}
		s.log.Errorf("Failed to scan %s: %v", header.Filename, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to scan capture")
		return
	}

	dtos := make([]TrackEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = TrackEntryDTO{Spans: e.Spans}
		if e.Err != nil {
			dtos[i].Error = e.Err.Error()
			continue
		}
		dtos[i].At = e.At.String()
	}
	s.respondJSON(w, http.StatusOK, ScanResponse{
		Capture: header.Filename,
		Entries: dtos,
		Count:   len(dtos),
	})
}

// handleRecipe handles POST /api/recipes (YAML body)
func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	rec, err := recipe.Parse(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec.Media != "" && rec.Media != s.config.Media {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("this server recovers %q, not %q", s.config.Media, rec.Media))
		return
	}

	var report bytes.Buffer
	outcome, err := rec.Run(ctx, s.service, &report)

	resp := RecipeResponse{Report: report.String()}
	if outcome != nil {
		resp.SessionID = outcome.SessionID
		if res := outcome.Result; res != nil {
			resp.Tried = res.Tried
			resp.RawHits = res.RawHits
			resp.Distinct = len(res.Hits)
		}
		if outcome.Sector != nil {
			resp.Payload = outcome.Sector.Octets()
		}
		resp.StoredID = outcome.StoredID
	}

	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, fluxmend.ErrNoHits), errors.Is(err, fluxmend.ErrAmbiguous):
		// needs a person to adjust the hole; report what was found
		s.respondJSON(w, http.StatusConflict, resp)
	case errors.Is(err, fluxmend.ErrNoReadings),
		errors.Is(err, fluxmend.ErrRankOutOfRange),
		errors.Is(err, fluxmend.ErrTokenOutOfRange),
		errors.Is(err, fluxmend.ErrHoleTooWide),
		errors.Is(err, fluxmend.ErrHoleTooNarrow),
		errors.Is(err, fluxmend.ErrInterleaveUnknown):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Errorf("Recipe for %s failed: %v", rec.Target, err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
