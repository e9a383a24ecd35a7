package main

import (
	"time"

	"github.com/himanishpuri/FluxMend/pkg/models"
)

// MaxUploadBytes bounds capture uploads; a KryoFlux track stream of a few
// revolutions is well under a megabyte.
const MaxUploadBytes = 32 << 20

// SectorDTO represents a stored sector in API responses
type SectorDTO struct {
	ID         string    `json:"id"`
	Cylinder   int       `json:"cylinder"`
	Head       int       `json:"head"`
	Sector     int       `json:"sector"`
	Length     int       `json:"length"`
	Provenance string    `json:"provenance"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

func newSectorDTO(s models.StoredSector) SectorDTO {
	return SectorDTO{
		ID:         s.ID,
		Cylinder:   s.At.Cylinder,
		Head:       s.At.Head,
		Sector:     s.At.Sector,
		Length:     len(s.Octets),
		Provenance: s.Provenance,
		Source:     s.Source,
		CreatedAt:  s.CreatedAt,
	}
}

// ListSectorsResponse is the response for GET /api/sectors
type ListSectorsResponse struct {
	Media   string      `json:"media"`
	Sectors []SectorDTO `json:"sectors"`
	Count   int         `json:"count"`
}

// TrackEntryDTO is one address mark found by a scan
type TrackEntryDTO struct {
	At    string `json:"at,omitempty"`
	Spans []int  `json:"spans"`
	Error string `json:"error,omitempty"`
}

// ScanResponse is the response for POST /api/scan
type ScanResponse struct {
	Capture string          `json:"capture"`
	Entries []TrackEntryDTO `json:"entries"`
	Count   int             `json:"count"`
}

// RecipeResponse is the response for POST /api/recipes
type RecipeResponse struct {
	SessionID string `json:"session_id"`
	Report    string `json:"report"`
	Tried     uint64 `json:"tried,omitempty"`
	RawHits   int    `json:"raw_hits,omitempty"`
	Distinct  int    `json:"distinct,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	StoredID  string `json:"stored_id,omitempty"`
}

// MetricsResponse is the response for GET /api/health/metrics
type MetricsResponse struct {
	Status       string `json:"status"`
	DatabasePath string `json:"database_path"`
	CaptureDir   string `json:"capture_dir"`
	Media        string `json:"media"`
	SectorCount  int    `json:"sector_count"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
