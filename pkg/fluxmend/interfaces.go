package fluxmend

import (
	"context"
	"io"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

type Service interface {
	OpenSession(ctx context.Context, target models.Coordinate, length int) (*Session, error)
	ScanTrack(ctx context.Context, path string) ([]TrackEntry, error)
	Accept(sess *Session, sector models.DecodedSector) (string, error)
	ListSectors() ([]models.StoredSector, error)
	WriteImage(w io.Writer) (*models.ImageSummary, error)
	Close() error
}

// Format is one media encoding scheme. Implementations are stateless; a
// session picks one with SelectFormat and keeps it.
type Format interface {
	Name() string
	// Probe reports whether the capture looks like this format.
	Probe(c *capture.Capture) bool
	// FluxForSector returns candidate cells for a sector, starting at its
	// data field. They may run past the field.
	FluxForSector(at models.Coordinate, c *capture.Capture) []flux.Sequence
	// SplitStream groups a track capture by marker.
	SplitStream(c *capture.Capture) []flux.Group
	MarkerToCoordinate(c *capture.Capture, marker flux.Sequence) (models.Coordinate, error)
	// ProposeSector validates data bits for a sector of length bytes and
	// returns the sectors they decode to, possibly none.
	ProposeSector(at models.Coordinate, length int, bits flux.Sequence) []models.DecodedSector
	// FrameCells is the number of cells a data field of length bytes
	// occupies, checksum included.
	FrameCells(length int) int
	// DataBits strips clocking from cells.
	DataBits(cells flux.Sequence) flux.Sequence
}

type Storage interface {
	AddSector(media string, sector models.DecodedSector, source string) (string, error)
	ListSectors(media string) ([]models.StoredSector, error)
	SectorsAt(media string, at models.Coordinate) ([]models.StoredSector, error)
	WriteImage(media string, w io.Writer) (*models.ImageSummary, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
