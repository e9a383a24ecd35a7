package fluxmend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// TrackEntry is one marker group of a scanned track.
type TrackEntry struct {
	At    models.Coordinate
	Err   error // set when the marker did not decode
	Spans []int // data span lengths in cells
}

func (e TrackEntry) String() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString("(?)")
	} else {
		b.WriteString(e.At.String())
	}
	for _, n := range e.Spans {
		fmt.Fprintf(&b, " %d", n)
	}
	return b.String()
}

// repairService is the default implementation of the Service interface.
type repairService struct {
	storage Storage
	catalog capture.Catalog
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().Named("fluxmend")
	}
	if len(cfg.Formats) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrNoFormat)
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &repairService{
		storage: stor,
		catalog: capture.Catalog{Dir: cfg.CaptureDir},
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// openCaptures reads every path, skipping files that are not captures.
func (s *repairService) openCaptures(ctx context.Context, paths []string) ([]*capture.Capture, error) {
	var out []*capture.Capture
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := capture.Open(p)
		if errors.Is(err, capture.ErrNotACapture) {
			s.log.Warnf("skipping %s: %v", p, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// OpenSession loads every capture of the target's track and feeds the
// readings of the target to a new session's comparator.
func (s *repairService) OpenSession(ctx context.Context, target models.Coordinate, length int) (*Session, error) {
	if length <= 0 {
		return nil, fmt.Errorf("sector length must be positive, got %d", length)
	}
	s.log.Infof("Opening session for %s, %d bytes", target, length)

	// 1. Find captures of the track
	paths, err := s.catalog.FilesFor(target)
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}

	// 2. Read them
	captures, err := s.openCaptures(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("reading captures: %w", err)
	}
	if len(captures) == 0 {
		return nil, fmt.Errorf("%w: no usable captures of %s in %s", ErrNoReadings, target, s.catalog.Dir)
	}

	// 3. Pick the format once
	f, err := SelectFormat(s.config.Formats, captures)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Using format %s on %d captures", f.Name(), len(captures))

	// 4. Ingest readings
	sess := newSession(s.config, target, length, f, captures)
	if sess.ingest() == 0 {
		s.log.Warnf("No readings of %s; its address mark may be missing", target)
	}
	return sess, nil
}

// ScanTrack lists the marker groups of one capture.
func (s *repairService) ScanTrack(ctx context.Context, path string) ([]TrackEntry, error) {
	captures, err := s.openCaptures(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return nil, fmt.Errorf("%s: %w", path, capture.ErrNotACapture)
	}
	c := captures[0]

	f, err := SelectFormat(s.config.Formats, captures)
	if err != nil {
		return nil, err
	}

	groups := f.SplitStream(c)
	entries := make([]TrackEntry, 0, len(groups))
	for _, g := range groups {
		at, err := f.MarkerToCoordinate(c, g.Marker)
		entries = append(entries, TrackEntry{At: at, Err: err, Spans: g.Lengths()})
	}
	s.log.Infof("%s: %d marker groups", c.Name(), len(entries))
	return entries, nil
}

// Accept tags a recovered sector and stores it.
func (s *repairService) Accept(sess *Session, sector models.DecodedSector) (string, error) {
	if sector.Coordinate() != sess.Target {
		return "", fmt.Errorf("sector %s does not belong to session target %s", sector.Coordinate(), sess.Target)
	}
	tagged := sector.Accepted(models.ProvenanceRepaired)
	id, err := s.storage.AddSector(s.config.Media, tagged, "session "+sess.ID)
	if err != nil {
		return "", fmt.Errorf("failed to store sector: %w", err)
	}
	s.log.Infof("Stored %s as %s", sess.Target, id)
	return id, nil
}

// ListSectors returns every stored sector of the configured media.
func (s *repairService) ListSectors() ([]models.StoredSector, error) {
	return s.storage.ListSectors(s.config.Media)
}

// WriteImage writes the configured media's sector image to w.
func (s *repairService) WriteImage(w io.Writer) (*models.ImageSummary, error) {
	summary, err := s.storage.WriteImage(s.config.Media, w)
	if err != nil {
		return nil, err
	}
	for _, at := range summary.Conflicts {
		s.log.Warnf("%s holds more than one payload; wrote the earliest", at)
	}
	return summary, nil
}

// Close releases all resources held by the service.
func (s *repairService) Close() error {
	return s.storage.Close()
}
