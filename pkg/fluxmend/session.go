package fluxmend

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// HoleSpec places a hole between two tokens of a report row. The prefix
// is every token up to and including PrefixToken; the suffix is
// SuffixToken and everything after it.
type HoleSpec struct {
	Row         int
	PrefixToken int
	SuffixToken int
	// TrimPrefix drops the last prefix cell and TrimSuffix the first
	// suffix cell, widening the hole by one cell on that side.
	TrimPrefix bool
	TrimSuffix bool
	Width      int
}

// Session is one repair attempt on one sector. It is not safe for
// concurrent use.
type Session struct {
	ID       string
	Target   models.Coordinate
	Length   int
	Format   Format
	Captures []*capture.Capture

	comp    *Comparator
	recon   *Reconstructor
	locator *Locator
	slack   int
	log     Logger
}

func newSession(cfg *Config, target models.Coordinate, length int, f Format, captures []*capture.Capture) *Session {
	log := cfg.Logger
	return &Session{
		ID:       uuid.NewString(),
		Target:   target,
		Length:   length,
		Format:   f,
		Captures: captures,
		comp:     NewComparator(cfg.AnchorLength, log),
		recon:    NewReconstructor(cfg.Workers, cfg.MaxHoleWidth, log),
		locator:  NewLocator(log),
		slack:    cfg.ReadingSlack,
		log:      log,
	}
}

// ReadingCells is how many cells of each reading the session keeps.
func (s *Session) ReadingCells() int {
	return s.Format.FrameCells(s.Length + s.slack)
}

// ingest feeds every reading of the target found in the captures to the
// comparator.
func (s *Session) ingest() int {
	n := 0
	for _, c := range s.Captures {
		for _, seq := range s.Format.FluxForSector(s.Target, c) {
			if s.comp.AddReading(seq.Truncate(s.ReadingCells()), c.Name()) {
				n++
			}
		}
	}
	s.log.Infof("%d readings of %s, %d distinct", n, s.Target, s.comp.Len())
	return n
}

func (s *Session) Comparator() *Comparator { return s.comp }

func (s *Session) Analyze() *Report { return s.comp.Analyze() }

// Drop removes the reading at rank in the current report.
func (s *Session) Drop(rank int) error { return s.comp.Pop(rank) }

// Hypothesis builds the brute-force input for a hole placed in the current
// report.
func (s *Session) Hypothesis(spec HoleSpec) (Hypothesis, error) {
	rep, err := s.comp.Current()
	if err != nil {
		return Hypothesis{}, err
	}
	if spec.Row < 0 || spec.Row >= len(rep.Rows) {
		return Hypothesis{}, fmt.Errorf("%w: %d of %d", ErrRankOutOfRange, spec.Row, len(rep.Rows))
	}
	row := rep.Rows[spec.Row]
	if spec.PrefixToken < 0 || spec.PrefixToken >= spec.SuffixToken || spec.SuffixToken >= len(row.Tokens) {
		return Hypothesis{}, fmt.Errorf("%w: prefix %d, suffix %d, row has %d tokens",
			ErrTokenOutOfRange, spec.PrefixToken, spec.SuffixToken, len(row.Tokens))
	}

	prefix := row.Span(0, spec.PrefixToken+1)
	suffix := row.Span(spec.SuffixToken, len(row.Tokens))
	if spec.TrimPrefix && len(prefix) > 0 {
		prefix = prefix[:len(prefix)-1]
	}
	if spec.TrimSuffix && len(suffix) > 0 {
		suffix = suffix[1:]
	}

	return Hypothesis{
		Prefix: prefix,
		Suffix: suffix,
		Width:  spec.Width,
		Target: s.Target,
		Length: s.Length,
	}, nil
}

// BruteForce searches the hole described by spec.
func (s *Session) BruteForce(ctx context.Context, spec HoleSpec) (*SearchResult, error) {
	h, err := s.Hypothesis(spec)
	if err != nil {
		return nil, err
	}
	s.log.Infof("hole of %d cells between %d prefix and %d suffix cells", h.Width, len(h.Prefix), len(h.Suffix))
	return s.recon.Search(ctx, h, s.Format)
}

func (s *Session) locateRequest(neighbor models.Coordinate, maxGap int) LocateRequest {
	return LocateRequest{
		Target:        s.Target,
		Neighbor:      neighbor,
		Length:        s.Length,
		MaxErasureGap: maxGap,
	}
}

// Locate validates the data fields found after the neighbour's.
func (s *Session) Locate(ctx context.Context, neighbor models.Coordinate, maxGap int) (*SearchResult, error) {
	return s.locator.Recover(ctx, s.Captures, s.Format, s.locateRequest(neighbor, maxGap))
}

// AlignLocated replaces the session's readings with the spans found after
// the neighbour, for when Locate alone finds no valid field and the spans
// need the consensus and brute-force path. Previously dropped sequences
// stay dropped.
func (s *Session) AlignLocated(neighbor models.Coordinate, maxGap int) (int, error) {
	spans, err := s.locator.Spans(s.Captures, s.Format, s.locateRequest(neighbor, maxGap))
	if err != nil {
		return 0, err
	}
	if len(spans) == 0 {
		return 0, fmt.Errorf("%w: nothing follows %s", ErrNoReadings, neighbor)
	}

	comp := NewComparator(s.comp.AnchorLength, s.log)
	comp.dropped = s.comp.dropped
	n := 0
	for _, span := range spans {
		if comp.AddReading(span.Truncate(s.ReadingCells()), "after "+neighbor.String()) {
			n++
		}
	}
	s.comp = comp
	return n, nil
}
