package fluxmend

import (
	"context"
	"fmt"
	"sort"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// LocateRequest names a sector whose address mark is gone and the
// neighbour whose marker precedes it on the track.
type LocateRequest struct {
	Target   models.Coordinate
	Neighbor models.Coordinate
	Length   int
	// MaxErasureGap is the longest first data span, in cells, a group may
	// have. Longer spans mean more than one marker is missing.
	MaxErasureGap int
}

func (req LocateRequest) validate() error {
	switch {
	case req.Neighbor.IsZero():
		return fmt.Errorf("%w: no neighbour given", ErrInterleaveUnknown)
	case req.Neighbor == req.Target:
		return fmt.Errorf("%w: neighbour %s is the target", ErrInterleaveUnknown, req.Neighbor)
	case req.MaxErasureGap <= 0:
		return fmt.Errorf("%w: erasure gap must be positive", ErrInterleaveUnknown)
	}
	return nil
}

// Locator reaches a data field whose own marker is missing by going
// through the marker of the sector recorded before it.
type Locator struct {
	log Logger
}

func NewLocator(log Logger) *Locator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Locator{log: log}
}

// Spans returns, for every group on every capture whose marker decodes to
// the neighbour, the second data span: the field that follows the
// neighbour's own data.
func (l *Locator) Spans(captures []*capture.Capture, f Format, req LocateRequest) ([]flux.Sequence, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var spans []flux.Sequence
	for _, c := range captures {
		for _, g := range f.SplitStream(c) {
			if len(g.Data) < 2 || len(g.Data[0]) > req.MaxErasureGap {
				continue
			}
			at, err := f.MarkerToCoordinate(c, g.Marker)
			if err != nil {
				l.log.Debugf("%s: skipping group: %v", c.Name(), err)
				continue
			}
			if at != req.Neighbor {
				continue
			}
			l.log.Debugf("%s: %s spans %v", c.Name(), at, g.Lengths())
			spans = append(spans, g.Data[1])
		}
	}
	return spans, nil
}

// Recover validates every located span as the target sector.
func (l *Locator) Recover(ctx context.Context, captures []*capture.Capture, f Format, req LocateRequest) (*SearchResult, error) {
	spans, err := l.Spans(captures, f, req)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{}
	seen := make(map[string]bool)
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Tried++
		for _, s := range f.ProposeSector(req.Target, req.Length, f.DataBits(span)) {
			res.RawHits++
			if !seen[s.Key()] {
				seen[s.Key()] = true
				res.Hits = append(res.Hits, s)
			}
		}
	}
	sort.Slice(res.Hits, func(i, j int) bool {
		return models.ComparePayload(res.Hits[i], res.Hits[j]) < 0
	})

	l.log.Infof("located %d spans after %s: %d distinct hits for %s", len(spans), req.Neighbor, len(res.Hits), req.Target)
	return res, nil
}
