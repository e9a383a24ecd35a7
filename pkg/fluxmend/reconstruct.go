package fluxmend

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

// Hypothesis describes a hole to brute-force: the cells known before and
// after it, its width in cells, and the sector the result should decode
// as.
type Hypothesis struct {
	Prefix flux.Sequence
	Suffix flux.Sequence
	Width  int
	Target models.Coordinate
	Length int
}

// SearchResult holds the distinct sectors that passed validation, sorted
// by payload.
type SearchResult struct {
	Hits    []models.DecodedSector
	RawHits int    // validations that passed, before dedup
	Tried   uint64 // candidates offered to the format
}

// Unique returns the single hit, ErrNoHits if there is none, or an
// *AmbiguousError if there are several.
func (r *SearchResult) Unique() (models.DecodedSector, error) {
	switch len(r.Hits) {
	case 0:
		return models.DecodedSector{}, ErrNoHits
	case 1:
		return r.Hits[0], nil
	default:
		return models.DecodedSector{}, &AmbiguousError{Count: len(r.Hits)}
	}
}

// Filler renders i as a width-cell hole filler, most significant bit
// first, 1 as Mark.
func Filler(i uint64, width int) flux.Sequence {
	return flux.FromBits(i, width)
}

// widestHole keeps 1<<Width representable in a uint64.
const widestHole = 63

type Reconstructor struct {
	Workers  int
	MaxWidth int

	log Logger
}

func NewReconstructor(workers, maxWidth int, log Logger) *Reconstructor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reconstructor{Workers: workers, MaxWidth: maxWidth, log: log}
}

type partial struct {
	hits map[string]models.DecodedSector
	raw  int
}

// Search tries every filler for the hole and collects the sectors the
// format accepts. The result does not depend on Workers.
func (r *Reconstructor) Search(ctx context.Context, h Hypothesis, f Format) (*SearchResult, error) {
	maxWidth := r.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxHoleWidth
	}
	if maxWidth > widestHole {
		maxWidth = widestHole
	}
	if h.Width < 1 || h.Width > maxWidth {
		return nil, fmt.Errorf("%w: width %d, limit %d", ErrHoleTooWide, h.Width, maxWidth)
	}
	frame := f.FrameCells(h.Length)
	if got := len(h.Prefix) + h.Width + len(h.Suffix); got < frame {
		return nil, fmt.Errorf("%w: %d cells, frame needs %d", ErrHoleTooNarrow, got, frame)
	}

	total := uint64(1) << uint(h.Width)
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if uint64(workers) > total {
		workers = int(total)
	}
	r.log.Debugf("searching %d fillers for %s on %d workers", total, h.Target, workers)

	parts := make([]partial, workers)
	run := func(ctx context.Context, w int) error {
		lo := total * uint64(w) / uint64(workers)
		hi := total * uint64(w+1) / uint64(workers)
		return r.searchRange(ctx, h, f, frame, lo, hi, &parts[w])
	}

	if workers == 1 {
		if err := run(ctx, 0); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error { return run(gctx, w) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	res := &SearchResult{Tried: total}
	merged := make(map[string]models.DecodedSector)
	for _, p := range parts {
		res.RawHits += p.raw
		for k, s := range p.hits {
			merged[k] = s
		}
	}
	for _, s := range merged {
		res.Hits = append(res.Hits, s)
	}
	sort.Slice(res.Hits, func(i, j int) bool {
		return models.ComparePayload(res.Hits[i], res.Hits[j]) < 0
	})

	r.log.Infof("tried %d fillers for %s: %d raw hits, %d distinct", total, h.Target, res.RawHits, len(res.Hits))
	return res, nil
}

func (r *Reconstructor) searchRange(ctx context.Context, h Hypothesis, f Format, frame int, lo, hi uint64, out *partial) error {
	out.hits = make(map[string]models.DecodedSector)

	// Prefix and suffix never change, so only the hole is rewritten.
	buf := []byte(flux.Concat(h.Prefix, Filler(0, h.Width), h.Suffix).Truncate(frame))
	hole := len(h.Prefix)

	for i := lo; i < hi; i++ {
		if (i-lo)&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for b := 0; b < h.Width && hole+b < len(buf); b++ {
			if i&(1<<uint(h.Width-1-b)) != 0 {
				buf[hole+b] = byte(flux.Mark)
			} else {
				buf[hole+b] = byte(flux.Space)
			}
		}
		for _, s := range f.ProposeSector(h.Target, h.Length, f.DataBits(flux.Sequence(buf))) {
			out.raw++
			if _, ok := out.hits[s.Key()]; !ok {
				out.hits[s.Key()] = s
			}
		}
	}
	return nil
}
