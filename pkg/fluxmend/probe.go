package fluxmend

import (
	"fmt"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/capture"
)

// SelectFormat probes every candidate against the captures once and picks
// the one that recognises the most. Ties go to the earlier candidate.
func SelectFormat(formats []Format, captures []*capture.Capture) (Format, error) {
	var best Format
	bestScore := 0
	for _, f := range formats {
		score := 0
		for _, c := range captures {
			if f.Probe(c) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: tried %d formats on %d captures", ErrNoFormat, len(formats), len(captures))
	}
	return best, nil
}
