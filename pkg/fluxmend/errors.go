package fluxmend

import (
	"errors"
	"fmt"
)

var (
	ErrNoReport          = errors.New("no current report: analyze after the last change")
	ErrRankOutOfRange    = errors.New("rank out of range")
	ErrTokenOutOfRange   = errors.New("token out of range")
	ErrHoleTooNarrow     = errors.New("hole too narrow: candidate is shorter than the sector frame")
	ErrHoleTooWide       = errors.New("hole width out of range")
	ErrNoHits            = errors.New("no candidate passed validation")
	ErrAmbiguous         = errors.New("more than one candidate passed validation")
	ErrInterleaveUnknown = errors.New("interleave neighbour or erasure gap not configured")
	ErrNoFormat          = errors.New("no format recognises the captures")
	ErrNoReadings        = errors.New("no readings")
)

// AmbiguousError reports how many distinct payloads survived validation.
type AmbiguousError struct {
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d distinct payloads passed validation", e.Count)
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }
