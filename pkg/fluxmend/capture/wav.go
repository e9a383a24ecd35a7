package capture

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mjibson/go-dsp/fft"
)

// WAVConfig tunes transition detection on read-channel recordings.
type WAVConfig struct {
	// CutoffRatio is the low-pass cutoff as a fraction of the sample rate.
	// Zero disables filtering.
	CutoffRatio float64
	// Threshold is the fraction of the peak amplitude a pulse must exceed.
	Threshold float64
}

func DefaultWAVConfig() WAVConfig {
	return WAVConfig{CutoffRatio: 0.25, Threshold: 0.3}
}

// DecodeWAV turns a PCM recording of a drive's read channel into flux
// intervals. Each transition shows up as a pulse; pulses alternate in
// polarity, and the time between pulse peaks is the flux interval.
func DecodeWAV(path string, r io.ReadSeeker, cfg WAVConfig) (*Capture, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w: invalid WAV header", path, ErrNotACapture)
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%s: %w: only PCM WAV is supported", path, ErrNotACapture)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrNotACapture, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: %w: missing sample rate", path, ErrNotACapture)
	}

	samples := monoFloat(buf)
	rate := buf.Format.SampleRate
	if cfg.CutoffRatio > 0 {
		samples = lowPass(samples, cfg.CutoffRatio)
	}

	peaks := detectPulses(samples, cfg.Threshold)
	if len(peaks) < 2 {
		return nil, fmt.Errorf("%s: %w: no flux pulses found", path, ErrNotACapture)
	}

	nsPerSample := 1e9 / float64(rate)
	flux := make([]uint32, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		flux = append(flux, uint32(math.Round(float64(peaks[i]-peaks[i-1])*nsPerSample)))
	}

	return &Capture{Path: path, Kind: KindWAV, Flux: flux}, nil
}

// monoFloat averages channels and scales to [-1, 1].
func monoFloat(buf *audio.IntBuffer) []float64 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := 1.0 / float64(int(1)<<uint(depth-1))

	chans := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		chans = buf.Format.NumChannels
	}

	frames := len(buf.Data) / chans
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < chans; c++ {
			sum += float64(buf.Data[i*chans+c])
		}
		out[i] = sum / float64(chans) * scale
	}
	return out
}

// lowPass removes everything above ratio*sampleRate with a brick-wall
// filter in the frequency domain.
func lowPass(samples []float64, ratio float64) []float64 {
	n := len(samples)
	if n < 4 || ratio >= 0.5 {
		return samples
	}

	spec := fft.FFTReal(samples)
	cut := int(math.Ceil(ratio * float64(n)))
	for k := cut; k <= n-cut; k++ {
		spec[k] = 0
	}

	back := fft.IFFT(spec)
	out := make([]float64, n)
	for i, v := range back {
		out[i] = real(v)
	}
	return out
}

// detectPulses returns the sample index of each excursion beyond
// threshold*max(|x|). An excursion ends when the signal drops back under
// the threshold or flips polarity.
func detectPulses(samples []float64, threshold float64) []int {
	var peak float64
	for _, v := range samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return nil
	}
	level := threshold * peak

	var (
		out     []int
		inPulse bool
		sign    float64
		best    float64
		bestAt  int
	)
	for i, v := range samples {
		a := math.Abs(v)
		s := math.Copysign(1, v)
		if inPulse && (a < level || s != sign) {
			out = append(out, bestAt)
			inPulse = false
		}
		if !inPulse && a >= level {
			inPulse, sign, best, bestAt = true, s, a, i
			continue
		}
		if inPulse && a > best {
			best, bestAt = a, i
		}
	}
	if inPulse {
		out = append(out, bestAt)
	}
	return out
}
