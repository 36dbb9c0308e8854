// Package spectrum frames mono PCM into Hann-windowed FFT magnitude spectra
// for the feature engine.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/linuxmatters/jivewave/internal/mains"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Defaults give 1024 bins at roughly 60 frames per second at 44.1 kHz.
const (
	DefaultFFTSize = 2048
	DefaultHop     = 735

	humHarmonics   = 4
	humAttenuation = 0.1
	humWidth       = 1 // Bins either side of each hum harmonic
)

// ErrInvalidOptions is wrapped by every error NewAnalyzer returns.
var ErrInvalidOptions = errors.New("invalid spectrum options")

// Options configure an Analyzer.
type Options struct {
	SampleRate   float64
	FFTSize      int // Must be even; defaults to DefaultFFTSize
	Hop          int // Samples between frames; defaults to DefaultHop
	HumFrequency int // Mains frequency to notch in Hz; 0 disables the notch
}

// Analyzer turns a stream of samples into magnitude frames. It is owned by a
// single goroutine, like the Processor it feeds.
type Analyzer struct {
	opts       Options
	binWidth   float64
	hopSeconds float64

	window []float64
	fft    *fourier.FFT

	ring    []float64 // Last FFTSize samples, circular
	pos     int       // Next write position in ring
	pending int       // Samples since the last frame

	frame  []float64 // Windowed samples in chronological order
	coeffs []complex128
	mags   []float64
	notch  []int

	frames uint64
}

// NewAnalyzer validates opts and allocates every buffer up front.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.FFTSize == 0 {
		opts.FFTSize = DefaultFFTSize
	}
	if opts.Hop == 0 {
		opts.Hop = DefaultHop
	}
	switch {
	case !(opts.SampleRate > 0):
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidOptions, opts.SampleRate)
	case opts.FFTSize < 2 || opts.FFTSize%2 != 0:
		return nil, fmt.Errorf("%w: FFT size %d must be even", ErrInvalidOptions, opts.FFTSize)
	case opts.Hop < 1:
		return nil, fmt.Errorf("%w: hop %d", ErrInvalidOptions, opts.Hop)
	case opts.HumFrequency < 0:
		return nil, fmt.Errorf("%w: hum frequency %d", ErrInvalidOptions, opts.HumFrequency)
	}

	bins := opts.FFTSize / 2
	a := &Analyzer{
		opts:       opts,
		binWidth:   opts.SampleRate / float64(opts.FFTSize),
		hopSeconds: float64(opts.Hop) / opts.SampleRate,
		window:     window.Hann(opts.FFTSize),
		fft:        fourier.NewFFT(opts.FFTSize),
		ring:       make([]float64, opts.FFTSize),
		frame:      make([]float64, opts.FFTSize),
		coeffs:     make([]complex128, bins+1),
		mags:       make([]float64, bins),
	}
	for _, hz := range mains.Harmonics(opts.HumFrequency, humHarmonics) {
		centre := int(math.Round(hz / a.binWidth))
		for b := centre - humWidth; b <= centre+humWidth; b++ {
			if b >= 0 && b < bins && !slices.Contains(a.notch, b) {
				a.notch = append(a.notch, b)
			}
		}
	}
	return a, nil
}

// Bins is the number of magnitudes in every frame.
func (a *Analyzer) Bins() int { return len(a.mags) }

// FrameInterval is the time between frames in seconds.
func (a *Analyzer) FrameInterval() float64 { return a.hopSeconds }

// Frames is the number of frames emitted so far.
func (a *Analyzer) Frames() uint64 { return a.frames }

// Process appends samples and calls emit once per completed hop. The frame's
// Magnitudes slice is reused by the next frame, so emit must not keep it.
func (a *Analyzer) Process(samples []float64, emit func(features.Frame)) {
	size := len(a.ring)
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % size
		a.pending++
		if a.pending < a.opts.Hop {
			continue
		}
		a.pending = 0

		// Unroll the ring oldest first; pos now points at the oldest sample.
		n := copy(a.frame, a.ring[a.pos:])
		copy(a.frame[n:], a.ring[:a.pos])
		a.transform(a.frame)

		a.frames++
		emit(features.Frame{
			Magnitudes: a.mags,
			DeltaTime:  a.hopSeconds,
			Timestamp:  float64(a.frames) * a.hopSeconds,
		})
	}
}

// Magnitudes analyses one block of exactly FFTSize samples and returns the
// unnormalised magnitudes. The result aliases the analyser's buffer.
func (a *Analyzer) Magnitudes(block []float64) ([]float64, error) {
	if len(block) != len(a.frame) {
		return nil, fmt.Errorf("block of %d samples, want %d", len(block), len(a.frame))
	}
	copy(a.frame, block)
	a.transform(a.frame)
	return a.mags, nil
}

// transform windows buf in place and fills mags.
func (a *Analyzer) transform(buf []float64) {
	for i := range buf {
		buf[i] *= a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, buf)

	// Magnitudes stay unnormalised; the engine's thresholds are tuned to |X_k|.
	for i := range a.mags {
		a.mags[i] = cmplx.Abs(a.coeffs[i])
	}
	for _, b := range a.notch {
		a.mags[b] *= humAttenuation
	}
}
