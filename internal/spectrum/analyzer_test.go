package spectrum

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const testSampleRate = 44100.0

// sine returns n samples of a sine at freq Hz and the given peak amplitude.
func sine(n int, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func newTestAnalyzer(t *testing.T, opts Options) *Analyzer {
	t.Helper()
	if opts.SampleRate == 0 {
		opts.SampleRate = testSampleRate
	}
	a, err := NewAnalyzer(opts)
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	return a
}

func TestNewAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no sample rate", Options{}},
		{"odd fft", Options{SampleRate: testSampleRate, FFTSize: 1023}},
		{"negative hop", Options{SampleRate: testSampleRate, Hop: -1}},
		{"negative hum", Options{SampleRate: testSampleRate, HumFrequency: -50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyzer(tt.opts); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("NewAnalyzer(%+v) error = %v, want ErrInvalidOptions", tt.opts, err)
			}
		})
	}
}

func TestMagnitudesMatchReferenceFFT(t *testing.T) {
	a := newTestAnalyzer(t, Options{})
	block := sine(DefaultFFTSize, 440, 0.5)
	for i := range block {
		block[i] += 0.1 * math.Sin(float64(i)*0.37)
	}

	got, err := a.Magnitudes(block)
	if err != nil {
		t.Fatalf("Magnitudes() error = %v", err)
	}

	windowed := make([]float64, len(block))
	hann := window.Hann(len(block))
	for i := range block {
		windowed[i] = block[i] * hann[i]
	}
	ref := fft.FFTReal(windowed)
	for i := range got {
		want := cmplx.Abs(ref[i])
		if math.Abs(got[i]-want) > 1e-9*math.Max(1, want) {
			t.Fatalf("bin %d = %v, want %v from the reference transform", i, got[i], want)
		}
	}
}

func TestMagnitudesPeakAtToneBin(t *testing.T) {
	a := newTestAnalyzer(t, Options{})
	binWidth := testSampleRate / DefaultFFTSize
	const bin = 40
	mags, _ := a.Magnitudes(sine(DefaultFFTSize, bin*binWidth, 0.8))

	peak := 0
	for i := range mags {
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	if peak != bin {
		t.Errorf("peak bin = %d, want %d", peak, bin)
	}
	// Unnormalised: amplitude * N/2, halved by the Hann window's coherent gain
	if want := 0.8 * DefaultFFTSize / 4; math.Abs(mags[bin]-want) > want*0.01 {
		t.Errorf("peak magnitude = %v, want ~%v", mags[bin], want)
	}
}

func TestProcessEmitsOnHop(t *testing.T) {
	a := newTestAnalyzer(t, Options{})
	var frames []features.Frame
	emit := func(f features.Frame) {
		if len(f.Magnitudes) != a.Bins() {
			t.Fatalf("frame has %d bins, want %d", len(f.Magnitudes), a.Bins())
		}
		frames = append(frames, f)
	}

	samples := sine(10*DefaultHop+100, 1000, 0.5)
	// Uneven chunks must not change the framing
	a.Process(samples[:333], emit)
	a.Process(samples[333:5000], emit)
	a.Process(samples[5000:], emit)

	if len(frames) != 10 {
		t.Fatalf("emitted %d frames, want 10", len(frames))
	}
	for i, f := range frames {
		if f.DeltaTime != DefaultHop/testSampleRate {
			t.Errorf("frame %d DeltaTime = %v, want %v", i, f.DeltaTime, DefaultHop/testSampleRate)
		}
		if want := float64(i+1) * DefaultHop / testSampleRate; math.Abs(f.Timestamp-want) > 1e-12 {
			t.Errorf("frame %d Timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}
	if a.Frames() != 10 {
		t.Errorf("Frames() = %d, want 10", a.Frames())
	}
}

func TestProcessMatchesBlockAnalysis(t *testing.T) {
	a := newTestAnalyzer(t, Options{Hop: DefaultFFTSize})
	b := newTestAnalyzer(t, Options{})
	samples := sine(DefaultFFTSize, 300, 0.3)

	var streamed []float64
	a.Process(samples, func(f features.Frame) {
		streamed = append([]float64(nil), f.Magnitudes...)
	})
	block, _ := b.Magnitudes(samples)

	if len(streamed) != len(block) {
		t.Fatalf("streamed %d bins, want %d", len(streamed), len(block))
	}
	for i := range block {
		if streamed[i] != block[i] {
			t.Fatalf("bin %d streamed %v, block %v", i, streamed[i], block[i])
		}
	}
}

func TestHumNotch(t *testing.T) {
	plain := newTestAnalyzer(t, Options{})
	notched := newTestAnalyzer(t, Options{HumFrequency: 50})
	block := sine(DefaultFFTSize, 50, 0.5)

	p, _ := plain.Magnitudes(block)
	hum := math.Round(50 / (testSampleRate / DefaultFFTSize))
	want := p[int(hum)] * humAttenuation

	n, _ := notched.Magnitudes(block)
	if got := n[int(hum)]; math.Abs(got-want) > 1e-12 {
		t.Errorf("hum bin = %v, want %v", got, want)
	}
	// Bins well away from the harmonics are untouched
	if n[100] != p[100] {
		t.Errorf("bin 100 = %v, want %v", n[100], p[100])
	}
}
