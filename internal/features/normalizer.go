package features

import "math"

// Band normaliser weights.
const (
	rawWeight       = 0.1  // Weight of the raw band mean in the first blend
	maxRelaxWeight  = 0.05 // Weight of max(raw, runningMax) in the running max
	postWeight      = 0.15 // Weight of the normalised value in the second blend
	peakHoldDecay   = 0.95 // Per-frame decay applied to peak holds
	minDeltaTime    = 0.001
	initialMaxLevel = 1.0
	balanceFloor    = 1e-6
)

// BandState is the adaptive normaliser for one spectral band.
//
// The running max closes 5% of the gap toward any louder raw value per
// frame. When raw is at or below it the blend reproduces the current max, so
// it never falls; a loud passage permanently raises the reference.
type BandState struct {
	track

	value      float64 // Output of the last frame; also the blend baseline
	runningMax float64
	velocity   float64
	peakHold   float64
	velocities *HistoryWindow
}

func newBandState(historySize int) BandState {
	return BandState{
		track:      newTrack(historySize),
		runningMax: initialMaxLevel,
		velocities: NewHistoryWindow(historySize),
	}
}

// update runs one frame of the normaliser and returns the band value in [0,1].
func (b *BandState) update(raw, dt float64, cfg *Config) float64 {
	smoothed := blend(b.value, raw, rawWeight)
	b.runningMax = b.runningMax*(1-maxRelaxWeight) + math.Max(raw, b.runningMax)*maxRelaxWeight
	normalized := clamp01(smoothed / math.Max(b.runningMax, cfg.NoiseFloor))
	v := clamp01(blend(b.value, normalized, postWeight))

	b.velocity = (v - b.value) / math.Max(dt, minDeltaTime)
	b.velocities.Push(b.velocity)
	b.value = v
	b.peakHold = math.Max(b.peakHold, v) * peakHoldDecay
	b.observe(v, cfg.Gain)
	return v
}

// Value is the latest normalised band value.
func (b *BandState) Value() float64 { return b.value }

// Dynamic is the latest smoothed dynamic-range value.
func (b *BandState) Dynamic() float64 { return b.dynamic }

// Velocity is the latest rate of change in units per second.
func (b *BandState) Velocity() float64 { return b.velocity }

// PeakHold is the decaying peak of recent values.
func (b *BandState) PeakHold() float64 { return b.peakHold }

// logScale maps v onto a perceptual scale: clamp(1 + ln(v)/10) for v > 0.
func logScale(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return clamp01(1 + math.Log(v)/10)
}

// balance returns a / (a + b) with the denominator floored.
func balance(a, b float64) float64 {
	return clamp01(a / math.Max(a+b, balanceFloor))
}
