package features

import "math"

// Envelope turns a jumpy amplitude target into smooth motion using attack
// and decay rates, momentum, peak hold and a transient boost. Attack and
// decay adapt to spectral flux, beat intensity and silence when enabled.
type Envelope struct {
	tuning EnvelopeTuning

	current float64
	target  float64

	attack   float64
	decay    float64
	momentum float64

	peakHoldTime    float64
	peakHoldCounter float64
	lastPeak        float64

	transientBoost float64
	transientDecay float64

	adaptiveAttack bool
	adaptiveDecay  bool
}

// NewEnvelope returns an envelope at rest, configured from the profile.
func NewEnvelope(profile EnvelopeProfile, tuning EnvelopeTuning, adaptiveAttack, adaptiveDecay bool) *Envelope {
	e := &Envelope{
		tuning:         tuning,
		transientDecay: tuning.TransientDecay,
		adaptiveAttack: adaptiveAttack,
		adaptiveDecay:  adaptiveDecay,
	}
	e.SetProfile(profile)
	return e
}

// SetProfile overwrites attack, decay, momentum and peak hold with a preset.
func (e *Envelope) SetProfile(profile EnvelopeProfile) {
	p := profile.Params()
	e.attack = p.Attack
	e.decay = p.Decay
	e.momentum = p.Momentum
	e.peakHoldTime = p.PeakHold
}

// Configure sets the four profile values directly, clamped to usable ranges.
func (e *Envelope) Configure(attack, decay, momentum, peakHold float64) {
	e.attack = clamp(attack, 0.001, 1)
	e.decay = clamp(decay, 0.001, 1)
	e.momentum = clamp(momentum, 0, 1)
	e.peakHoldTime = clamp(peakHold, 0, 1)
}

// SetAdaptive enables or disables content-driven attack and decay.
func (e *Envelope) SetAdaptive(attack, decay bool) {
	e.adaptiveAttack = attack
	e.adaptiveDecay = decay
}

// Adaptive reports whether attack and decay follow the content.
func (e *Envelope) Adaptive() (attack, decay bool) {
	return e.adaptiveAttack, e.adaptiveDecay
}

// Params reports the current attack, decay, momentum and peak hold.
func (e *Envelope) Params() EnvelopeParams {
	return EnvelopeParams{Attack: e.attack, Decay: e.decay, Momentum: e.momentum, PeakHold: e.peakHoldTime}
}

// Value is the current envelope output.
func (e *Envelope) Value() float64 { return e.current }

// Update advances the envelope by dt seconds toward target and returns the
// new value in [0,1].
func (e *Envelope) Update(target, dt, flux, beatIntensity float64) float64 {
	t := e.tuning
	e.target = target

	if target > e.lastPeak*t.PeakDetectionThreshold {
		e.lastPeak = target
		e.peakHoldCounter = e.peakHoldTime
		if target > e.current*1.5 {
			e.transientBoost = (target - e.current) * t.TransientBoostFactor
		}
	}

	if e.peakHoldCounter > 0 {
		e.peakHoldCounter -= dt
		// Hold nearly flat while the counter runs.
		if e.peakHoldCounter > 0 && target < e.current {
			e.target = e.current * 0.95
		}
	}

	attack := e.attack
	decay := e.decay
	if e.adaptiveAttack {
		attack += flux * t.AdaptiveAttackMultiplier
		attack += beatIntensity * t.AdaptiveAttackMultiplier * 0.5
		attack = math.Min(attack, 0.8)
	}
	if e.adaptiveDecay {
		if flux < 0.1 && target > 0.3 {
			decay *= 1 - t.AdaptiveDecayMultiplier
		}
		if target < t.SilenceThreshold {
			decay *= 1 + t.AdaptiveDecayMultiplier
		}
	}

	rate := decay
	if e.target > e.current {
		rate = attack
	}

	e.current += (e.target - e.current) * rate * e.momentum
	e.current += e.transientBoost
	e.transientBoost *= e.transientDecay
	e.current = clamp01(e.current)
	return e.current
}

// Video amplitude constants.
const (
	silenceLevel        = 1e-4 // RMS at or below this is silence
	baselineRate        = 0.001
	activitySmoothing   = 0.1
	peakTrackerDecay    = 0.995
	maxSilenceFrames    = 100
	initialBaseline     = 0.001
	initialPeakTracker  = 0.01
	transientFluxLimit  = 0.1
	transientFluxWeight = 0.5
)

// VideoAmplitude maps raw RMS onto [0,1] where roughly 0 is silence, 0.5 is
// the typical level of the material and 1 is very busy or loud. It keeps an
// adaptive baseline so the mapping follows the programme level.
type VideoAmplitude struct {
	baseline       float64
	peakTracker    float64
	silenceCounter int
	activity       float64
}

// NewVideoAmplitude returns a tracker with a small non-zero baseline.
func NewVideoAmplitude() *VideoAmplitude {
	return &VideoAmplitude{baseline: initialBaseline, peakTracker: initialPeakTracker}
}

// Update consumes one RMS value and the frame's spectral flux.
func (v *VideoAmplitude) Update(raw, flux float64) float64 {
	if raw > silenceLevel {
		v.baseline = blend(v.baseline, raw, baselineRate)
		v.silenceCounter = 0
	} else if v.silenceCounter < maxSilenceFrames {
		v.silenceCounter++
	}

	if raw > v.peakTracker {
		v.peakTracker = raw
	} else {
		v.peakTracker *= peakTrackerDecay
	}

	var ratio float64
	if v.baseline > silenceLevel {
		ratio = raw / v.baseline
	}
	v.activity = blend(v.activity, ratio, activitySmoothing)

	if v.silenceCounter >= maxSilenceFrames || raw <= silenceLevel {
		return 0
	}

	scaled := math.Log(ratio+0.1) / math.Log(1.1) * 0.5
	curve := sigmoid((scaled - 0.5) * 4)
	direct := math.Max(ratio-1, 0)*0.5 + 0.5
	level := clamp01(curve*0.7 + direct*0.3)

	if flux > transientFluxLimit {
		level *= 1 + (flux-transientFluxLimit)*transientFluxWeight
	}
	return clamp01(level)
}

// Baseline is the adaptive reference level.
func (v *VideoAmplitude) Baseline() float64 { return v.baseline }

// Activity is the smoothed ratio of RMS to baseline.
func (v *VideoAmplitude) Activity() float64 { return v.activity }
