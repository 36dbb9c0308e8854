package features

import (
	"math"
	"testing"
)

func TestEnvelopeProfiles(t *testing.T) {
	tests := []struct {
		profile EnvelopeProfile
		want    EnvelopeParams
	}{
		{ProfileSmooth, EnvelopeParams{0.08, 0.03, 0.9, 0.15}},
		{ProfileResponsive, EnvelopeParams{0.25, 0.12, 0.6, 0.05}},
		{ProfilePunchy, EnvelopeParams{0.4, 0.08, 0.4, 0.08}},
		{ProfileSustained, EnvelopeParams{0.12, 0.02, 0.95, 0.25}},
	}
	tuning := DefaultConfig().Envelope
	for _, tt := range tests {
		t.Run(tt.profile.String(), func(t *testing.T) {
			e := NewEnvelope(ProfileResponsive, tuning, true, true)
			e.SetProfile(tt.profile)
			if got := e.Params(); got != tt.want {
				t.Errorf("Params() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEnvelopeConfigureClamps(t *testing.T) {
	e := NewEnvelope(ProfileResponsive, DefaultConfig().Envelope, false, false)
	e.Configure(0, 5, -1, 2)
	want := EnvelopeParams{Attack: 0.001, Decay: 1, Momentum: 0, PeakHold: 1}
	if got := e.Params(); got != want {
		t.Errorf("Params() = %+v, want %+v", got, want)
	}
}

func TestEnvelopeRisesAndFalls(t *testing.T) {
	e := NewEnvelope(ProfileResponsive, DefaultConfig().Envelope, true, true)
	const dt = 1.0 / 60

	var v float64
	for i := 0; i < 60; i++ {
		v = e.Update(0.8, dt, 0.05, 0.01)
	}
	// The transient boost overshoots first, then the envelope settles
	if v < 0.7 || v > 1 {
		t.Errorf("envelope after 1s at target 0.8 = %v, want within [0.7,1]", v)
	}

	for i := 0; i < 600; i++ {
		v = e.Update(0, dt, 0, 0.01)
	}
	if v > 0.01 {
		t.Errorf("envelope after 10s of silence = %v, want near 0", v)
	}
}

func TestEnvelopeStaysInRange(t *testing.T) {
	e := NewEnvelope(ProfilePunchy, DefaultConfig().Envelope, true, true)
	targets := []float64{0, 1, 0, 1, 0.5, 1, 0, 0, 1}
	for i := 0; i < 1000; i++ {
		target := targets[i%len(targets)]
		v := e.Update(target, 1.0/60, 10, 1)
		if math.IsNaN(v) || v < 0 || v > 1 {
			t.Fatalf("frame %d: Update = %v, want within [0,1]", i, v)
		}
	}
}

func TestVideoAmplitude(t *testing.T) {
	t.Run("silence is zero", func(t *testing.T) {
		v := NewVideoAmplitude()
		for i := 0; i < 150; i++ {
			if got := v.Update(0, 0); got != 0 {
				t.Fatalf("frame %d: Update(0) = %v, want 0", i, got)
			}
		}
	})

	t.Run("steady level sits mid range", func(t *testing.T) {
		v := NewVideoAmplitude()
		var got float64
		for i := 0; i < 20000; i++ {
			got = v.Update(0.05, 0)
		}
		// Once the baseline has caught up the ratio is 1
		if got < 0.4 || got > 0.8 {
			t.Errorf("Update at a steady level = %v, want roughly mid range", got)
		}
		if math.Abs(v.Baseline()-0.05) > 0.001 {
			t.Errorf("Baseline() = %v, want ~0.05", v.Baseline())
		}
	})

	t.Run("flux boost is clamped", func(t *testing.T) {
		v := NewVideoAmplitude()
		for i := 0; i < 100; i++ {
			if got := v.Update(1e9, 1e9); got < 0 || got > 1 {
				t.Fatalf("frame %d: Update = %v, want within [0,1]", i, got)
			}
		}
	})
}
