package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Dynamic-range constants shared by every tracked metric.
const (
	dynamicSharpness = 0.5 // Sigmoid slope applied to the z-score
	dynamicSmoothing = 0.8 // Weight kept by the previous dynamic value
	minStdDev        = 1e-6
)

// HistoryWindow is a fixed-capacity ring of recent values with running
// min and max. Capacity is fixed at construction and Push never allocates.
type HistoryWindow struct {
	buf   []float64
	next  int
	count int
	min   float64
	max   float64
}

// NewHistoryWindow returns an empty window. Capacities below 1 are raised to 1.
func NewHistoryWindow(capacity int) *HistoryWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryWindow{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value once the window is full.
// Min and max are updated incrementally and recomputed from the buffer only
// when the evicted value was the current extremum.
func (h *HistoryWindow) Push(v float64) {
	full := h.count == len(h.buf)
	evicted := h.buf[h.next]

	h.buf[h.next] = v
	h.next = (h.next + 1) % len(h.buf)
	if !full {
		h.count++
	}

	if h.count == 1 {
		h.min, h.max = v, v
		return
	}
	if v > h.max {
		h.max = v
	}
	if v < h.min {
		h.min = v
	}
	if full && (evicted == h.min || evicted == h.max) {
		h.recompute()
	}
}

func (h *HistoryWindow) recompute() {
	values := h.Values()
	h.min, h.max = values[0], values[0]
	for _, v := range values[1:] {
		if v < h.min {
			h.min = v
		}
		if v > h.max {
			h.max = v
		}
	}
}

// Len is the number of stored values.
func (h *HistoryWindow) Len() int { return h.count }

// Cap is the fixed capacity.
func (h *HistoryWindow) Cap() int { return len(h.buf) }

// Min returns the smallest stored value, or 0 when empty.
func (h *HistoryWindow) Min() float64 {
	if h.count == 0 {
		return 0
	}
	return h.min
}

// Max returns the largest stored value, or 0 when empty.
func (h *HistoryWindow) Max() float64 {
	if h.count == 0 {
		return 0
	}
	return h.max
}

// Values returns the stored values in storage order (not chronological).
// The slice aliases the window and is only valid until the next Push.
func (h *HistoryWindow) Values() []float64 {
	return h.buf[:h.count]
}

// Last appends up to n of the most recent values to dst, oldest first.
func (h *HistoryWindow) Last(n int, dst []float64) []float64 {
	if n > h.count {
		n = h.count
	}
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		dst = append(dst, h.buf[(start+i)%len(h.buf)])
	}
	return dst
}

// Normalize maps v onto the window's min-max range. A flat window returns v.
func (h *HistoryWindow) Normalize(v float64) float64 {
	if h.count == 0 || h.max == h.min {
		return v
	}
	return (v - h.min) / (h.max - h.min)
}

// DynamicNormalize returns sigmoid(sharpness * z) where z is the z-score of
// value against the window. Fewer than two samples give exactly 0.5.
func (h *HistoryWindow) DynamicNormalize(value, sharpness float64) float64 {
	if h.count < 2 {
		return 0.5
	}
	mean, std := stat.PopMeanStdDev(h.Values(), nil)
	if !(std > minStdDev) {
		std = minStdDev
	}
	return clamp01(sigmoid(sharpness * (value - mean) / std))
}

// track is the dynamic-range state every Band carries: its history, the
// smoothed dynamic value and a diagnostic gain that steers the band toward
// the configured target range.
type track struct {
	history *HistoryWindow
	dynamic float64
	gain    float64
}

func newTrack(capacity int) track {
	return track{
		history: NewHistoryWindow(capacity),
		dynamic: 0.5,
		gain:    1,
	}
}

// observe records v and returns the updated smoothed dynamic value.
func (t *track) observe(v float64, gp GainParams) float64 {
	t.history.Push(v)
	target := t.history.DynamicNormalize(v, dynamicSharpness)
	t.dynamic = clamp01(blend(t.dynamic, target, 1-dynamicSmoothing))

	// The gain never scales emitted values; it reports how far the band sits
	// from the target range of its own recent history.
	position := t.history.Normalize(v * t.gain)
	switch {
	case position < gp.TargetMin:
		t.gain += gp.AdjustRate
	case position > gp.TargetMax:
		t.gain -= gp.AdjustRate
	}
	t.gain = clamp(t.gain, gp.MinGain, gp.MaxGain)
	return t.dynamic
}

// blend moves prev toward next by weight.
func blend(prev, next, weight float64) float64 {
	return prev*(1-weight) + next*weight
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clamp01 also maps NaN to 0 so a single bad value cannot poison the state.
func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
