package features

import "math"

// QuantizedBandCount is the number of log-spaced visualisation bands.
const QuantizedBandCount = 32

const (
	quantMinFreq    = 20.0
	rollingMaxAlpha = 0.05
	rollingMaxFloor = 1e-6
)

// Quantizer averages the spectrum into 32 log-spaced bands, normalises them
// by a rolling maximum and quantises to 8 bits.
//
// Band edges are converted to bins with (freq / nyquist) * N, flooring the
// start and taking the ceiling of the end, so neighbouring bands share an
// edge bin.
type Quantizer struct {
	rollingMax float64
	values     [QuantizedBandCount]uint8

	edges   [QuantizedBandCount][2]int
	layoutN int
	layoutF float64
}

// NewQuantizer returns a quantiser with a rolling max of 1.
func NewQuantizer() *Quantizer {
	return &Quantizer{rollingMax: 1}
}

func (q *Quantizer) layout(n int, nyquist float64) {
	if n == q.layoutN && nyquist == q.layoutF {
		return
	}
	q.layoutN, q.layoutF = n, nyquist
	ratio := nyquist / quantMinFreq
	for b := range q.edges {
		start := quantMinFreq * math.Pow(ratio, float64(b)/QuantizedBandCount)
		end := quantMinFreq * math.Pow(ratio, float64(b+1)/QuantizedBandCount)
		lo := int(math.Floor(start / nyquist * float64(n)))
		hi := int(math.Ceil(end / nyquist * float64(n)))
		q.edges[b] = [2]int{min(max(lo, 0), n), min(max(hi, 0), n)}
	}
}

// Update recomputes the quantised bands from one frame.
func (q *Quantizer) Update(mags []float64, sampleRate float64) {
	if len(mags) == 0 {
		return
	}
	q.layout(len(mags), sampleRate/2)

	var bands [QuantizedBandCount]float64
	var peak float64
	for b, e := range q.edges {
		if e[1] > e[0] {
			bands[b] = meanOf(mags[e[0]:e[1]])
		}
		peak = math.Max(peak, bands[b])
	}

	q.rollingMax = blend(q.rollingMax, peak, rollingMaxAlpha)
	norm := math.Max(q.rollingMax, rollingMaxFloor)
	for b, v := range bands {
		q.values[b] = uint8(math.Round(clamp01(v/norm) * 255))
	}
}

// Values returns the latest quantised bands.
func (q *Quantizer) Values() [QuantizedBandCount]uint8 { return q.values }

// RollingMax is the current normalisation reference.
func (q *Quantizer) RollingMax() float64 { return q.rollingMax }
