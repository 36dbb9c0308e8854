package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Spectral descriptor constants.
const (
	chromaFloor   = 1e-6 // Bins at or below this magnitude are ignored by the chromagram
	centroidFloor = 1e-6 // Total magnitude below which the centroid is 0
	referenceA4   = 440.0
	midiA4        = 69.0
)

// binRange returns the [start, end) bin indexes covering lo..hi Hz, clipped
// to n bins, using floor for the start and ceil for the end.
func binRange(lo, hi, binWidth float64, n int) (int, int) {
	start := int(math.Floor(lo / binWidth))
	end := int(math.Ceil(hi / binWidth))
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// bandMean is the arithmetic mean of the magnitudes between lo and hi Hz,
// or 0 when the range holds no bins.
func bandMean(mags []float64, r FrequencyRange, binWidth float64) float64 {
	start, end := binRange(r.Min, r.Max, binWidth, len(mags))
	if end <= start {
		return 0
	}
	return meanOf(mags[start:end])
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// binCentre is the centre frequency of bin i.
func binCentre(i int, binWidth float64) float64 {
	return (float64(i) + 0.5) * binWidth
}

// spectralCentroid is the magnitude-weighted mean bin frequency divided by
// Nyquist.
func spectralCentroid(mags []float64, binWidth, nyquist float64) float64 {
	var weighted, total float64
	for i, m := range mags {
		weighted += binCentre(i, binWidth) * m
		total += m
	}
	if total <= centroidFloor || nyquist <= 0 {
		return 0
	}
	return clamp01(weighted / total / nyquist)
}

// chromagram folds every audible bin into its pitch class and max-normalises
// the twelve classes.
func chromagram(mags []float64, binWidth float64, dst *[12]float64) {
	*dst = [12]float64{}
	for i, m := range mags {
		if m <= chromaFloor {
			continue
		}
		freq := binCentre(i, binWidth)
		if freq <= 0 {
			continue
		}
		midi := midiA4 + 12*math.Log2(freq/referenceA4)
		if midi < 0 {
			continue
		}
		dst[int(math.Round(midi))%12] += m
	}

	var peak float64
	for _, v := range dst {
		peak = math.Max(peak, v)
	}
	if peak > chromaFloor {
		for i := range dst {
			dst[i] /= peak
		}
	}
}

// spectralFlux is the mean positive change from prev to cur. It is 0 without
// a comparable previous frame.
func spectralFlux(cur, prev []float64) float64 {
	if len(prev) == 0 || len(prev) != len(cur) {
		return 0
	}
	var flux float64
	for i, c := range cur {
		if d := c - prev[i]; d > 0 {
			flux += d
		}
	}
	return flux / float64(len(cur))
}

// onsetStrength is spectral flux in the log-magnitude domain, clamped to [0,1].
func onsetStrength(cur, prev []float64) float64 {
	if len(prev) == 0 || len(prev) != len(cur) {
		return 0
	}
	var onset float64
	for i, c := range cur {
		if d := safeLog(c) - safeLog(prev[i]); d > 0 {
			onset += d
		}
	}
	return clamp01(onset / float64(len(cur)))
}

func safeLog(v float64) float64 {
	if v > 0 {
		return math.Log(v)
	}
	return 0
}

// rms is the root mean square of the magnitudes.
func rms(mags []float64) float64 {
	var sum float64
	for _, m := range mags {
		sum += m * m
	}
	return math.Sqrt(sum / float64(len(mags)))
}

// harmonicScore counts fundamentals in the vocal band that carry at least
// half of their checked even harmonics, scaled to [0,1].
func harmonicScore(mags []float64, binWidth float64, vp VocalParams) float64 {
	start, end := binRange(vp.Range.Min, vp.Range.Max, binWidth, len(mags))
	if end <= start {
		return 0
	}
	slice := mags[start:end]

	var peak float64
	for _, v := range slice {
		peak = math.Max(peak, v)
	}
	if peak <= 0 {
		return 0
	}
	norm := func(i int) float64 {
		if i < 0 || i >= len(slice) {
			return 0
		}
		return slice[i] / peak
	}

	// The scan spans half the unclipped vocal band so short frames still
	// look at the same fundamentals.
	_, fullEnd := binRange(vp.Range.Min, vp.Range.Max, binWidth, math.MaxInt32)
	needed := vp.HarmonicCount / 2
	count := 0
	for fb := 0; fb < (fullEnd-start)/2; fb++ {
		if norm(fb) <= vp.HarmonicThreshold {
			continue
		}
		fundamental := float64(fb+start) * binWidth
		found := 0
		for h := 2; h <= vp.HarmonicCount+1; h += 2 {
			hb := int(math.Round(fundamental*float64(h)/binWidth)) - start
			if norm(hb) > vp.HarmonicThreshold {
				found++
			}
		}
		if found >= needed {
			count++
		}
	}
	return math.Min(float64(count)/5, 1)
}

// varianceScore is the population variance of values divided by maxVariance,
// capped at 1. Fewer than two values give 0.
func varianceScore(values []float64, maxVariance float64) float64 {
	if len(values) < 2 || maxVariance <= 0 {
		return 0
	}
	return clamp01(stat.PopVariance(values, nil) / maxVariance)
}
