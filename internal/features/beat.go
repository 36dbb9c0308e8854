package features

import "math"

// beatRingSize bounds the beat-time ring. Beats are at least MinInterval
// apart and expire after TimeWindow, so with the defaults at most six are
// ever live; the extra room absorbs custom tunings without allocating.
const beatRingSize = 32

// minBeatInterval is the shortest inter-beat interval counted toward BPS.
const minBeatInterval = 0.1

// BeatDetector classifies percussive onsets from the kick, snare and hihat
// bands and tracks intensity and tempo.
type BeatDetector struct {
	params BeatParams
	floor  float64

	kickAvg  float64
	snareAvg float64
	hihatAvg float64

	times [beatRingSize]float64 // Chronological; times[:count] are live
	count int

	lastBeat  float64
	hasBeat   bool
	intensity float64
	bps       float64
}

// NewBeatDetector returns a detector with no beat history.
func NewBeatDetector(params BeatParams, noiseFloor float64) *BeatDetector {
	return &BeatDetector{params: params, floor: noiseFloor}
}

// Update feeds one frame and reports whether it is a beat candidate.
// active reports whether the smoothed amplitude is above the activity
// threshold; now is the frame timestamp in seconds.
func (d *BeatDetector) Update(kick, snare, hihat, flux float64, active bool, now float64) bool {
	p := d.params
	d.kickAvg = blend(d.kickAvg, kick, 1-p.Alpha)
	d.snareAvg = blend(d.snareAvg, snare, 1-p.Alpha)
	d.hihatAvg = blend(d.hihatAvg, hihat, 1-p.Alpha)

	combined := p.KickWeight*kick/math.Max(d.kickAvg, d.floor) +
		p.SnareWeight*snare/math.Max(d.snareAvg, d.floor) +
		p.HihatWeight*hihat/math.Max(d.hihatAvg, d.floor)

	elapsed := d.sinceLastBeat(now)
	candidate := active &&
		combined > p.Threshold &&
		flux > p.FluxThreshold &&
		elapsed > p.MinInterval

	// The decay factor is floored at zero: before the first beat the elapsed
	// time is unbounded.
	if candidate {
		decay := math.Max(1-p.DecayRate*elapsed, 0)
		d.intensity = clamp(d.intensity*decay+combined*0.2, p.MinIntensity, 1)
		d.record(now)
	} else {
		decay := math.Max(1-p.DecayRate*0.5*elapsed, 0)
		d.intensity = math.Max(d.intensity*decay, p.MinIntensity)
	}

	// Expired beats leave the ring even when no new beat arrives, so the
	// tempo estimate falls back to 0 once the music stops.
	d.prune(now)
	d.bps = blend(d.bps, d.instantBPS(), p.BPSSmoothing)
	return candidate
}

func (d *BeatDetector) sinceLastBeat(now float64) float64 {
	if !d.hasBeat {
		return math.Inf(1)
	}
	return math.Max(now-d.lastBeat, 0)
}

// record appends now as the latest beat.
func (d *BeatDetector) record(now float64) {
	if d.count == len(d.times) {
		copy(d.times[:], d.times[1:])
		d.count--
	}
	d.times[d.count] = now
	d.count++
	d.lastBeat = now
	d.hasBeat = true
}

// prune drops beats that are at least TimeWindow seconds old.
func (d *BeatDetector) prune(now float64) {
	keep := 0
	for _, t := range d.times[:d.count] {
		if now-t < d.params.TimeWindow {
			d.times[keep] = t
			keep++
		}
	}
	d.count = keep
}

// instantBPS is 1 / mean interval over intervals longer than 0.1 s.
func (d *BeatDetector) instantBPS() float64 {
	var sum float64
	n := 0
	for i := 1; i < d.count; i++ {
		if interval := d.times[i] - d.times[i-1]; interval > minBeatInterval {
			sum += interval
			n++
		}
	}
	if n == 0 || sum <= 0 {
		return 0
	}
	return float64(n) / sum
}

// Phase is the position within the current beat period in [0,1), or 0 when
// no tempo has been established.
func (d *BeatDetector) Phase(now float64) float64 {
	if d.bps <= 0.1 || !d.hasBeat {
		return 0
	}
	since := now - d.lastBeat
	if since < 0 {
		return 0
	}
	phase := math.Mod(since*d.bps, 1)
	if math.IsNaN(phase) {
		return 0
	}
	return phase
}

// Intensity is the current beat intensity in [MinIntensity, 1] once a frame
// has been processed.
func (d *BeatDetector) Intensity() float64 { return d.intensity }

// BPS is the smoothed beats-per-second estimate.
func (d *BeatDetector) BPS() float64 { return d.bps }

// LastBeatTime is the timestamp of the most recent beat, or 0 before any.
func (d *BeatDetector) LastBeatTime() float64 {
	if !d.hasBeat {
		return 0
	}
	return d.lastBeat
}

// AppendBeatTimes appends the live beat timestamps to dst, oldest first.
func (d *BeatDetector) AppendBeatTimes(dst []float64) []float64 {
	return append(dst, d.times[:d.count]...)
}
