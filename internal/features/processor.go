package features

import (
	"fmt"
	"math"
)

const (
	// maxMagnitude caps input bins so squares and sums stay finite.
	maxMagnitude = 1e15

	fadeRate = 0.02
)

// Processor is the feature engine. It is not safe for concurrent use: one
// goroutine owns it and calls Update once per frame.
type Processor struct {
	cfg Config

	bands        [spectralBands]BandState
	amplitude    track
	rawAmplitude track
	vocal        track

	beat        *BeatDetector
	envelope    *Envelope
	video       *VideoAmplitude
	grid        FrequencyGrid
	quantizer   *Quantizer
	spectrogram *Spectrogram // nil unless DetailFull

	cur, prev []float64
	hasPrev   bool
	recent    []float64 // Scratch for the vocal variance window

	time         float64
	adjustedTime float64

	smoothed    float64 // Envelope output of the last non-empty frame
	rawRMS      float64
	ampVelocity float64
	ampPeakHold float64

	flux     float64
	centroid float64
	onset    float64
	chroma   [12]float64
	vocalVal float64

	lastEmit   float64
	hasEmitted bool
	fade       float64

	pending            Snapshot
	hasPending         bool
	pendingSpectrogram bool // The pending frame had bins, so carries a spectrogram

	frames uint64
}

// NewProcessor validates cfg and returns a processor holding a copy of it.
func NewProcessor(cfg *Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new processor: %w", err)
	}
	p := &Processor{
		cfg:          *cfg,
		amplitude:    newTrack(cfg.HistorySizes[Amplitude]),
		rawAmplitude: newTrack(cfg.HistorySizes[RawAmplitude]),
		vocal:        newTrack(cfg.HistorySizes[Vocal]),
		beat:         NewBeatDetector(cfg.Beat, cfg.NoiseFloor),
		envelope:     NewEnvelope(cfg.EnvelopeProfile, cfg.Envelope, cfg.AdaptiveAttack, cfg.AdaptiveDecay),
		video:        NewVideoAmplitude(),
		quantizer:    NewQuantizer(),
		recent:       make([]float64, 0, cfg.Vocal.VarianceWindow),
	}
	for b := range p.bands {
		p.bands[b] = newBandState(cfg.HistorySizes[b])
	}
	if cfg.DetailLevel == DetailFull {
		p.spectrogram = &Spectrogram{}
	}
	return p, nil
}

// Update processes one frame. It returns the new snapshot and true when the
// emission interval has elapsed; otherwise the snapshot is kept as the
// pending one, replacing any earlier pending snapshot, and Update returns
// false.
func (p *Processor) Update(f Frame) (Snapshot, bool) {
	p.frames++
	dt := f.DeltaTime
	if !(dt > 0) || math.IsInf(dt, 1) {
		dt = 0
	}

	p.time += dt
	p.adjustedTime += dt * p.smoothed

	now := f.Timestamp
	if math.IsNaN(now) || math.IsInf(now, 0) {
		now = p.time
	}

	var s Snapshot
	withBins := len(f.Magnitudes) > 0
	if withBins {
		p.process(f.Magnitudes, dt, now)
		s = p.snapshot(now)
	} else {
		s = p.emptySnapshot()
	}
	p.fillClock(&s)

	interval := p.cfg.UpdateInterval.Seconds()
	if !p.hasEmitted || now-p.lastEmit >= interval {
		p.hasEmitted = true
		p.lastEmit = now
		p.fade = clamp01(blend(p.fade, clamp01(p.amplitude.dynamic), fadeRate))
		p.hasPending = false
		p.pending = Snapshot{}
		p.attachSlices(&s, withBins)
		return s, true
	}
	p.pending = s
	p.hasPending = true
	p.pendingSpectrogram = withBins
	return Snapshot{}, false
}

// attachSlices fills the snapshot's slice fields. It runs only for snapshots
// that leave the processor, so throttled frames do not allocate. Between a
// frame and this call no state changes, so the slices match the frame.
func (p *Processor) attachSlices(s *Snapshot, withSpectrogram bool) {
	s.BeatTimes = p.beat.AppendBeatTimes(make([]float64, 0, p.beat.count))
	s.SpectrogramData = zeroSpectrogram
	if withSpectrogram && p.spectrogram != nil {
		s.SpectrogramData = p.spectrogram.Flatten()
	}
}

// TakePending returns and clears the most recent snapshot that Update held
// back because of throttling.
func (p *Processor) TakePending() (Snapshot, bool) {
	if !p.hasPending {
		return Snapshot{}, false
	}
	s := p.pending
	p.pending = Snapshot{}
	p.hasPending = false
	p.attachSlices(&s, p.pendingSpectrogram)
	return s, true
}

// process runs every stage over a non-empty frame.
func (p *Processor) process(mags []float64, dt, now float64) {
	cur := p.sanitize(mags)
	n := len(cur)
	sampleRate := p.cfg.SampleRate
	binWidth := sampleRate / float64(2*n)
	nyquist := sampleRate / 2

	var prev []float64
	if p.hasPrev && len(p.prev) == n {
		prev = p.prev
	}

	p.flux = spectralFlux(cur, prev)
	p.onset = onsetStrength(cur, prev)
	p.centroid = spectralCentroid(cur, binWidth, nyquist)
	chromagram(cur, binWidth, &p.chroma)

	for b := range p.bands {
		raw := bandMean(cur, p.cfg.BandRanges[b], binWidth)
		p.bands[b].update(raw, dt, &p.cfg)
	}

	// The envelope reacts to this frame's flux but to the beat intensity
	// left by the previous frame.
	raw := rms(cur)
	p.rawRMS = raw
	target := p.video.Update(raw, p.flux)
	smoothed := p.envelope.Update(target, dt, p.flux, p.beat.Intensity())
	p.ampVelocity = (smoothed - p.smoothed) / math.Max(dt, minDeltaTime)
	p.smoothed = smoothed
	p.ampPeakHold = math.Max(p.ampPeakHold, smoothed) * peakHoldDecay
	p.amplitude.observe(smoothed, p.cfg.Gain)
	p.rawAmplitude.observe(raw, p.cfg.Gain)

	active := smoothed > p.cfg.ActivityThreshold
	p.beat.Update(p.bands[Kick].value, p.bands[Snare].value, p.bands[Hihat].value, p.flux, active, now)

	if p.cfg.DetailLevel >= DetailStandard {
		p.grid.Update(cur, prev, binWidth, gridInputs{
			low:           p.bands[Low].value,
			mid:           p.bands[Mid].value,
			high:          p.bands[High].value,
			bps:           p.beat.BPS(),
			beatIntensity: p.beat.Intensity(),
			beatPhase:     p.beat.Phase(now),
		})
	}
	p.quantizer.Update(cur, sampleRate)
	if p.spectrogram != nil {
		p.spectrogram.Push(cur)
	}

	vp := p.cfg.Vocal
	p.recent = p.bands[Mid].history.Last(vp.VarianceWindow, p.recent[:0])
	p.vocalVal = clamp01(vp.HarmonicWeight*harmonicScore(cur, binWidth, vp) +
		vp.VarianceWeight*varianceScore(p.recent, vp.MaxVariance) +
		vp.MidWeight*p.bands[Mid].value)
	p.vocal.observe(p.vocalVal, p.cfg.Gain)

	p.cur, p.prev = p.prev, cur
	p.hasPrev = true
}

// sanitize copies mags into the spare buffer, reading negative or non-finite
// values as 0 and capping very large ones.
func (p *Processor) sanitize(mags []float64) []float64 {
	buf := p.cur
	if cap(buf) < len(mags) {
		buf = make([]float64, len(mags))
	}
	buf = buf[:len(mags)]
	for i, m := range mags {
		switch {
		case !(m > 0):
			buf[i] = 0
		case m > maxMagnitude:
			buf[i] = maxMagnitude
		default:
			buf[i] = m
		}
	}
	return buf
}

func (p *Processor) snapshot(now float64) Snapshot {
	b := &p.bands
	s := Snapshot{
		Low:             b[Low].value,
		Mid:             b[Mid].value,
		High:            b[High].value,
		Kick:            b[Kick].value,
		Snare:           b[Snare].value,
		Hihat:           b[Hihat].value,
		VocalLikelihood: p.vocalVal,
		Amplitude:       p.smoothed,
		RawAmplitude:    p.rawRMS,

		BeatIntensity: p.beat.Intensity(),
		BPS:           p.beat.BPS(),
		BeatPhase:     p.beat.Phase(now),
		LastBeatTime:  p.beat.LastBeatTime(),

		LowDynamic:          b[Low].dynamic,
		MidDynamic:          b[Mid].dynamic,
		HighDynamic:         b[High].dynamic,
		KickDynamic:         b[Kick].dynamic,
		SnareDynamic:        b[Snare].dynamic,
		HihatDynamic:        b[Hihat].dynamic,
		AmplitudeDynamic:    p.amplitude.dynamic,
		RawAmplitudeDynamic: p.rawAmplitude.dynamic,

		SpectralFlux:     p.flux,
		SpectralCentroid: p.centroid,
		Chromagram:       p.chroma,
		OnsetStrength:    p.onset,
		QuantizedBands:   p.quantizedBands(),

		LowVelocity:   b[Low].velocity,
		MidVelocity:   b[Mid].velocity,
		HighVelocity:  b[High].velocity,
		KickVelocity:  b[Kick].velocity,
		SnareVelocity: b[Snare].velocity,
		HihatVelocity: b[Hihat].velocity,

		LowPeakHold:       b[Low].peakHold,
		MidPeakHold:       b[Mid].peakHold,
		HighPeakHold:      b[High].peakHold,
		KickPeakHold:      b[Kick].peakHold,
		SnarePeakHold:     b[Snare].peakHold,
		HihatPeakHold:     b[Hihat].peakHold,
		AmplitudePeakHold: p.ampPeakHold,

		LowLog:         logScale(b[Low].value),
		MidLog:         logScale(b[Mid].value),
		HighLog:        logScale(b[High].value),
		LowMidBalance:  balance(b[Low].value, b[Mid].value),
		MidHighBalance: balance(b[Mid].value, b[High].value),
	}
	if p.cfg.DetailLevel >= DetailStandard {
		s.FrequencyGridMap = p.grid.Cells()
	}
	return s
}

// emptySnapshot is the neutral record for a frame with no bins. Running
// state is left alone and carried-over fields report its current values.
func (p *Processor) emptySnapshot() Snapshot {
	return Snapshot{
		SpectralFlux:   p.flux,
		LastBeatTime:   p.beat.LastBeatTime(),
		QuantizedBands: p.quantizedBands(),
		LowMidBalance:  0.5,
		MidHighBalance: 0.5,
	}
}

func (p *Processor) fillClock(s *Snapshot) {
	s.Time = p.time
	s.AdjustedTime = p.adjustedTime
	s.Sin, s.Cos = math.Sincos(p.time)
	s.SinNormal = (s.Sin + 1) / 2
	s.CosNormal = (s.Cos + 1) / 2
	s.AdjustedSin, s.AdjustedCos = math.Sincos(p.adjustedTime)
	s.AdjustedSinNormal = (s.AdjustedSin + 1) / 2
	s.AdjustedCosNormal = (s.AdjustedCos + 1) / 2
}

func (p *Processor) quantizedBands() [QuantizedBandCount]uint32 {
	var out [QuantizedBandCount]uint32
	for i, v := range p.quantizer.Values() {
		out[i] = uint32(v)
	}
	return out
}

// SetEnvelopeProfile switches the amplitude envelope to a preset.
func (p *Processor) SetEnvelopeProfile(profile EnvelopeProfile) {
	p.envelope.SetProfile(profile)
}

// ConfigureEnvelope sets the envelope rates directly.
func (p *Processor) ConfigureEnvelope(attack, decay, momentum, peakHold float64) {
	p.envelope.Configure(attack, decay, momentum, peakHold)
}

// SetAdaptiveEnvelope toggles content-driven attack and decay.
func (p *Processor) SetAdaptiveEnvelope(attack, decay bool) {
	p.envelope.SetAdaptive(attack, decay)
}

// EnvelopeParams reports the envelope's current rates.
func (p *Processor) EnvelopeParams() EnvelopeParams { return p.envelope.Params() }

// SmoothedAmplitude is the envelope output of the last non-empty frame.
func (p *Processor) SmoothedAmplitude() float64 { return p.smoothed }

// AmplitudeVelocity is the envelope's rate of change in units per second.
func (p *Processor) AmplitudeVelocity() float64 { return p.ampVelocity }

// FadeInOut is a slow follower of the amplitude dynamic, advanced once per
// emitted snapshot.
func (p *Processor) FadeInOut() float64 { return p.fade }

// Frames is the number of frames processed, including empty ones.
func (p *Processor) Frames() uint64 { return p.frames }

// Config returns a copy of the configuration the processor was built with.
func (p *Processor) Config() Config { return p.cfg }

// Gain reports the diagnostic adaptive gain of b.
func (p *Processor) Gain(b Band) float64 {
	if t := p.trackFor(b); t != nil {
		return t.gain
	}
	return 0
}

// VelocityRange returns the smallest and largest recent velocity of a
// spectral band, or zeros for bands without velocity tracking.
func (p *Processor) VelocityRange(b Band) (lo, hi float64) {
	if b < Low || int(b) >= spectralBands {
		return 0, 0
	}
	v := p.bands[b].velocities
	return v.Min(), v.Max()
}

// Diagnostics is a copy of the processor's internal tracker state for
// dashboards and reports. It is not part of the snapshot wire format.
type Diagnostics struct {
	Gain        [bandCount]float64     // Adaptive gain, indexed by Band
	VelocityMin [spectralBands]float64 // Recent velocity range of each spectral band
	VelocityMax [spectralBands]float64

	SmoothedAmplitude float64
	AmplitudeVelocity float64
	Fade              float64

	Envelope       EnvelopeParams
	AdaptiveAttack bool
	AdaptiveDecay  bool
}

// Diagnostics reports the current tracker state. Call it from the goroutine
// that owns the processor.
func (p *Processor) Diagnostics() Diagnostics {
	d := Diagnostics{
		SmoothedAmplitude: p.SmoothedAmplitude(),
		AmplitudeVelocity: p.AmplitudeVelocity(),
		Fade:              p.FadeInOut(),
		Envelope:          p.EnvelopeParams(),
	}
	d.AdaptiveAttack, d.AdaptiveDecay = p.envelope.Adaptive()
	for _, b := range Bands() {
		d.Gain[b] = p.Gain(b)
		if int(b) < spectralBands {
			d.VelocityMin[b], d.VelocityMax[b] = p.VelocityRange(b)
		}
	}
	return d
}

// VelocityRange returns the recent velocity range of band b from d, or zeros
// for bands without velocity tracking.
func (d Diagnostics) VelocityRange(b Band) (lo, hi float64) {
	if b < Low || int(b) >= spectralBands {
		return 0, 0
	}
	return d.VelocityMin[b], d.VelocityMax[b]
}

func (p *Processor) trackFor(b Band) *track {
	switch {
	case b >= Low && int(b) < spectralBands:
		return &p.bands[b].track
	case b == Amplitude:
		return &p.amplitude
	case b == RawAmplitude:
		return &p.rawAmplitude
	case b == Vocal:
		return &p.vocal
	}
	return nil
}
