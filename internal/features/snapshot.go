package features

// Frame is one magnitude spectrum handed to the processor. Magnitudes holds
// N non-negative values where bin i covers i*(sampleRate/2)/N Hz upward.
type Frame struct {
	Magnitudes []float64
	DeltaTime  float64 // Seconds since the previous frame
	Timestamp  float64 // Seconds on any monotonic epoch
}

// Snapshot is every derived value for one frame. It is built fresh for each
// frame and never modified afterwards; its slices must be treated as
// read-only because snapshots without a spectrogram share one zero buffer.
//
// The JSON field names are the wire schema consumed by visualisers.
type Snapshot struct {
	// Phase generators
	Time              float64 `json:"time"`
	AdjustedTime      float64 `json:"adjusted_time"`
	Sin               float64 `json:"sin"`
	Cos               float64 `json:"cos"`
	SinNormal         float64 `json:"sin_normal"`
	CosNormal         float64 `json:"cos_normal"`
	AdjustedSin       float64 `json:"adjusted_sin"`
	AdjustedCos       float64 `json:"adjusted_cos"`
	AdjustedSinNormal float64 `json:"adjusted_sin_normal"`
	AdjustedCosNormal float64 `json:"adjusted_cos_normal"`

	// Band and amplitude values
	Low             float64 `json:"low"`
	Mid             float64 `json:"mid"`
	High            float64 `json:"high"`
	Kick            float64 `json:"kick"`
	Snare           float64 `json:"snare"`
	Hihat           float64 `json:"hihat"`
	VocalLikelihood float64 `json:"vocal_likelihood"`
	Amplitude       float64 `json:"amplitude"`
	RawAmplitude    float64 `json:"raw_amplitude"`

	// Beat metrics
	BeatIntensity float64   `json:"beat_intensity"`
	BPS           float64   `json:"bps"`
	BeatPhase     float64   `json:"beat_phase"`
	LastBeatTime  float64   `json:"last_beat_time"`
	BeatTimes     []float64 `json:"beat_times"`

	// Dynamic-range values
	LowDynamic          float64 `json:"low_dynamic"`
	MidDynamic          float64 `json:"mid_dynamic"`
	HighDynamic         float64 `json:"high_dynamic"`
	KickDynamic         float64 `json:"kick_dynamic"`
	SnareDynamic        float64 `json:"snare_dynamic"`
	HihatDynamic        float64 `json:"hihat_dynamic"`
	AmplitudeDynamic    float64 `json:"amplitude_dynamic"`
	RawAmplitudeDynamic float64 `json:"raw_amplitude_dynamic"`

	// Spectral descriptors
	SpectralFlux     float64     `json:"spectral_flux"`
	SpectralCentroid float64     `json:"spectral_centroid"`
	Chromagram       [12]float64 `json:"chromagram"`
	OnsetStrength    float64     `json:"onset_strength"`

	QuantizedBands   [QuantizedBandCount]uint32 `json:"quantized_bands"`
	FrequencyGridMap [GridCells]float64         `json:"frequency_grid_map"`

	// Velocities in units per second
	LowVelocity   float64 `json:"low_velocity"`
	MidVelocity   float64 `json:"mid_velocity"`
	HighVelocity  float64 `json:"high_velocity"`
	KickVelocity  float64 `json:"kick_velocity"`
	SnareVelocity float64 `json:"snare_velocity"`
	HihatVelocity float64 `json:"hihat_velocity"`

	// Decaying peak holds
	LowPeakHold       float64 `json:"low_peak_hold"`
	MidPeakHold       float64 `json:"mid_peak_hold"`
	HighPeakHold      float64 `json:"high_peak_hold"`
	KickPeakHold      float64 `json:"kick_peak_hold"`
	SnarePeakHold     float64 `json:"snare_peak_hold"`
	HihatPeakHold     float64 `json:"hihat_peak_hold"`
	AmplitudePeakHold float64 `json:"amplitude_peak_hold"`

	// Perceptual log values and balances
	LowLog         float64 `json:"low_log"`
	MidLog         float64 `json:"mid_log"`
	HighLog        float64 `json:"high_log"`
	LowMidBalance  float64 `json:"low_mid_balance"`
	MidHighBalance float64 `json:"mid_high_balance"`

	// Column-major, oldest column first; zero unless DetailFull.
	SpectrogramData []float64 `json:"spectrogram_data"`
}

// BandValue returns the normalised value for b.
func (s *Snapshot) BandValue(b Band) float64 {
	switch b {
	case Low:
		return s.Low
	case Mid:
		return s.Mid
	case High:
		return s.High
	case Kick:
		return s.Kick
	case Snare:
		return s.Snare
	case Hihat:
		return s.Hihat
	case Amplitude:
		return s.Amplitude
	case RawAmplitude:
		return s.RawAmplitude
	case Vocal:
		return s.VocalLikelihood
	}
	return 0
}

// BandDynamic returns the dynamic-range value for b, or 0 for bands that do
// not publish one.
func (s *Snapshot) BandDynamic(b Band) float64 {
	switch b {
	case Low:
		return s.LowDynamic
	case Mid:
		return s.MidDynamic
	case High:
		return s.HighDynamic
	case Kick:
		return s.KickDynamic
	case Snare:
		return s.SnareDynamic
	case Hihat:
		return s.HihatDynamic
	case Amplitude:
		return s.AmplitudeDynamic
	case RawAmplitude:
		return s.RawAmplitudeDynamic
	}
	return 0
}
