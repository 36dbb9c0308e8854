package features

import "math"

// Rolling spectrogram dimensions.
const (
	SpectrogramWidth  = 256
	SpectrogramHeight = 64
	SpectrogramSize   = SpectrogramWidth * SpectrogramHeight
)

// zeroSpectrogram is shared by every snapshot that does not carry a
// spectrogram. Consumers must treat snapshot slices as read-only.
var zeroSpectrogram = make([]float64, SpectrogramSize)

// Spectrogram keeps the most recent SpectrogramWidth columns, each holding
// the lowest SpectrogramHeight bins of a frame min-max normalised over the
// whole frame.
type Spectrogram struct {
	columns [SpectrogramWidth][SpectrogramHeight]float64
	next    int // Index of the oldest column
}

// Push appends a column built from mags, dropping the oldest.
func (s *Spectrogram) Push(mags []float64) {
	if len(mags) == 0 {
		return
	}
	lo, hi := mags[0], mags[0]
	for _, m := range mags[1:] {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	span := math.Max(hi-lo, 1e-6)

	col := &s.columns[s.next]
	*col = [SpectrogramHeight]float64{}
	for y := 0; y < len(mags) && y < SpectrogramHeight; y++ {
		col[y] = clamp01((mags[y] - lo) / span)
	}
	s.next = (s.next + 1) % SpectrogramWidth
}

// Flatten writes the columns oldest to newest into a new slice, each column
// contributing SpectrogramHeight consecutive values.
func (s *Spectrogram) Flatten() []float64 {
	out := make([]float64, 0, SpectrogramSize)
	for i := 0; i < SpectrogramWidth; i++ {
		col := &s.columns[(s.next+i)%SpectrogramWidth]
		out = append(out, col[:]...)
	}
	return out
}
