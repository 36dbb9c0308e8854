package features

import "math"

// Frequency grid geometry.
const (
	GridSize  = 16
	GridCells = GridSize * GridSize

	gridMinFreq = 20.0
	gridMaxFreq = 20000.0

	gridEnergyThreshold = 1e-5 // Mean squared magnitude below which the frame is inactive
	gridActiveLevel     = 0.05 // Activity above which the grid blends instead of fading
	gridBlendRate       = 0.3
	gridFadeRate        = 0.95
)

type gridColumn struct {
	startBin  int
	endBin    int // Inclusive
	startFreq float64
}

// gridInputs are the per-frame values from earlier stages the grid reads.
type gridInputs struct {
	low, mid, high float64
	bps            float64
	beatIntensity  float64
	beatPhase      float64
}

// FrequencyGrid is a 16x16 perceptual map: columns are log-spaced bands from
// 20 Hz to 20 kHz and rows are four groups of enhancement (bass, harmonics,
// beat phase, flux). Cells are stored row-major.
type FrequencyGrid struct {
	cells   [GridCells]float64
	hasPrev bool

	columns  [GridSize]gridColumn
	layoutN  int
	layoutBW float64
}

// layout recomputes the column bin ranges when the frame shape changes.
func (g *FrequencyGrid) layout(n int, binWidth float64) {
	if n == g.layoutN && binWidth == g.layoutBW {
		return
	}
	g.layoutN, g.layoutBW = n, binWidth
	ratio := gridMaxFreq / gridMinFreq
	for x := range g.columns {
		start := gridMinFreq * math.Pow(ratio, float64(x)/float64(GridSize-1))
		end := gridMaxFreq
		if x < GridSize-1 {
			end = gridMinFreq * math.Pow(ratio, float64(x+1)/float64(GridSize-1))
		}
		g.columns[x] = gridColumn{
			startBin:  min(int(start/binWidth), n-1),
			endBin:    min(int(end/binWidth), n-1),
			startFreq: start,
		}
	}
}

// Update computes a new grid from the current magnitudes. prev holds the
// previous frame's magnitudes, or nil when there is none of the same length.
func (g *FrequencyGrid) Update(mags, prev []float64, binWidth float64, in gridInputs) {
	n := len(mags)
	if n == 0 {
		return
	}
	g.layout(n, binWidth)

	var energy float64
	for _, m := range mags {
		energy += m * m
	}
	energy /= float64(n)
	var activity float64
	if energy > gridEnergyThreshold {
		activity = math.Min(energy/(gridEnergyThreshold*10), 1)
	}

	var next [GridCells]float64
	for x, col := range g.columns {
		band := meanOf(mags[col.startBin : col.endBin+1])
		harmonic := g.harmonicEnergy(mags, col, binWidth, activity)
		flux := localFlux(mags, prev, col) * activity
		emphasis := 0.0
		switch {
		case col.startFreq > 1000:
			emphasis = in.high * 0.3
		case col.startFreq > 250:
			emphasis = in.mid * 0.2
		}

		beat := 0.0
		if in.bps > 0.1 && in.beatIntensity > 0.05 {
			strength := in.beatIntensity * math.Max(activity, 0.1)
			beat = 0.2 * strength * math.Sin(2*math.Pi*in.beatPhase)
		}

		for y := 0; y < GridSize; y++ {
			v := band
			switch {
			case y < 4:
				if x < 4 {
					v = band * (1 + in.low*0.3)
				}
			case y < 8:
				v = band + harmonic
			case y < 12:
				v = band + band*beat
			default:
				v = band + flux + emphasis
			}
			next[y*GridSize+x] = v
		}
	}

	// Each column is scaled by its own peak across rows.
	for x := 0; x < GridSize; x++ {
		var peak float64
		for y := 0; y < GridSize; y++ {
			peak = math.Max(peak, next[y*GridSize+x])
		}
		if peak > 1e-8 {
			for y := 0; y < GridSize; y++ {
				next[y*GridSize+x] /= peak
			}
		}
	}

	active := activity > gridActiveLevel
	for i := range next {
		switch {
		case g.hasPrev && active:
			next[i] = blend(g.cells[i], next[i], gridBlendRate)
		case g.hasPrev:
			next[i] = g.cells[i] * gridFadeRate
		case !active:
			next[i] = 0
		}
		next[i] = clamp01(next[i])
	}
	g.cells = next
	g.hasPrev = true
}

// harmonicEnergy sums the 2nd and 3rd harmonics of the column's start
// frequency that fall inside the column.
func (g *FrequencyGrid) harmonicEnergy(mags []float64, col gridColumn, binWidth, activity float64) float64 {
	if activity <= gridActiveLevel {
		return 0
	}
	var energy float64
	for _, h := range [...]float64{2, 3} {
		bin := int(col.startFreq * h / binWidth)
		if bin < len(mags) && bin <= col.endBin {
			energy += mags[bin] * 0.3
		}
	}
	return energy * 0.2 * activity
}

// localFlux is the mean positive change within the column's bins.
func localFlux(mags, prev []float64, col gridColumn) float64 {
	if len(prev) != len(mags) {
		return 0
	}
	var flux float64
	for bin := col.startBin; bin <= col.endBin; bin++ {
		if d := mags[bin] - prev[bin]; d > 0 {
			flux += d
		}
	}
	return flux / float64(col.endBin-col.startBin+1)
}

// Cells returns a copy of the current grid, row-major.
func (g *FrequencyGrid) Cells() [GridCells]float64 { return g.cells }
