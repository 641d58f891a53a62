// Package peaks finds local maxima of noisy 1-D signals with a continuous
// wavelet transform. A peak is reported where a ridge of wavelet maxima
// persists across enough scales and stands out of the local noise floor.
package peaks

import (
	"math"
	"sort"
)

// Finder locates peaks of a signal using Ricker wavelets of increasing width.
type Finder struct {
	// Widths are the wavelet widths, smallest first
	Widths []float64

	// MinSNR is the minimum ratio of ridge strength to local noise
	MinSNR float64

	// NoisePercentile selects the noise floor from the smallest-scale response
	NoisePercentile float64
}

// NewFinder returns a finder over the integer scales minScale..maxScale.
func NewFinder(minScale, maxScale int) *Finder {
	widths := make([]float64, 0, maxScale-minScale+1)
	for w := minScale; w <= maxScale; w++ {
		widths = append(widths, float64(w))
	}
	return &Finder{
		Widths:          widths,
		MinSNR:          1,
		NoisePercentile: 10,
	}
}

// ridge is a chain of wavelet maxima followed from coarse to fine scales.
// rows are appended in decreasing order.
type ridge struct {
	rows []int
	cols []int
	gap  int
}

// finest returns the row and column of the ridge at its smallest scale.
func (r *ridge) finest() (int, int) {
	n := len(r.rows) - 1
	return r.rows[n], r.cols[n]
}

// Find returns the indices of the peaks of signal in ascending order.
func (f *Finder) Find(signal []float64) []int {
	if len(signal) < 3 || len(f.Widths) == 0 {
		return nil
	}

	coeffs := Transform(signal, f.Widths)

	maxDistances := make([]float64, len(f.Widths))
	for i, w := range f.Widths {
		maxDistances[i] = w / 4
	}
	gapThresh := math.Ceil(f.Widths[0])

	ridges := identifyRidges(coeffs, maxDistances, gapThresh)
	ridges = f.filterRidges(coeffs, ridges)

	locs := make([]int, 0, len(ridges))
	for _, r := range ridges {
		_, col := r.finest()
		locs = append(locs, col)
	}
	sort.Ints(locs)
	return locs
}

// Ricker returns the Mexican hat wavelet of width a sampled on points samples.
func Ricker(points int, a float64) []float64 {
	amp := 2 / (math.Sqrt(3*a) * math.Pow(math.Pi, 0.25))
	wsq := a * a
	out := make([]float64, points)
	for i := range out {
		x := float64(i) - float64(points-1)/2
		xsq := x * x
		out[i] = amp * (1 - xsq/wsq) * math.Exp(-xsq/(2*wsq))
	}
	return out
}

// Transform computes the Ricker wavelet transform of data, one row per width.
func Transform(data []float64, widths []float64) [][]float64 {
	out := make([][]float64, len(widths))
	for i, w := range widths {
		points := int(10 * w)
		if points > len(data) {
			points = len(data)
		}
		wavelet := Ricker(points, w)
		// the wavelet is symmetric, so no reversal is needed for convolution
		out[i] = ConvolveSame(data, wavelet)
	}
	return out
}

// ConvolveSame convolves data with kernel and returns the central part of the
// full convolution with the same length as data.
func ConvolveSame(data, kernel []float64) []float64 {
	n, m := len(data), len(kernel)
	out := make([]float64, n)
	if n == 0 || m == 0 {
		return out
	}
	start := (m - 1) / 2
	for i := range out {
		k := i + start
		var sum float64
		// full[k] = sum_j data[j] * kernel[k-j]
		jLo := k - (m - 1)
		if jLo < 0 {
			jLo = 0
		}
		jHi := k
		if jHi > n-1 {
			jHi = n - 1
		}
		for j := jLo; j <= jHi; j++ {
			sum += data[j] * kernel[k-j]
		}
		out[i] = sum
	}
	return out
}

// relativeMaxima marks the samples strictly greater than both neighbours.
// The first and last samples are never maxima.
func relativeMaxima(row []float64) []bool {
	out := make([]bool, len(row))
	for i := 1; i < len(row)-1; i++ {
		out[i] = row[i] > row[i-1] && row[i] > row[i+1]
	}
	return out
}

// identifyRidges links the maxima of each row of the transform to the
// ridges of the row above, starting from the coarsest row with a maximum.
func identifyRidges(coeffs [][]float64, maxDistances []float64, gapThresh float64) []*ridge {
	maxima := make([][]bool, len(coeffs))
	startRow := -1
	for row := range coeffs {
		maxima[row] = relativeMaxima(coeffs[row])
		for _, ok := range maxima[row] {
			if ok {
				startRow = row
				break
			}
		}
	}
	if startRow < 0 {
		return nil
	}

	var active []*ridge
	for col, ok := range maxima[startRow] {
		if ok {
			active = append(active, &ridge{rows: []int{startRow}, cols: []int{col}})
		}
	}

	var final []*ridge
	for row := startRow - 1; row >= 0; row-- {
		for _, r := range active {
			r.gap++
		}

		prevCols := make([]int, len(active))
		for i, r := range active {
			prevCols[i] = r.cols[len(r.cols)-1]
		}

		for col, ok := range maxima[row] {
			if !ok {
				continue
			}
			var line *ridge
			if len(prevCols) > 0 {
				closest := 0
				best := math.Inf(1)
				for i, pc := range prevCols {
					if d := math.Abs(float64(col - pc)); d < best {
						best = d
						closest = i
					}
				}
				if best <= maxDistances[row] {
					line = active[closest]
				}
			}
			if line != nil {
				line.rows = append(line.rows, row)
				line.cols = append(line.cols, col)
				line.gap = 0
			} else {
				active = append(active, &ridge{rows: []int{row}, cols: []int{col}})
			}
		}

		for i := len(active) - 1; i >= 0; i-- {
			if float64(active[i].gap) > gapThresh {
				final = append(final, active[i])
				active = append(active[:i], active[i+1:]...)
			}
		}
	}

	return append(final, active...)
}

// filterRidges drops ridges that are too short or too weak compared with
// the noise floor of the finest scale.
func (f *Finder) filterRidges(coeffs [][]float64, ridges []*ridge) []*ridge {
	numPoints := len(coeffs[0])
	minLength := int(math.Ceil(float64(len(coeffs)) / 4))
	windowSize := int(math.Ceil(float64(numPoints) / 20))
	half, odd := windowSize/2, windowSize%2

	rowOne := coeffs[0]
	noises := make([]float64, numPoints)
	for i := range rowOne {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + odd
		if hi > numPoints {
			hi = numPoints
		}
		noises[i] = percentile(rowOne[lo:hi], f.NoisePercentile)
	}

	kept := ridges[:0]
	for _, r := range ridges {
		if len(r.rows) < minLength {
			continue
		}
		row, col := r.finest()
		snr := math.Abs(coeffs[row][col] / noises[col])
		// NaN ratios (zero response over zero noise) are not rejected
		if snr < f.MinSNR {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// percentile returns the p-th percentile of values with linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(idx-float64(lo))
}
