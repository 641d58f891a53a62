// Package threshold estimates the coronal-hole intensity threshold of a
// composite map from the histograms of lat/lon tiles.
//
// Coronal holes show up as a secondary low-intensity lobe of the intensity
// histogram. Quiet-Sun brightness varies with latitude and limb distance, so
// the lobe boundary is located tile by tile and the tile thresholds are
// averaged into one value per instrument.
package threshold

import (
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"coronalmap/internal/models"
	"coronalmap/pkg/peaks"
)

// ErrUndetermined is returned when no threshold can be derived, either
// because the composite has no finite median or because every tile failed.
var ErrUndetermined = errors.New("threshold undetermined")

// Params controls the tiling, histogram and peak search.
type Params struct {
	// TileLat, TileLon are the tile size in degrees
	TileLat, TileLon float64

	// Bins is the number of histogram bins over [0, median]
	Bins int

	// SmoothingWindow is the Hann kernel width in samples
	SmoothingWindow int

	// MinScale, MaxScale bound the wavelet widths of the peak finder
	MinScale, MaxScale int

	// FallbackLow, FallbackHigh bound the minimum search, as fractions of
	// Bins, when fewer than two peaks are found
	FallbackLow, FallbackHigh float64
}

// DefaultParams returns 60x60 degree tiles, 100 bins and a 20-sample window.
func DefaultParams() Params {
	return Params{
		TileLat:         60,
		TileLon:         60,
		Bins:            100,
		SmoothingWindow: 20,
		MinScale:        1,
		MaxScale:        19,
		FallbackLow:     0.25,
		FallbackHigh:    0.9,
	}
}

// Tile is the outcome of one tile of the estimate.
type Tile struct {
	// Row0, Row1, Col0, Col1 are the half-open pixel bounds of the tile
	Row0, Row1, Col0, Col1 int

	// Threshold is the tile candidate, valid only when OK is set
	Threshold float64
	OK        bool
}

// Result is the threshold of one composite.
type Result struct {
	// Threshold is the mean of the valid tile candidates
	Threshold float64

	// Median is the global median of the composite, the histogram upper bound
	Median float64

	Tiles []Tile
}

// Estimator derives thresholds with fixed parameters.
type Estimator struct {
	params Params
	kernel []float64
	finder *peaks.Finder
	log    zerolog.Logger
}

// NewEstimator prepares the smoothing kernel and peak finder.
func NewEstimator(params Params, log zerolog.Logger) *Estimator {
	ones := make([]float64, params.SmoothingWindow)
	for i := range ones {
		ones[i] = 1
	}
	kernel := window.Hann(ones)
	floats.Scale(1/floats.Sum(kernel), kernel)

	return &Estimator{
		params: params,
		kernel: kernel,
		finder: peaks.NewFinder(params.MinScale, params.MaxScale),
		log:    log,
	}
}

// Estimate computes the threshold of a composite map. It returns
// ErrUndetermined when the composite is empty or every tile fails.
func (e *Estimator) Estimate(m *models.Map) (Result, error) {
	finite := m.Finite()
	if len(finite) == 0 {
		return Result{Threshold: math.NaN(), Median: math.NaN()}, ErrUndetermined
	}
	qs := median(finite)

	res := Result{Median: qs}
	latTiles := int(math.Ceil(180 / e.params.TileLat))
	lonTiles := int(math.Ceil(360 / e.params.TileLon))
	latScale, lonScale := m.LatScale(), m.LonScale()

	var candidates []float64
	for ilat := 0; ilat < latTiles; ilat++ {
		for ilon := 0; ilon < lonTiles; ilon++ {
			tile := Tile{
				Row0: int(float64(ilat) * e.params.TileLat * latScale),
				Row1: min(int(float64(ilat+1)*e.params.TileLat*latScale), m.Rows),
				Col0: int(float64(ilon) * e.params.TileLon * lonScale),
				Col1: min(int(float64(ilon+1)*e.params.TileLon*lonScale), m.Cols),
			}

			var values []float64
			for r := tile.Row0; r < tile.Row1; r++ {
				for c := tile.Col0; c < tile.Col1; c++ {
					if v, ok := m.At(r, c); ok {
						values = append(values, v)
					}
				}
			}

			tile.Threshold, tile.OK = e.TileThreshold(values, qs)
			if tile.OK {
				candidates = append(candidates, tile.Threshold)
			}
			res.Tiles = append(res.Tiles, tile)

			e.log.Debug().
				Int("row0", tile.Row0).
				Int("col0", tile.Col0).
				Int("samples", len(values)).
				Bool("ok", tile.OK).
				Float64("threshold", tile.Threshold).
				Msg("tile estimated")
		}
	}

	if len(candidates) == 0 {
		res.Threshold = math.NaN()
		return res, ErrUndetermined
	}
	res.Threshold = stat.Mean(candidates, nil)
	return res, nil
}

// TileThreshold locates the intensity boundary between the coronal-hole
// and quiet-Sun lobes of one tile's histogram over [0, upper]. It reports
// false when the tile has no usable minimum.
func (e *Estimator) TileThreshold(values []float64, upper float64) (float64, bool) {
	if !(upper > 0) || math.IsInf(upper, 0) {
		return math.NaN(), false
	}

	edges, counts := e.histogram(values, upper)
	smoothed := peaks.ConvolveSame(counts, e.kernel)

	pks := e.finder.Find(smoothed)
	var lo, hi int
	if len(pks) >= 2 {
		lo, hi = pks[0], pks[len(pks)-1]-1
	} else {
		lo = int(float64(e.params.Bins) * e.params.FallbackLow)
		hi = int(float64(e.params.Bins) * e.params.FallbackHigh)
	}
	if hi > len(smoothed) {
		hi = len(smoothed)
	}
	if hi <= lo {
		return math.NaN(), false
	}

	negated := make([]float64, hi-lo)
	for i := range negated {
		negated[i] = -smoothed[lo+i]
	}
	minima := e.finder.Find(negated)
	if len(minima) == 0 {
		return math.NaN(), false
	}
	return edges[lo+minima[0]], true
}

// histogram bins the values falling in [0, upper] into equal-width bins.
// The last bin is closed so that values equal to upper are counted. It
// returns the left bin edges and the counts.
func (e *Estimator) histogram(values []float64, upper float64) ([]float64, []float64) {
	bins := e.params.Bins
	dividers := floats.Span(make([]float64, bins+1), 0, upper)
	edges := make([]float64, bins)
	copy(edges, dividers[:bins])
	dividers[bins] = math.Nextafter(upper, math.Inf(1))

	inRange := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= 0 && v <= upper {
			inRange = append(inRange, v)
		}
	}
	counts := make([]float64, bins)
	if len(inRange) == 0 {
		return edges, counts
	}
	sort.Float64s(inRange)
	return edges, stat.Histogram(counts, dividers, inRange, nil)
}

// median calculates the median value of a slice of float64 values
func median(values []float64) float64 {
	// Create a copy to avoid modifying the original
	valuesCopy := make([]float64, len(values))
	copy(valuesCopy, values)

	// Sort the values
	sort.Float64s(valuesCopy)

	// Calculate median
	n := len(valuesCopy)
	if n == 0 {
		return math.NaN()
	}

	if n%2 == 0 {
		return (valuesCopy[n/2-1] + valuesCopy[n/2]) / 2
	}

	return valuesCopy[n/2]
}
