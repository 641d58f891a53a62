package threshold

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"coronalmap/internal/models"
)

// normalSamples returns n evenly spaced quantiles of a normal distribution.
func normalSamples(mu, sigma float64, n int) []float64 {
	d := distuv.Normal{Mu: mu, Sigma: sigma}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Quantile((float64(i) + 0.5) / float64(n))
	}
	return out
}

func newEstimator() *Estimator {
	return NewEstimator(DefaultParams(), zerolog.Nop())
}

func TestTileThresholdBimodal(t *testing.T) {
	e := newEstimator()
	cases := []struct {
		lowMu, lowSigma   float64
		lowN              int
		highMu, highSigma float64
		highN             int
	}{
		{0.2, 0.03, 2000, 0.7, 0.05, 6000},
		{0.3, 0.04, 1500, 0.75, 0.05, 5000},
		{0.2, 0.02, 2000, 0.92, 0.02, 6000},
		{0.25, 0.04, 3000, 0.65, 0.06, 3000},
	}
	for _, tc := range cases {
		values := append(normalSamples(tc.lowMu, tc.lowSigma, tc.lowN),
			normalSamples(tc.highMu, tc.highSigma, tc.highN)...)
		got, ok := e.TileThreshold(values, 1.0)
		if !ok {
			t.Errorf("%v: no threshold found", tc)
			continue
		}
		if got <= tc.lowMu || got >= tc.highMu {
			t.Errorf("%v: threshold %g not between the lobe means", tc, got)
		}
	}
}

func TestTileThresholdTwoLevels(t *testing.T) {
	e := newEstimator()
	values := make([]float64, 0, 57600)
	for i := 0; i < 3111; i++ {
		values = append(values, 0.1)
	}
	for i := 0; i < 54489; i++ {
		values = append(values, 1.0)
	}
	got, ok := e.TileThreshold(values, 1.0)
	if !ok {
		t.Fatal("expected a threshold")
	}
	if math.Abs(got-0.28) > 1e-9 {
		t.Errorf("threshold = %g, want 0.28", got)
	}
}

func TestTileThresholdNoMinimum(t *testing.T) {
	e := newEstimator()

	uniform := make([]float64, 5000)
	for i := range uniform {
		uniform[i] = 1
	}
	if got, ok := e.TileThreshold(uniform, 1.0); ok {
		t.Errorf("expected no threshold for a uniform tile, got %g", got)
	}

	if got, ok := e.TileThreshold(nil, 1.0); ok {
		t.Errorf("expected no threshold for an empty tile, got %g", got)
	}

	if _, ok := e.TileThreshold([]float64{0.1, 0.2}, math.NaN()); ok {
		t.Error("expected no threshold for a NaN upper bound")
	}
}

func TestHistogramIncludesUpperEdge(t *testing.T) {
	e := newEstimator()
	edges, counts := e.histogram([]float64{0, 0.5, 1, 1.5, -0.1}, 1)
	if len(edges) != 100 || len(counts) != 100 {
		t.Fatalf("expected 100 bins, got %d edges and %d counts", len(edges), len(counts))
	}
	if counts[0] != 1 || counts[50] != 1 || counts[99] != 1 {
		t.Errorf("unexpected counts: first %g, middle %g, last %g", counts[0], counts[50], counts[99])
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total != 3 {
		t.Errorf("expected 3 values in range, got %g", total)
	}
	if math.Abs(edges[28]-0.28) > 1e-12 {
		t.Errorf("edge 28 = %g", edges[28])
	}
}

func TestEstimateEmptyMap(t *testing.T) {
	e := newEstimator()
	res, err := e.Estimate(models.NewMap(models.Grid{Rows: 18, Cols: 36}))
	if !errors.Is(err, ErrUndetermined) {
		t.Fatalf("expected ErrUndetermined, got %v", err)
	}
	if !math.IsNaN(res.Threshold) {
		t.Errorf("expected NaN threshold, got %g", res.Threshold)
	}
}

func TestEstimateUniformMap(t *testing.T) {
	e := newEstimator()
	m := models.NewMap(models.Grid{Rows: 180, Cols: 360})
	for i := range m.Data {
		m.Data[i], m.Valid[i] = 1, true
	}
	res, err := e.Estimate(m)
	if !errors.Is(err, ErrUndetermined) {
		t.Fatalf("expected ErrUndetermined, got %v (threshold %g)", err, res.Threshold)
	}
	if len(res.Tiles) != 18 {
		t.Errorf("expected 18 tiles, got %d", len(res.Tiles))
	}
}

func TestEstimateBimodalTiles(t *testing.T) {
	e := newEstimator()
	g := models.Grid{Rows: 180, Cols: 360}
	m := models.NewMap(g)

	// every 60x60 tile holds the same bimodal sample set
	values := append(normalSamples(0.2, 0.03, 900), normalSamples(0.7, 0.05, 2700)...)
	for tr := 0; tr < 3; tr++ {
		for tc := 0; tc < 6; tc++ {
			for k, v := range values {
				m.Set(tr*60+k/60, tc*60+k%60, v)
			}
		}
	}

	res, err := e.Estimate(m)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if len(res.Tiles) != 18 {
		t.Fatalf("expected 18 tiles, got %d", len(res.Tiles))
	}
	for _, tile := range res.Tiles {
		if !tile.OK {
			t.Errorf("tile at row %d col %d has no threshold", tile.Row0, tile.Col0)
		}
		if tile.Row1-tile.Row0 != 60 || tile.Col1-tile.Col0 != 60 {
			t.Errorf("tile bounds %+v", tile)
		}
	}
	if res.Threshold <= 0.2 || res.Threshold >= 0.7 {
		t.Errorf("threshold %g not between the lobe means", res.Threshold)
	}
	if res.Median <= 0.6 || res.Median >= 0.75 {
		t.Errorf("unexpected median %g", res.Median)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("median of odd set = %g", got)
	}
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("median of even set = %g", got)
	}
	if got := median(nil); !math.IsNaN(got) {
		t.Errorf("median of empty set = %g", got)
	}
}
