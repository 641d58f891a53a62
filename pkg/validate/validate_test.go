package validate

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"coronalmap/internal/models"
)

var testGrid = models.Grid{Rows: 20, Cols: 40}

// block sets the cells of a rectangle in the mask and assigns their field
// values from values, cycling if needed.
func block(m *models.Mask, field *models.Map, r0, c0, rows, cols int, values []float64) {
	k := 0
	for r := r0; r < r0+rows; r++ {
		for c := c0; c < c0+cols; c++ {
			m.Set(r, c, true)
			field.Set(r, c, values[k%len(values)])
			k++
		}
	}
}

func exponential(n int) []float64 {
	d := distuv.Exponential{Rate: 1}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Quantile((float64(i) + 0.5) / float64(n))
	}
	return out
}

func TestValidate(t *testing.T) {
	cleaned := models.NewMask(testGrid)
	field := models.NewMap(testGrid)

	block(cleaned, field, 2, 2, 5, 5, exponential(25))   // label 1: skewed
	block(cleaned, field, 2, 10, 5, 5, []float64{1, -1}) // label 2: symmetric
	block(cleaned, field, 10, 2, 3, 3, exponential(9))   // label 3: too small
	block(cleaned, field, 10, 10, 4, 4, []float64{-20})  // label 4: constant
	block(cleaned, field, 10, 20, 4, 4, []float64{0})    // label 5: zero field

	v := NewValidator(DefaultParams(), zerolog.Nop())
	final, regions, err := v.Validate(cleaned, field)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(regions) != 5 {
		t.Fatalf("expected 5 regions, got %d", len(regions))
	}

	want := []struct {
		kept   bool
		reason string
	}{
		{true, ""},
		{false, ReasonSymmetric},
		{false, ReasonFewSamples},
		{true, ""},
		{true, ""},
	}
	for i, w := range want {
		r := regions[i]
		if r.Label != i+1 || r.Kept != w.kept || r.Reason != w.reason {
			t.Errorf("region %d: kept %v reason %q, want %v %q", r.Label, r.Kept, r.Reason, w.kept, w.reason)
		}
	}
	if regions[0].Skewness < 0.5 {
		t.Errorf("exponential skewness = %g", regions[0].Skewness)
	}

	if !final.SubsetOf(cleaned) {
		t.Fatal("final mask is not a subset of the cleaned mask")
	}
	if final.Count() != 25+16+16 {
		t.Errorf("expected %d cells, got %d", 25+16+16, final.Count())
	}
	if !final.At(2, 2) || final.At(2, 10) || final.At(10, 2) || !final.At(10, 10) || !final.At(10, 20) {
		t.Error("wrong regions survived")
	}
	if Kept(regions) != 3 {
		t.Errorf("Kept = %d, want 3", Kept(regions))
	}
}

func TestValidateIgnoresMissingField(t *testing.T) {
	cleaned := models.NewMask(testGrid)
	field := models.NewMap(testGrid)
	block(cleaned, field, 2, 2, 5, 5, exponential(25))
	for r := 2; r < 7; r++ {
		for c := 2; c < 5; c++ {
			field.Invalidate(r, c)
		}
	}

	v := NewValidator(DefaultParams(), zerolog.Nop())
	final, regions, err := v.Validate(cleaned, field)
	if err != nil {
		t.Fatal(err)
	}
	if regions[0].Samples != 10 || regions[0].Pixels != 25 {
		t.Errorf("samples %d pixels %d", regions[0].Samples, regions[0].Pixels)
	}
	if regions[0].Kept != (math.Abs(regions[0].Skewness) >= 0.5) {
		t.Errorf("verdict %v does not match skewness %g", regions[0].Kept, regions[0].Skewness)
	}
	if final.Count() != 0 && final.Count() != 25 {
		t.Errorf("region was partially removed: %d cells", final.Count())
	}
}

func TestValidateExemptFirstLabel(t *testing.T) {
	cleaned := models.NewMask(testGrid)
	field := models.NewMap(testGrid)
	block(cleaned, field, 2, 2, 5, 5, []float64{1, -1})
	block(cleaned, field, 2, 10, 5, 5, []float64{1, -1})

	params := DefaultParams()
	params.ExemptFirstLabel = true
	final, regions, err := NewValidator(params, zerolog.Nop()).Validate(cleaned, field)
	if err != nil {
		t.Fatal(err)
	}
	if !regions[0].Kept || regions[1].Kept {
		t.Errorf("expected only label 1 kept, got %v %v", regions[0].Kept, regions[1].Kept)
	}
	if final.Count() != 25 {
		t.Errorf("expected 25 cells, got %d", final.Count())
	}
}

func TestValidateGridMismatch(t *testing.T) {
	v := NewValidator(DefaultParams(), zerolog.Nop())
	_, _, err := v.Validate(models.NewMask(testGrid), models.NewMap(models.Grid{Rows: 2, Cols: 2}))
	if err == nil {
		t.Error("expected an error for mismatched grids")
	}
}

func TestSkewness(t *testing.T) {
	if s, ok := Skewness([]float64{1, 2, 3, 4, 5}); !ok || math.Abs(s) > 1e-12 {
		t.Errorf("symmetric skewness = %g (%v)", s, ok)
	}
	if s, ok := Skewness([]float64{0, 0, 0, 10}); !ok || math.Abs(s-2/math.Sqrt(3)) > 1e-9 {
		t.Errorf("skewness = %g (%v), want %g", s, ok, 2/math.Sqrt(3))
	}
	if _, ok := Skewness([]float64{3, 3, 3}); ok {
		t.Error("constant samples have no skewness")
	}
	if _, ok := Skewness([]float64{0, 0, 0}); ok {
		t.Error("zero samples have no skewness")
	}

	// spread far below the mean is still resolved
	s, ok := Skewness([]float64{1, 1, 1, 1 + 4e-13})
	if !ok || math.Abs(s-2/math.Sqrt(3)) > 0.05 {
		t.Errorf("near-constant skewness = %g (%v), want about %g", s, ok, 2/math.Sqrt(3))
	}
	// one ulp of spread at 1e8 is lost in the resolution of the mean
	if _, ok := Skewness([]float64{1e8, 1e8, 1e8, 1e8 + 1.5e-8}); ok {
		t.Error("spread below the float64 resolution should have no skewness")
	}
}
