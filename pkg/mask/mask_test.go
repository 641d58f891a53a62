package mask

import (
	"math"
	"testing"

	"coronalmap/internal/models"
)

func mapOf(g models.Grid, values []float64) *models.Map {
	m, err := models.MapFromFloats(g, values)
	if err != nil {
		panic(err)
	}
	return m
}

func TestCandidates(t *testing.T) {
	g := models.Grid{Rows: 2, Cols: 3}
	nan := math.NaN()
	inputs := []Input{
		{Composite: mapOf(g, []float64{0.5, 2, 0, nan, 1, 3}), Threshold: 1},
		{Composite: mapOf(g, []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}), Threshold: 1, Skipped: true},
		{Composite: mapOf(g, []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}), Threshold: nan},
	}

	got := Candidates(g, inputs)
	want := []bool{true, false, false, false, true, false}
	for i, w := range want {
		if got.Bits[i] != w {
			t.Errorf("cell %d = %v, want %v", i, got.Bits[i], w)
		}
	}
}

func TestCandidatesUnion(t *testing.T) {
	g := models.Grid{Rows: 1, Cols: 4}
	inputs := []Input{
		{Composite: mapOf(g, []float64{1, 9, 9, math.NaN()}), Threshold: 2},
		{Composite: mapOf(g, []float64{9, 1, 9, math.NaN()}), Threshold: 2},
	}
	got := Candidates(g, inputs)
	want := []bool{true, true, false, false}
	for i, w := range want {
		if got.Bits[i] != w {
			t.Errorf("cell %d = %v, want %v", i, got.Bits[i], w)
		}
	}
}

func TestCandidatesAllSkipped(t *testing.T) {
	g := models.Grid{Rows: 2, Cols: 2}
	inputs := []Input{
		{Composite: mapOf(g, []float64{0.1, 0.1, 0.1, 0.1}), Threshold: 1, Skipped: true},
		{Skipped: true},
	}
	if n := Candidates(g, inputs).Count(); n != 0 {
		t.Errorf("expected an empty mask, got %d cells", n)
	}
}

func TestErodeBorder(t *testing.T) {
	g := models.Grid{Rows: 6, Cols: 8}
	full := models.NewMask(g)
	for i := range full.Bits {
		full.Bits[i] = true
	}
	if n := Erode(full, FullConnectivity, 1).Count(); n != 4*6 {
		t.Errorf("erosion of a full mask kept %d cells, want 24", n)
	}
	if n := Dilate(full, FullConnectivity, 1).Count(); n != g.Size() {
		t.Errorf("dilation of a full mask has %d cells", n)
	}
}

func TestClean(t *testing.T) {
	g := models.Grid{Rows: 20, Cols: 20}
	candidate := models.NewMask(g)
	for r := 5; r <= 12; r++ {
		for c := 4; c <= 14; c++ {
			candidate.Set(r, c, true)
		}
	}
	candidate.Set(8, 8, false)
	candidate.Set(1, 17, true)

	cleaned := Clean(candidate, FullConnectivity, 1)

	if !cleaned.SubsetOf(candidate) {
		t.Fatal("cleaned mask is not a subset of the candidates")
	}
	if cleaned.At(1, 17) {
		t.Error("isolated pixel should be removed")
	}
	if cleaned.At(8, 8) {
		t.Error("cleaning must not add cells")
	}
	for r := 5; r <= 12; r++ {
		for c := 4; c <= 14; c++ {
			if (r != 8 || c != 8) && !cleaned.At(r, c) {
				t.Errorf("rectangle cell (%d,%d) was removed", r, c)
			}
		}
	}
	if cleaned.Count() != 8*11-1 {
		t.Errorf("expected %d cells, got %d", 8*11-1, cleaned.Count())
	}
}

func TestCleanSubsetOnPattern(t *testing.T) {
	g := models.Grid{Rows: 30, Cols: 40}
	candidate := models.NewMask(g)
	for i := range candidate.Bits {
		candidate.Bits[i] = (i*i+3*i)%7 < 3
	}
	if !Clean(candidate, FullConnectivity, 2).SubsetOf(candidate) {
		t.Error("cleaned mask is not a subset of the candidates")
	}
}

func TestLabel(t *testing.T) {
	g := models.Grid{Rows: 8, Cols: 10}
	m := models.NewMask(g)
	m.Set(0, 8, true)
	m.Set(1, 1, true)
	m.Set(2, 2, true)
	m.Set(5, 5, true)

	l := Label(m, FullConnectivity)
	if l.Count != 3 {
		t.Fatalf("expected 3 regions, got %d", l.Count)
	}
	at := func(r, c int) int { return l.IDs[r*g.Cols+c] }
	if at(0, 8) != 1 || at(1, 1) != 2 || at(2, 2) != 2 || at(5, 5) != 3 {
		t.Errorf("unexpected labels %d %d %d %d", at(0, 8), at(1, 1), at(2, 2), at(5, 5))
	}
	if at(0, 0) != 0 {
		t.Error("background should be labelled 0")
	}

	regions := l.Regions()
	if len(regions) != 4 || len(regions[0]) != 0 || len(regions[2]) != 2 {
		t.Errorf("unexpected regions %v", regions)
	}
}
