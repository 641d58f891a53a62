package composite

import (
	"errors"
	"math"
	"testing"

	"coronalmap/internal/models"
	"coronalmap/pkg/remap"
)

var testGrid = models.Grid{Rows: 4, Cols: 8}

// patterned returns a map whose validity and values vary with seed.
func patterned(seed int) *models.Map {
	m := models.NewMap(testGrid)
	for i := range m.Data {
		if (i+seed)%3 == 0 {
			continue
		}
		m.Data[i] = float64((i*7+seed*13)%11) + 1
		m.Valid[i] = true
	}
	return m
}

func TestFoldOrderInvariance(t *testing.T) {
	maps := []*models.Map{patterned(0), patterned(1), patterned(2)}
	exposures := []float64{1, 2, 4}

	forward := NewCompositor(testGrid, remap.NewRemapper(testGrid))
	for i := range maps {
		if err := forward.Fold(maps[i], exposures[i]); err != nil {
			t.Fatalf("Fold failed: %v", err)
		}
	}
	backward := NewCompositor(testGrid, remap.NewRemapper(testGrid))
	for i := len(maps) - 1; i >= 0; i-- {
		if err := backward.Fold(maps[i], exposures[i]); err != nil {
			t.Fatalf("Fold failed: %v", err)
		}
	}

	a, b := forward.composite, backward.composite
	for i := range a.Data {
		if a.Valid[i] != b.Valid[i] || a.Data[i] != b.Data[i] {
			t.Fatalf("cell %d differs: %g/%v vs %g/%v", i, a.Data[i], a.Valid[i], b.Data[i], b.Valid[i])
		}
	}
	if forward.Frames() != 3 {
		t.Errorf("expected 3 frames, got %d", forward.Frames())
	}
}

func TestFoldNormalizesAndIgnoresNoData(t *testing.T) {
	c := NewCompositor(testGrid, remap.NewRemapper(testGrid))

	first := models.NewMap(testGrid)
	first.Set(1, 1, 10)
	second := models.NewMap(testGrid)
	second.Set(1, 1, 30)
	second.Set(2, 2, 8)

	if err := c.Fold(first, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.Fold(second, 4); err != nil {
		t.Fatal(err)
	}

	if v, ok := c.composite.At(1, 1); !ok || v != 5 {
		t.Errorf("cell (1,1) = %g (valid %v), want 5", v, ok)
	}
	if v, ok := c.composite.At(2, 2); !ok || v != 2 {
		t.Errorf("cell (2,2) = %g (valid %v), want 2", v, ok)
	}
	if _, ok := c.composite.At(3, 3); ok {
		t.Error("cell never observed should carry no data")
	}
}

func TestFoldRejectsZeroExposure(t *testing.T) {
	c := NewCompositor(testGrid, remap.NewRemapper(testGrid))
	if err := c.Fold(patterned(0), 0); !errors.Is(err, remap.ErrZeroExposure) {
		t.Errorf("expected ErrZeroExposure, got %v", err)
	}
	if c.Frames() != 0 || !c.composite.Empty() {
		t.Error("rejected frame changed the composite")
	}

	other := models.NewMap(models.Grid{Rows: 2, Cols: 8})
	if err := c.Fold(other, 1); err == nil {
		t.Error("expected an error for a mismatched grid")
	}
}

func TestFinalizeWithoutFrames(t *testing.T) {
	c := NewCompositor(testGrid, remap.NewRemapper(testGrid))
	if !c.Finalize().Empty() {
		t.Error("composite without frames should carry no data")
	}
}

func TestFinalizeSeamAndRoll(t *testing.T) {
	m := models.NewMap(testGrid)
	for r := 0; r < testGrid.Rows; r++ {
		for c := 0; c < testGrid.Cols; c++ {
			m.Set(r, c, float64(10*r+c))
		}
	}

	out := Finalize(m)

	for c := 0; c < testGrid.Cols; c++ {
		if _, ok := out.At(0, c); ok {
			t.Errorf("row 0 column %d should carry no data", c)
		}
	}
	for r := 1; r < testGrid.Rows; r++ {
		base := float64(10 * r)
		want := []float64{4, 5, 6, 7, 4, 1, 2, 3}
		for c, w := range want {
			v, ok := out.At(r, c)
			if !ok || v != base+w {
				t.Errorf("row %d column %d = %g (valid %v), want %g", r, c, v, ok, base+w)
			}
		}
	}

	// the input is left untouched
	if v, _ := m.At(1, 0); v != 10 {
		t.Errorf("Finalize modified its input: %g", v)
	}
}

func TestFinalizeSeamNeedsBothNeighbours(t *testing.T) {
	m := models.NewMap(testGrid)
	m.Set(2, 0, 3)
	m.Set(2, 1, 4)

	out := Finalize(m)
	if _, ok := out.At(2, testGrid.Cols/2); ok {
		t.Error("seam cell with a missing neighbour should carry no data")
	}
	if v, ok := out.At(2, testGrid.Cols/2+1); !ok || v != 4 {
		t.Errorf("column 1 should move to the centre plus one, got %g (valid %v)", v, ok)
	}
}

func TestAddRemapsFrames(t *testing.T) {
	g := models.Grid{Rows: 18, Cols: 36}
	c := NewCompositor(g, remap.NewRemapper(g))
	f := &models.Frame{
		Width:    21,
		Height:   21,
		Data:     make([]float64, 21*21),
		View:     models.DiskView{CenterX: 10, CenterY: 10, RadiusPx: 9},
		Exposure: 4,
	}
	for i := range f.Data {
		f.Data[i] = 8
	}
	if err := c.Add(f); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if v, ok := c.composite.At(9, 1); !ok || math.Abs(v-2) > 1e-12 {
		t.Errorf("disk-centre cell = %g (valid %v), want 2", v, ok)
	}

	f.Exposure = 0
	if err := c.Add(f); !errors.Is(err, remap.ErrZeroExposure) {
		t.Errorf("expected ErrZeroExposure, got %v", err)
	}
	if c.Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", c.Frames())
	}
}
