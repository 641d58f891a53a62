package models

import (
	"fmt"
	"math"
)

// Grid describes the shape of the working Carrington grid shared by every
// per-instrument map, mask and magnetogram.
type Grid struct {
	// Rows is the number of latitude samples spanning -90..+90 degrees
	Rows int `yaml:"rows"`

	// Cols is the number of longitude samples spanning 360 degrees
	Cols int `yaml:"cols"`
}

// DefaultGrid is the 720x1440 grid (0.25 degree pixels).
var DefaultGrid = Grid{Rows: 720, Cols: 1440}

// Size returns the number of cells in the grid
func (g Grid) Size() int {
	return g.Rows * g.Cols
}

// Validate reports whether the grid can hold a full-Sun map.
func (g Grid) Validate() error {
	if g.Rows < 2 || g.Cols < 2 {
		return fmt.Errorf("grid %dx%d is too small", g.Rows, g.Cols)
	}
	if g.Cols%2 != 0 {
		return fmt.Errorf("grid columns must be even, got %d", g.Cols)
	}
	return nil
}

// LatScale is the number of pixels per degree of latitude.
func (g Grid) LatScale() float64 {
	return float64(g.Rows) / 180
}

// LonScale is the number of pixels per degree of longitude.
func (g Grid) LonScale() float64 {
	return float64(g.Cols) / 360
}

// Latitude returns the heliographic latitude in degrees of the centre of row r.
func (g Grid) Latitude(r int) float64 {
	return -90 + (float64(r)+0.5)/g.LatScale()
}

// Longitude returns the Carrington longitude in degrees of column c once a
// map has been finalized: longitude 0 sits on column Cols/2 and the map
// covers [-180, 180).
func (g Grid) Longitude(c int) float64 {
	return float64(c-g.Cols/2) / g.LonScale()
}

// RawLongitude returns the Carrington longitude in degrees of column c of a
// freshly remapped frame, before the half-width roll: column 0 is longitude
// 0 and the map covers [0, 360).
func (g Grid) RawLongitude(c int) float64 {
	return float64(c) / g.LonScale()
}

// Map is a grid of float64 values with an explicit validity mask. Cells with
// Valid[i] == false carry no data and their Data value must be ignored.
type Map struct {
	Grid

	// Data holds the values in row-major order
	Data []float64

	// Valid marks the cells that carry data
	Valid []bool
}

// NewMap allocates a map on the grid with every cell marked as no-data.
func NewMap(g Grid) *Map {
	return &Map{
		Grid:  g,
		Data:  make([]float64, g.Size()),
		Valid: make([]bool, g.Size()),
	}
}

// MapFromFloats wraps row-major values, marking non-finite entries invalid.
func MapFromFloats(g Grid, values []float64) (*Map, error) {
	if len(values) != g.Size() {
		return nil, fmt.Errorf("expected %d values for a %dx%d grid, got %d", g.Size(), g.Rows, g.Cols, len(values))
	}
	m := NewMap(g)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		m.Data[i] = v
		m.Valid[i] = true
	}
	return m, nil
}

// Index returns the flat index of row r, column c
func (m *Map) Index(r, c int) int {
	return r*m.Cols + c
}

// At returns the value at row r, column c and whether it carries data.
func (m *Map) At(r, c int) (float64, bool) {
	i := m.Index(r, c)
	return m.Data[i], m.Valid[i]
}

// Set stores a valid value at row r, column c.
func (m *Map) Set(r, c int, v float64) {
	i := m.Index(r, c)
	m.Data[i] = v
	m.Valid[i] = true
}

// Invalidate marks row r, column c as no-data.
func (m *Map) Invalidate(r, c int) {
	i := m.Index(r, c)
	m.Data[i] = 0
	m.Valid[i] = false
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	out := &Map{
		Grid:  m.Grid,
		Data:  make([]float64, len(m.Data)),
		Valid: make([]bool, len(m.Valid)),
	}
	copy(out.Data, m.Data)
	copy(out.Valid, m.Valid)
	return out
}

// Finite returns the valid values of the map in row-major order.
func (m *Map) Finite() []float64 {
	values := make([]float64, 0, len(m.Data))
	for i, ok := range m.Valid {
		if ok {
			values = append(values, m.Data[i])
		}
	}
	return values
}

// Empty reports whether the map carries no data at all.
func (m *Map) Empty() bool {
	for _, ok := range m.Valid {
		if ok {
			return false
		}
	}
	return true
}

// Floats returns the values with no-data cells replaced by NaN, for export
// to collaborators that use the NaN convention.
func (m *Map) Floats() []float64 {
	out := make([]float64, len(m.Data))
	for i, ok := range m.Valid {
		if ok {
			out[i] = m.Data[i]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Mask is a boolean grid. True cells belong to a (candidate) coronal hole.
type Mask struct {
	Grid
	Bits []bool
}

// NewMask allocates an all-false mask on the grid.
func NewMask(g Grid) *Mask {
	return &Mask{Grid: g, Bits: make([]bool, g.Size())}
}

// At reports whether row r, column c is set.
func (k *Mask) At(r, c int) bool {
	return k.Bits[r*k.Cols+c]
}

// Set assigns row r, column c.
func (k *Mask) Set(r, c int, v bool) {
	k.Bits[r*k.Cols+c] = v
}

// Count returns the number of set cells.
func (k *Mask) Count() int {
	n := 0
	for _, b := range k.Bits {
		if b {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (k *Mask) Clone() *Mask {
	out := NewMask(k.Grid)
	copy(out.Bits, k.Bits)
	return out
}

// SubsetOf reports whether every set cell of k is also set in other.
func (k *Mask) SubsetOf(other *Mask) bool {
	for i, b := range k.Bits {
		if b && !other.Bits[i] {
			return false
		}
	}
	return true
}
