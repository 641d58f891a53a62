// Package composite folds remapped frames of one instrument into a
// minimum-intensity Carrington map.
//
// Coronal holes stay dark for the whole rotation while flares and other
// transient brightenings do not, so the per-pixel minimum over all frames
// keeps the most hole-like signal.
package composite

import (
	"fmt"

	"coronalmap/internal/models"
	"coronalmap/pkg/remap"
)

// Compositor accumulates the running minimum of exposure-normalized frames.
// A Compositor belongs to one instrument and one rotation.
type Compositor struct {
	remapper  *remap.Remapper
	composite *models.Map
	frames    int
}

// NewCompositor starts an all-no-data composite on the remapper's grid.
func NewCompositor(g models.Grid, remapper *remap.Remapper) *Compositor {
	return &Compositor{
		remapper:  remapper,
		composite: models.NewMap(g),
	}
}

// Add remaps a frame and folds it into the composite. Frames with zero
// exposure are rejected with remap.ErrZeroExposure and leave the composite
// untouched.
func (c *Compositor) Add(f *models.Frame) error {
	m, err := c.remapper.Remap(f)
	if err != nil {
		return err
	}
	return c.Fold(m, f.Exposure)
}

// Fold divides a remapped map by its exposure time in seconds and takes the
// element-wise minimum with the composite. No-data cells on either side
// impose no constraint.
func (c *Compositor) Fold(m *models.Map, exposure float64) error {
	if exposure == 0 {
		return remap.ErrZeroExposure
	}
	if m.Grid != c.composite.Grid {
		return fmt.Errorf("map grid %dx%d does not match composite %dx%d", m.Rows, m.Cols, c.composite.Rows, c.composite.Cols)
	}

	for i, ok := range m.Valid {
		if !ok {
			continue
		}
		v := m.Data[i] / exposure
		if !c.composite.Valid[i] || v < c.composite.Data[i] {
			c.composite.Data[i] = v
			c.composite.Valid[i] = true
		}
	}
	c.frames++
	return nil
}

// Frames returns the number of frames folded so far.
func (c *Compositor) Frames() int {
	return c.frames
}

// Finalize returns the composite in the grid's final coordinate convention.
// The accumulator is left untouched.
func (c *Compositor) Finalize() *models.Map {
	return Finalize(c.composite)
}

// Finalize applies the seam and pole corrections and rolls the map by half
// its width:
//   - column 0 becomes the mean of the last column and column 1, repairing
//     the seam at the longitude wrap,
//   - row 0 becomes no-data (pole singularity),
//   - every row is rolled right by Cols/2 so that Carrington longitude 0
//     lands on the centre column.
func Finalize(m *models.Map) *models.Map {
	fixed := m.Clone()
	for r := 0; r < m.Rows; r++ {
		last, okLast := m.At(r, m.Cols-1)
		second, okSecond := m.At(r, 1)
		if okLast && okSecond {
			fixed.Set(r, 0, (last+second)/2)
		} else {
			fixed.Invalidate(r, 0)
		}
	}
	for c := 0; c < m.Cols; c++ {
		fixed.Invalidate(0, c)
	}

	out := models.NewMap(m.Grid)
	shift := m.Cols / 2
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			src := fixed.Index(r, c)
			dst := out.Index(r, (c+shift)%m.Cols)
			out.Data[dst] = fixed.Data[src]
			out.Valid[dst] = fixed.Valid[src]
		}
	}
	return out
}
