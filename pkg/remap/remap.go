// Package remap reprojects full-disk images onto the Carrington
// longitude/latitude grid (equirectangular, "CAR").
package remap

import (
	"errors"
	"fmt"
	"math"

	"coronalmap/internal/models"
)

// ErrZeroExposure rejects frames whose exposure time cannot normalize
// the intensities.
var ErrZeroExposure = errors.New("frame has zero exposure time")

const deg = math.Pi / 180

// Remapper samples frames onto a fixed grid. Column c of the output is
// Carrington longitude c*360/Cols, so longitude 0 is on the left edge;
// the compositor moves it to the centre when the composite is finalized.
type Remapper struct {
	grid           models.Grid
	sinLat, cosLat []float64
	lons           []float64
}

// NewRemapper precomputes the target coordinates of the grid.
func NewRemapper(g models.Grid) *Remapper {
	r := &Remapper{
		grid:   g,
		sinLat: make([]float64, g.Rows),
		cosLat: make([]float64, g.Rows),
		lons:   make([]float64, g.Cols),
	}
	for i := 0; i < g.Rows; i++ {
		r.sinLat[i], r.cosLat[i] = math.Sincos(g.Latitude(i) * deg)
	}
	for j := 0; j < g.Cols; j++ {
		r.lons[j] = g.RawLongitude(j) * deg
	}
	return r
}

// Remap resamples a frame onto the grid with bilinear interpolation. The
// validity mask of the result is the footprint of the frame: far-side
// cells, cells outside the image and cells touching non-finite source
// pixels carry no data. Intensities are returned as recorded.
func (r *Remapper) Remap(f *models.Frame) (*models.Map, error) {
	if f.Exposure == 0 || math.IsNaN(f.Exposure) || math.IsInf(f.Exposure, 0) {
		return nil, ErrZeroExposure
	}
	if f.Width < 2 || f.Height < 2 || len(f.Data) != f.Width*f.Height {
		return nil, fmt.Errorf("frame %dx%d with %d samples", f.Width, f.Height, len(f.Data))
	}
	if f.View.RadiusPx <= 0 {
		return nil, fmt.Errorf("frame has non-positive solar radius %g", f.View.RadiusPx)
	}

	out := models.NewMap(r.grid)
	sinB0, cosB0 := math.Sincos(f.View.B0 * deg)
	sinP, cosP := math.Sincos(f.View.P * deg)
	l0 := f.View.L0 * deg

	for i := 0; i < r.grid.Rows; i++ {
		for j := 0; j < r.grid.Cols; j++ {
			sinDL, cosDL := math.Sincos(r.lons[j] - l0)

			// heliocentric-cartesian direction, z towards the observer
			x := r.cosLat[i] * sinDL
			y := r.sinLat[i]*cosB0 - r.cosLat[i]*cosDL*sinB0
			z := r.sinLat[i]*sinB0 + r.cosLat[i]*cosDL*cosB0
			if z <= 0 {
				continue
			}

			px := f.View.CenterX + f.View.RadiusPx*(x*cosP-y*sinP)
			py := f.View.CenterY + f.View.RadiusPx*(x*sinP+y*cosP)
			if v, ok := bilinear(f, px, py); ok {
				out.Set(i, j, v)
			}
		}
	}
	return out, nil
}

// bilinear interpolates the frame at fractional pixel (x, y). Rows grow
// towards solar north.
func bilinear(f *models.Frame, x, y float64) (float64, bool) {
	if x < 0 || y < 0 || x > float64(f.Width-1) || y > float64(f.Height-1) {
		return 0, false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, f.Width-1), min(y0+1, f.Height-1)
	fx, fy := x-float64(x0), y-float64(y0)

	v00, v10 := f.At(x0, y0), f.At(x1, y0)
	v01, v11 := f.At(x0, y1), f.At(x1, y1)
	for _, v := range [4]float64{v00, v10, v01, v11} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
	}

	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return top*(1-fy) + bottom*fy, true
}
