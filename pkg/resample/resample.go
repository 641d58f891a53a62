// Package resample brings raw synoptic magnetograms onto the working grid.
package resample

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/interp"

	"coronalmap/internal/models"
	"coronalmap/pkg/store"
)

// ErrMissing reports a rotation without a magnetogram.
var ErrMissing = errors.New("magnetogram missing")

// Magnetogram is a raw synoptic map of the radial field on its own
// equirectangular grid. Row r is centred on latitude -90+(r+0.5)*180/Rows
// and column c on longitude LonOrigin+(c+0.5)*360/Cols. Non-finite samples
// carry no data.
type Magnetogram struct {
	Rotation  int       `yaml:"rotation"`
	LonOrigin float64   `yaml:"lonOrigin"`
	Rows      int       `yaml:"-"`
	Cols      int       `yaml:"-"`
	Data      []float64 `yaml:"-"`
}

// ToGrid resamples the magnetogram onto g with separable linear
// interpolation. Longitude wraps around; latitude is clamped at the poles.
// Target cells whose stencil touches a non-finite sample carry no data.
func ToGrid(src Magnetogram, g models.Grid) (*models.Map, error) {
	if src.Rows < 2 || src.Cols < 2 || len(src.Data) != src.Rows*src.Cols {
		return nil, fmt.Errorf("magnetogram %dx%d with %d samples", src.Rows, src.Cols, len(src.Data))
	}

	// longitude pass, with one wrapped column on each side
	lonStep := 360 / float64(src.Cols)
	xs := make([]float64, src.Cols+2)
	for c := range xs {
		xs[c] = src.LonOrigin + (float64(c)-0.5)*lonStep
	}
	targetLons := make([]float64, g.Cols)
	for c := range targetLons {
		lon := math.Mod(g.Longitude(c)-src.LonOrigin, 360)
		if lon < 0 {
			lon += 360
		}
		targetLons[c] = src.LonOrigin + lon
	}

	rowsOut := make([][]float64, src.Rows)
	ys := make([]float64, src.Cols+2)
	for r := 0; r < src.Rows; r++ {
		row := src.Data[r*src.Cols : (r+1)*src.Cols]
		ys[0] = row[src.Cols-1]
		copy(ys[1:], row)
		ys[src.Cols+1] = row[0]

		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("longitude fit of row %d: %w", r, err)
		}
		rowsOut[r] = make([]float64, g.Cols)
		for c, lon := range targetLons {
			rowsOut[r][c] = pl.Predict(lon)
		}
	}

	// latitude pass
	latStep := 180 / float64(src.Rows)
	lats := make([]float64, src.Rows)
	for r := range lats {
		lats[r] = -90 + (float64(r)+0.5)*latStep
	}
	values := make([]float64, g.Size())
	column := make([]float64, src.Rows)
	for c := 0; c < g.Cols; c++ {
		for r := range column {
			column[r] = rowsOut[r][c]
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(lats, column); err != nil {
			return nil, fmt.Errorf("latitude fit of column %d: %w", c, err)
		}
		for r := 0; r < g.Rows; r++ {
			values[r*g.Cols+c] = pl.Predict(g.Latitude(r))
		}
	}

	return models.MapFromFloats(g, values)
}

// ReadFile loads a raw magnetogram written by WriteFile.
func ReadFile(path string) (Magnetogram, error) {
	var m Magnetogram
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()

	raster, err := store.Decode(f, &m)
	if err != nil {
		return m, fmt.Errorf("failed to read magnetogram %s: %w", path, err)
	}
	m.Rows, m.Cols = raster.Rows, raster.Cols
	m.Data = raster.Data
	for i, ok := range raster.Valid {
		if !ok {
			m.Data[i] = math.NaN()
		}
	}
	return m, nil
}

// WriteFile stores a raw magnetogram atomically.
func WriteFile(path string, m Magnetogram) error {
	valid := make([]bool, len(m.Data))
	for i, v := range m.Data {
		valid[i] = !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	raster := store.Raster{Rows: m.Rows, Cols: m.Cols, Data: m.Data, Valid: valid}
	return store.WriteAtomic(path, func(w io.Writer) error {
		return store.Encode(w, m, raster)
	})
}

// Load reads the magnetogram of a rotation from dir and resamples it onto
// g. It returns ErrMissing when the file does not exist.
func Load(dir string, rotation int, g models.Grid) (*models.Map, error) {
	path := Path(dir, rotation)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("rotation %d: %w", rotation, ErrMissing)
	}
	raw, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ToGrid(raw, g)
}

// Path returns the magnetogram file of a rotation.
func Path(dir string, rotation int) string {
	return filepath.Join(dir, fmt.Sprintf("mag-%d.grid.gz", rotation))
}
