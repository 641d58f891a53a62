// Package profile reduces per-rotation coronal-hole maps to
// latitude-by-rotation profiles of coverage, intensity and magnetic flux.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"coronalmap/internal/models"
	"coronalmap/pkg/resample"
	"coronalmap/pkg/store"
)

// SolarRadius is the photospheric radius in cm.
const SolarRadius = 6.957e10

// PixelArea returns the area in cm^2 attributed to each cell of g: the
// solar surface divided evenly among the cells.
func PixelArea(g models.Grid) float64 {
	return 4 * math.Pi * SolarRadius * SolarRadius / float64(g.Size())
}

// Aggregator reads rotation artifacts and magnetograms into profiles.
type Aggregator struct {
	store  *store.Store
	magDir string
	grid   models.Grid
	log    zerolog.Logger
}

// NewAggregator returns an aggregator over the artifacts in st.
func NewAggregator(st *store.Store, magDir string, g models.Grid, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: st, magDir: magDir, grid: g, log: log}
}

// Aggregate computes the profiles of rotations cr0..cr1 inclusive.
// Rotations whose artifacts are missing or unreadable are left as no-data
// columns, and flux stays no-data when the magnetogram is missing or
// unreadable. Only cancellation aborts the aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, cr0, cr1 int) (*models.Profiles, error) {
	if cr1 < cr0 {
		return nil, fmt.Errorf("invalid rotation range %d..%d", cr0, cr1)
	}
	rotations := make([]int, 0, cr1-cr0+1)
	for cr := cr0; cr <= cr1; cr++ {
		rotations = append(rotations, cr)
	}
	p := models.NewProfiles(a.grid.Rows, rotations)

	var present, missing, failed, noField int
	for col, cr := range rotations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := a.log.With().Int("rotation", cr).Logger()

		final, _, err := a.store.Read(cr, store.KindFinalMask)
		if errors.Is(err, store.ErrNotFound) {
			missing++
			log.Debug().Msg("no final mask, column left empty")
			continue
		}
		if err != nil {
			failed++
			log.Error().Err(err).Msg("final mask unreadable, column left empty")
			continue
		}
		blended, _, err := a.store.Read(cr, store.KindBlend)
		if err != nil {
			failed++
			log.Error().Err(err).Msg("blend map unreadable, column left empty")
			continue
		}
		if final.Grid != a.grid || blended.Grid != a.grid {
			failed++
			log.Error().
				Int("rows", final.Rows).
				Int("cols", final.Cols).
				Msg("artifacts do not match the grid, column left empty")
			continue
		}

		field, err := resample.Load(a.magDir, cr, a.grid)
		switch {
		case errors.Is(err, resample.ErrMissing):
			noField++
			log.Warn().Msg("no magnetogram, flux left empty")
			field = nil
		case err != nil:
			noField++
			log.Error().Err(err).Msg("magnetogram unreadable, flux left empty")
			field = nil
		}

		a.reduce(p, col, final, blended, field)
		present++
	}

	a.log.Info().
		Int("rotations", len(rotations)).
		Int("present", present).
		Int("missing", missing).
		Int("failed", failed).
		Int("noField", noField).
		Msg("profiles aggregated")
	return p, nil
}

// reduce fills column col of the profiles from one rotation.
func (a *Aggregator) reduce(p *models.Profiles, col int, final, blended, field *models.Map) {
	cols := float64(a.grid.Cols)
	area := PixelArea(a.grid)

	for r := 0; r < a.grid.Rows; r++ {
		var sum, nonzero, intensity, signed, unsigned float64
		var maskCells, blendCells int

		for c := 0; c < a.grid.Cols; c++ {
			if v, ok := final.At(r, c); ok {
				maskCells++
				sum += v
				if v != 0 {
					nonzero++
					if field != nil {
						if b, ok := field.At(r, c); ok {
							signed += b * area
							unsigned += math.Abs(b * area)
						}
					}
				}
			}
			if v, ok := blended.At(r, c); ok {
				blendCells++
				intensity += v
			}
		}

		if maskCells > 0 {
			p.Coverage.Set(r, col, sum/cols)
			p.Fraction.Set(r, col, nonzero/cols)
		}
		if blendCells > 0 {
			p.Intensity.Set(r, col, intensity/cols)
		}
		if field != nil {
			p.SignedFlux.Set(r, col, signed)
			p.UnsignedFlux.Set(r, col, unsigned)
		}
	}
}
