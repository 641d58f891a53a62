// Package blend merges the instrument composites into one normalized
// intensity map, used as a soft confidence weight on the final mask.
package blend

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"coronalmap/internal/models"
)

// Normalize rescales the valid cells of a composite to [0, 1] by
// subtracting the minimum and dividing by the resulting maximum. An empty or
// constant composite normalizes to all no-data.
func Normalize(m *models.Map) *models.Map {
	out := models.NewMap(m.Grid)
	finite := m.Finite()
	if len(finite) == 0 {
		return out
	}
	lo := floats.Min(finite)
	scale := floats.Max(finite) - lo
	if scale == 0 {
		return out
	}
	for i, ok := range m.Valid {
		if ok {
			out.Data[i] = (m.Data[i] - lo) / scale
			out.Valid[i] = true
		}
	}
	return out
}

// Blend normalizes every composite and returns their element-wise minimum.
// No-data cells of one composite defer to the others.
func Blend(composites []*models.Map) (*models.Map, error) {
	if len(composites) == 0 {
		return nil, fmt.Errorf("no composites to blend")
	}
	out := models.NewMap(composites[0].Grid)
	for _, c := range composites {
		if c.Grid != out.Grid {
			return nil, fmt.Errorf("composite grid %dx%d does not match %dx%d", c.Rows, c.Cols, out.Rows, out.Cols)
		}
		n := Normalize(c)
		for i, ok := range n.Valid {
			if !ok {
				continue
			}
			if !out.Valid[i] || n.Data[i] < out.Data[i] {
				out.Data[i] = n.Data[i]
				out.Valid[i] = true
			}
		}
	}
	return out, nil
}

// Weight multiplies the final mask by the blend map. Cells where the blend
// has no data carry no data in the result.
func Weight(final *models.Mask, b *models.Map) (*models.Map, error) {
	if final.Grid != b.Grid {
		return nil, fmt.Errorf("mask grid %dx%d does not match blend %dx%d", final.Rows, final.Cols, b.Rows, b.Cols)
	}
	out := models.NewMap(b.Grid)
	for i, ok := range b.Valid {
		if !ok {
			continue
		}
		out.Valid[i] = true
		if final.Bits[i] {
			out.Data[i] = b.Data[i]
		}
	}
	return out, nil
}
