package mask

import (
	"coronalmap/internal/models"
)

// Structure is a square structuring element of odd side Size with every
// cell set (full connectivity).
type Structure struct {
	Size int
}

// FullConnectivity is the 3x3 structuring element.
var FullConnectivity = Structure{Size: 3}

// Dilate sets every cell whose neighbourhood touches a set cell. Cells
// outside the grid count as unset.
func Dilate(m *models.Mask, s Structure, iterations int) *models.Mask {
	out := m
	for i := 0; i < iterations; i++ {
		out = apply(out, s, false)
	}
	return out
}

// Erode keeps the cells whose whole neighbourhood is set. Cells outside the
// grid count as unset, so set cells on the border are removed.
func Erode(m *models.Mask, s Structure, iterations int) *models.Mask {
	out := m
	for i := 0; i < iterations; i++ {
		out = apply(out, s, true)
	}
	return out
}

// Close is dilation followed by erosion; it bridges small gaps.
func Close(m *models.Mask, s Structure, iterations int) *models.Mask {
	return Erode(Dilate(m, s, iterations), s, iterations)
}

// Open is erosion followed by dilation; it removes speckle and thin spurs.
func Open(m *models.Mask, s Structure, iterations int) *models.Mask {
	return Dilate(Erode(m, s, iterations), s, iterations)
}

// Clean closes then opens the candidate mask and intersects the result with
// the candidates, so cleaning only ever removes cells.
func Clean(candidate *models.Mask, s Structure, iterations int) *models.Mask {
	opened := Open(Close(candidate, s, iterations), s, iterations)
	out := models.NewMask(candidate.Grid)
	for i, b := range opened.Bits {
		out.Bits[i] = b && candidate.Bits[i]
	}
	return out
}

// apply runs one erosion (all) or dilation (any) pass.
func apply(m *models.Mask, s Structure, all bool) *models.Mask {
	out := models.NewMask(m.Grid)
	half := s.Size / 2
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			hit := all
		scan:
			for dr := -half; dr <= half; dr++ {
				for dc := -half; dc <= half; dc++ {
					rr, cc := r+dr, c+dc
					set := rr >= 0 && rr < m.Rows && cc >= 0 && cc < m.Cols && m.At(rr, cc)
					if all && !set {
						hit = false
						break scan
					}
					if !all && set {
						hit = true
						break scan
					}
				}
			}
			out.Set(r, c, hit)
		}
	}
	return out
}
