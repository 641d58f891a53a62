package mask

import (
	"coronalmap/internal/models"
)

// Labels assigns every set cell of a mask the number of its connected
// region. Zero is background; regions are numbered from 1 in raster order
// of their first cell.
type Labels struct {
	models.Grid
	IDs   []int
	Count int
}

// Label finds the connected regions of the mask under the structuring
// element's connectivity (8-connected for 3x3).
func Label(m *models.Mask, s Structure) *Labels {
	l := &Labels{Grid: m.Grid, IDs: make([]int, m.Size())}
	half := s.Size / 2
	var queue []int

	for start, set := range m.Bits {
		if !set || l.IDs[start] != 0 {
			continue
		}
		l.Count++
		l.IDs[start] = l.Count
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			r, c := idx/m.Cols, idx%m.Cols

			for dr := -half; dr <= half; dr++ {
				for dc := -half; dc <= half; dc++ {
					rr, cc := r+dr, c+dc
					if rr < 0 || rr >= m.Rows || cc < 0 || cc >= m.Cols {
						continue
					}
					n := rr*m.Cols + cc
					if m.Bits[n] && l.IDs[n] == 0 {
						l.IDs[n] = l.Count
						queue = append(queue, n)
					}
				}
			}
		}
	}
	return l
}

// Regions returns the flat cell indices of every region, indexed by label.
// Entry 0 is always empty.
func (l *Labels) Regions() [][]int {
	regions := make([][]int, l.Count+1)
	for i, id := range l.IDs {
		if id != 0 {
			regions[id] = append(regions[id], i)
		}
	}
	return regions
}
