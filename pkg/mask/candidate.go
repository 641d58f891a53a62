// Package mask builds the binary coronal-hole candidate mask from the
// per-instrument composites and cleans it with binary morphology.
package mask

import (
	"math"

	"coronalmap/internal/models"
)

// Input is one instrument's composite and threshold. Skipped inputs do not
// take part in the union.
type Input struct {
	Composite *models.Map
	Threshold float64
	Skipped   bool
}

// Candidates returns the union over the non-skipped instruments of the
// cells whose composite is finite, non-zero and at or below the threshold.
// When every instrument is skipped the mask is empty.
func Candidates(g models.Grid, inputs []Input) *models.Mask {
	out := models.NewMask(g)
	for _, in := range inputs {
		if in.Skipped || in.Composite == nil || math.IsNaN(in.Threshold) {
			continue
		}
		for i, ok := range in.Composite.Valid {
			if !ok {
				continue
			}
			v := in.Composite.Data[i]
			if v <= in.Threshold && v != 0 {
				out.Bits[i] = true
			}
		}
	}
	return out
}
