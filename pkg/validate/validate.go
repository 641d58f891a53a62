// Package validate keeps the candidate regions whose magnetic field is
// predominantly unipolar.
//
// Coronal holes are open-field regions dominated by one polarity, which
// skews the distribution of the field samples under them. Noise-driven
// candidates sit on mixed-polarity field with a near-symmetric distribution.
package validate

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"coronalmap/internal/models"
	"coronalmap/pkg/mask"
)

// Discard reasons reported for rejected regions.
const (
	ReasonFewSamples = "few-samples"
	ReasonSymmetric  = "symmetric-field"
)

// Params controls region validation.
type Params struct {
	// MinSamples is the minimum number of finite field samples per region
	MinSamples int

	// MinSkewness is the minimum absolute skewness of the field samples
	MinSkewness float64

	// ExemptFirstLabel keeps region 1 without testing it. The historical
	// pipeline never validated its first region; this flag reproduces that.
	ExemptFirstLabel bool

	// Structure defines region connectivity
	Structure mask.Structure
}

// DefaultParams validates every region with 8-connectivity, at least 10
// samples and |skewness| >= 0.5.
func DefaultParams() Params {
	return Params{
		MinSamples:  10,
		MinSkewness: 0.5,
		Structure:   mask.FullConnectivity,
	}
}

// Region is the verdict on one connected region.
type Region struct {
	Label    int
	Pixels   int
	Samples  int
	Skewness float64
	Kept     bool
	Reason   string
}

// Validator filters cleaned masks against magnetic maps.
type Validator struct {
	params Params
	log    zerolog.Logger
}

// NewValidator returns a validator with the given parameters.
func NewValidator(params Params, log zerolog.Logger) *Validator {
	return &Validator{params: params, log: log}
}

// Validate labels the regions of the cleaned mask and removes those with
// fewer than MinSamples finite field values or with |skewness| below
// MinSkewness. It returns the final mask and one verdict per region.
func (v *Validator) Validate(cleaned *models.Mask, field *models.Map) (*models.Mask, []Region, error) {
	if cleaned.Grid != field.Grid {
		return nil, nil, fmt.Errorf("mask grid %dx%d does not match magnetic grid %dx%d",
			cleaned.Rows, cleaned.Cols, field.Rows, field.Cols)
	}

	out := cleaned.Clone()
	labels := mask.Label(cleaned, v.params.Structure)
	regions := labels.Regions()
	verdicts := make([]Region, 0, labels.Count)

	for id := 1; id <= labels.Count; id++ {
		cells := regions[id]
		region := Region{Label: id, Pixels: len(cells), Skewness: math.NaN(), Kept: true}

		samples := make([]float64, 0, len(cells))
		for _, i := range cells {
			if field.Valid[i] {
				samples = append(samples, field.Data[i])
			}
		}
		region.Samples = len(samples)

		if id == 1 && v.params.ExemptFirstLabel {
			region.Reason = "exempt"
			verdicts = append(verdicts, region)
			continue
		}

		if len(samples) < v.params.MinSamples {
			region.Kept, region.Reason = false, ReasonFewSamples
		} else {
			skew, ok := Skewness(samples)
			region.Skewness = skew
			// a field without spread has no skewness and is not tested
			if ok && math.Abs(skew) < v.params.MinSkewness {
				region.Kept, region.Reason = false, ReasonSymmetric
			}
		}

		if !region.Kept {
			for _, i := range cells {
				out.Bits[i] = false
			}
			v.log.Debug().
				Int("label", id).
				Int("pixels", region.Pixels).
				Int("samples", region.Samples).
				Float64("skewness", region.Skewness).
				Str("reason", region.Reason).
				Msg("region discarded")
		}
		verdicts = append(verdicts, region)
	}

	return out, verdicts, nil
}

// resolution is the decimal precision of float64 values.
const resolution = 1e-15

// Skewness returns the third standardized moment of the samples using
// population moments. It reports false when the spread is lost in the
// float64 resolution of the mean, including all-equal samples.
func Skewness(samples []float64) (float64, bool) {
	if len(samples) < 2 {
		return math.NaN(), false
	}
	mean := stat.Mean(samples, nil)
	m2 := stat.Moment(2, samples, nil)
	if tol := resolution * mean; m2 <= tol*tol {
		return math.NaN(), false
	}
	m3 := stat.Moment(3, samples, nil)
	return m3 / math.Pow(m2, 1.5), true
}

// Kept counts the surviving regions of a verdict list.
func Kept(regions []Region) int {
	n := 0
	for _, r := range regions {
		if r.Kept {
			n++
		}
	}
	return n
}
