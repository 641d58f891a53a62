package models

import (
	"time"
)

// Header is the coordinate header attached to every persisted grid. It
// describes the finalized Carrington CAR projection: longitude 0 on the
// centre column, latitude 0 between the two middle rows.
type Header struct {
	CType1 string  `yaml:"ctype1"`
	CType2 string  `yaml:"ctype2"`
	CRPix1 float64 `yaml:"crpix1"`
	CRPix2 float64 `yaml:"crpix2"`
	CRVal1 float64 `yaml:"crval1"`
	CRVal2 float64 `yaml:"crval2"`
	CDelt1 float64 `yaml:"cdelt1"`
	CDelt2 float64 `yaml:"cdelt2"`
	NAxis1 int     `yaml:"naxis1"`
	NAxis2 int     `yaml:"naxis2"`

	// Rotation is the Carrington rotation number of the map, 0 if unset
	Rotation int `yaml:"rotation,omitempty"`

	// Start and End bound the observations folded into the map
	Start time.Time `yaml:"start,omitempty"`
	End   time.Time `yaml:"end,omitempty"`

	// Skipped lists instruments that contributed nothing to the rotation
	Skipped []string `yaml:"skipped,omitempty"`

	// Regions is the number of regions that survived validation
	Regions int `yaml:"regions"`
}

// NewHeader builds the projection header for a finalized grid. FITS
// reference pixels are 1-based.
func NewHeader(g Grid) Header {
	return Header{
		CType1: "CRLN-CAR",
		CType2: "CRLT-CAR",
		CRPix1: float64(g.Cols/2) + 1,
		CRPix2: float64(g.Rows)/2 + 0.5,
		CRVal1: 0,
		CRVal2: 0,
		CDelt1: 360 / float64(g.Cols),
		CDelt2: 180 / float64(g.Rows),
		NAxis1: g.Cols,
		NAxis2: g.Rows,
	}
}

// Grid returns the grid shape described by the header.
func (h Header) Grid() Grid {
	return Grid{Rows: h.NAxis2, Cols: h.NAxis1}
}
