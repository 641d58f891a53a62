package models

import (
	"time"
)

// Instrument identifies one EUV imager contributing to the composite.
type Instrument struct {
	// Name is the short identifier used for directories and logs (aia, sta, stb)
	Name string `yaml:"name"`

	// Source is the observatory (SDO, STEREO_A, STEREO_B)
	Source string `yaml:"source"`

	// Detector is the imager on the observatory (AIA, EUVI)
	Detector string `yaml:"detector"`

	// Wavelength is the passband centre in nm
	Wavelength float64 `yaml:"wavelength"`
}

// DiskView is the native coordinate system of a full-disk image: an
// orthographic view of the solar sphere from an observer sitting above
// Carrington longitude L0 and latitude B0.
type DiskView struct {
	// CenterX, CenterY locate the disk centre in 0-based pixel coordinates
	CenterX float64 `yaml:"centerX"`
	CenterY float64 `yaml:"centerY"`

	// RadiusPx is the apparent solar radius in pixels
	RadiusPx float64 `yaml:"radiusPx"`

	// L0 and B0 are the Carrington longitude and latitude of disk centre in degrees
	L0 float64 `yaml:"l0"`
	B0 float64 `yaml:"b0"`

	// P is the position angle of solar north, counter-clockwise from image up, in degrees
	P float64 `yaml:"p"`
}

// Frame is one full-disk observation as supplied by the data layer. Frames
// are read-only and consumed once by the remapper.
type Frame struct {
	// Instrument that recorded the frame
	Instrument string

	// Width, Height are the image dimensions in pixels
	Width, Height int

	// Data is the image in row-major order; non-finite values are off-disk
	Data []float64

	// View is the native coordinate system of the image
	View DiskView

	// Exposure is the exposure time in seconds
	Exposure float64

	// ObservedAt is the observation timestamp
	ObservedAt time.Time
}

// At returns the pixel at column x, row y.
func (f *Frame) At(x, y int) float64 {
	return f.Data[y*f.Width+x]
}
