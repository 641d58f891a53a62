package models

// Profiles are latitude-by-rotation statistics of the coronal-hole maps.
// Each statistic is a map with one row per grid latitude row and one column
// per rotation; rotations without artifacts are left as no-data columns.
type Profiles struct {
	// Rotations are the Carrington rotation numbers of the columns
	Rotations []int

	// Coverage is the mean weighted-mask value per latitude row
	Coverage *Map

	// Fraction is the share of longitudes with a non-zero weighted mask
	Fraction *Map

	// Intensity is the mean blend value per latitude row
	Intensity *Map

	// SignedFlux and UnsignedFlux sum the field times pixel area under the
	// mask, in Mx
	SignedFlux   *Map
	UnsignedFlux *Map
}

// NewProfiles allocates all-no-data profiles for rows latitude rows.
func NewProfiles(rows int, rotations []int) *Profiles {
	g := Grid{Rows: rows, Cols: len(rotations)}
	return &Profiles{
		Rotations:    rotations,
		Coverage:     NewMap(g),
		Fraction:     NewMap(g),
		Intensity:    NewMap(g),
		SignedFlux:   NewMap(g),
		UnsignedFlux: NewMap(g),
	}
}

// Column returns the column of rotation cr, or -1.
func (p *Profiles) Column(cr int) int {
	for i, r := range p.Rotations {
		if r == cr {
			return i
		}
	}
	return -1
}
