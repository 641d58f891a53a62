package profile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"coronalmap/internal/models"
	"coronalmap/pkg/store"
)

// Row is one (rotation, latitude row) record of the profile table. No-data
// statistics are null.
type Row struct {
	Rotation     int32    `parquet:"rotation"`
	Row          int32    `parquet:"row"`
	Latitude     float64  `parquet:"latitude"`
	Coverage     *float64 `parquet:"coverage,optional"`
	Fraction     *float64 `parquet:"fraction,optional"`
	Intensity    *float64 `parquet:"intensity,optional"`
	SignedFlux   *float64 `parquet:"signed_flux,optional"`
	UnsignedFlux *float64 `parquet:"unsigned_flux,optional"`
}

// TablePath returns the profile table of rotations cr0..cr1 under outDir.
func TablePath(outDir string, cr0, cr1 int) string {
	return filepath.Join(outDir, "dat", fmt.Sprintf("profiles-%d-%d.parquet", cr0, cr1))
}

// Rows flattens profiles into table rows, rotation-major.
func Rows(p *models.Profiles) []Row {
	g := models.Grid{Rows: p.Coverage.Rows}
	out := make([]Row, 0, len(p.Rotations)*g.Rows)
	for col, cr := range p.Rotations {
		for r := 0; r < g.Rows; r++ {
			out = append(out, Row{
				Rotation:     int32(cr),
				Row:          int32(r),
				Latitude:     g.Latitude(r),
				Coverage:     cell(p.Coverage, r, col),
				Fraction:     cell(p.Fraction, r, col),
				Intensity:    cell(p.Intensity, r, col),
				SignedFlux:   cell(p.SignedFlux, r, col),
				UnsignedFlux: cell(p.UnsignedFlux, r, col),
			})
		}
	}
	return out
}

func cell(m *models.Map, r, c int) *float64 {
	v, ok := m.At(r, c)
	if !ok {
		return nil
	}
	return &v
}

// WriteTable writes the profiles as a Parquet table, atomically.
func WriteTable(path string, p *models.Profiles) error {
	rows := Rows(p)
	return store.WriteAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[Row](w)
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return fmt.Errorf("failed to write profile rows: %w", err)
		}
		return pw.Close()
	})
}

// ReadTable loads a profile table written by WriteTable.
func ReadTable(path string) (*models.Profiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	for {
		// optional columns decode into pointers owned by buf
		buf := make([]Row, 1024)
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read profile rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return fromRows(rows)
}

// fromRows rebuilds profiles from table rows in any order.
func fromRows(rows []Row) (*models.Profiles, error) {
	seen := make(map[int]bool)
	latRows := 0
	for _, r := range rows {
		seen[int(r.Rotation)] = true
		latRows = max(latRows, int(r.Row)+1)
	}
	rotations := make([]int, 0, len(seen))
	for cr := range seen {
		rotations = append(rotations, cr)
	}
	sort.Ints(rotations)

	p := models.NewProfiles(latRows, rotations)
	column := make(map[int]int, len(rotations))
	for i, cr := range rotations {
		column[cr] = i
	}
	for _, r := range rows {
		if r.Row < 0 {
			return nil, fmt.Errorf("negative row %d in rotation %d", r.Row, r.Rotation)
		}
		col, row := column[int(r.Rotation)], int(r.Row)
		set(p.Coverage, row, col, r.Coverage)
		set(p.Fraction, row, col, r.Fraction)
		set(p.Intensity, row, col, r.Intensity)
		set(p.SignedFlux, row, col, r.SignedFlux)
		set(p.UnsignedFlux, row, col, r.UnsignedFlux)
	}
	return p, nil
}

func set(m *models.Map, r, c int, v *float64) {
	if v != nil && !math.IsNaN(*v) {
		m.Set(r, c, *v)
	}
}
