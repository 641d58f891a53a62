// Package store persists the per-rotation coronal-hole artifacts. Every
// artifact is keyed by rotation number and kind and is written atomically,
// so an existing file is always a complete one.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"coronalmap/internal/models"
)

// ErrNotFound is returned when an artifact has not been written.
var ErrNotFound = errors.New("artifact not found")

// Kind names a per-rotation artifact.
type Kind string

const (
	// KindFinalMask is the final mask weighted by the blend map
	KindFinalMask Kind = "chmap"

	// KindBlend is the blend map alone
	KindBlend Kind = "chim"
)

// Store is a directory of rotation artifacts.
type Store struct {
	dir string
}

// New opens (and creates) an artifact directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "chmap"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file holding an artifact.
func (s *Store) Path(rotation int, kind Kind) string {
	name := fmt.Sprintf("chmap-%d.grid.gz", rotation)
	if kind != KindFinalMask {
		name = fmt.Sprintf("chmap-%d-%s.grid.gz", rotation, kind)
	}
	return filepath.Join(s.dir, "chmap", name)
}

// Exists reports whether an artifact has been written.
func (s *Store) Exists(rotation int, kind Kind) (bool, error) {
	_, err := os.Stat(s.Path(rotation, kind))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write stores a map with its header, replacing any previous version.
func (s *Store) Write(rotation int, kind Kind, m *models.Map, h models.Header) error {
	path := s.Path(rotation, kind)
	err := WriteAtomic(path, func(w io.Writer) error {
		return Encode(w, h, Raster{Rows: m.Rows, Cols: m.Cols, Data: m.Data, Valid: m.Valid})
	})
	if err != nil {
		return fmt.Errorf("failed to write %s for rotation %d: %w", kind, rotation, err)
	}
	return nil
}

// Read loads an artifact. It returns ErrNotFound when the artifact is
// missing.
func (s *Store) Read(rotation int, kind Kind) (*models.Map, models.Header, error) {
	var h models.Header
	f, err := os.Open(s.Path(rotation, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, h, fmt.Errorf("%s for rotation %d: %w", kind, rotation, ErrNotFound)
	}
	if err != nil {
		return nil, h, err
	}
	defer f.Close()

	r, err := Decode(f, &h)
	if err != nil {
		return nil, h, fmt.Errorf("failed to read %s for rotation %d: %w", kind, rotation, err)
	}
	m := &models.Map{
		Grid:  models.Grid{Rows: r.Rows, Cols: r.Cols},
		Data:  r.Data,
		Valid: r.Valid,
	}
	return m, h, nil
}

// WriteAtomic writes a file through a temporary sibling and renames it into
// place, so readers never observe a partial file.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create file failed: %w", err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close failed: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename failed: %w", err)
	}
	return nil
}
