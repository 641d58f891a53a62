// Package retrieve locates and loads the full-disk frames of an instrument
// for an observation window.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coronalmap/internal/models"
	"coronalmap/pkg/store"
)

// ErrNoFrames is returned when an instrument has no frames in the window.
var ErrNoFrames = errors.New("no frames in window")

// frameSuffix ends every frame file name.
const frameSuffix = ".frame.gz"

// timeLayout is the observation time embedded in frame file names.
const timeLayout = "20060102T150405"

// Query selects the frames of one instrument.
type Query struct {
	Instrument models.Instrument

	// Start and End bound the observation times, End excluded
	Start, End time.Time

	// Cadence keeps at most one frame per interval; zero keeps every frame
	Cadence time.Duration
}

// Record identifies one frame found by a search.
type Record struct {
	Instrument string
	ObservedAt time.Time
	Path       string
}

// Source is the data layer the pipeline reads frames from.
type Source interface {
	// Search returns the records matching the query ordered by observation
	// time, or ErrNoFrames when nothing matches.
	Search(ctx context.Context, q Query) ([]Record, error)

	// Load reads the frame behind a record.
	Load(ctx context.Context, rec Record) (*models.Frame, error)
}

// DirSource serves frames from a local archive laid out as
// <root>/<instrument>/<instrument>_<yyyymmddThhmmss>.frame.gz.
type DirSource struct {
	root string
	log  zerolog.Logger
}

// NewDirSource returns a source reading the archive under root.
func NewDirSource(root string, log zerolog.Logger) *DirSource {
	return &DirSource{root: root, log: log}
}

// Search lists the instrument's frames inside [q.Start, q.End) and keeps
// the first frame of every cadence interval counted from q.Start.
func (s *DirSource) Search(ctx context.Context, q Query) ([]Record, error) {
	dir := filepath.Join(s.root, q.Instrument.Name)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", q.Instrument.Name, ErrNoFrames)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var all []Record
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, frameSuffix) {
			continue
		}
		at, ok := parseName(q.Instrument.Name, name)
		if !ok {
			s.log.Debug().Str("file", name).Msg("skipping unrecognized frame name")
			continue
		}
		if at.Before(q.Start) || !at.Before(q.End) {
			continue
		}
		all = append(all, Record{Instrument: q.Instrument.Name, ObservedAt: at, Path: filepath.Join(dir, name)})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ObservedAt.Before(all[j].ObservedAt)
	})

	records := Sample(all, q.Start, q.Cadence)
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", q.Instrument.Name, ErrNoFrames)
	}
	return records, nil
}

// Load reads and decodes a frame file.
func (s *DirSource) Load(ctx context.Context, rec Record) (*models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFrame(rec.Path)
}

// Sample keeps the first record of every cadence interval counted from
// start. Records must be sorted by observation time.
func Sample(records []Record, start time.Time, cadence time.Duration) []Record {
	if cadence <= 0 {
		return records
	}
	var out []Record
	last := int64(-1)
	for _, r := range records {
		bucket := int64(r.ObservedAt.Sub(start) / cadence)
		if bucket == last {
			continue
		}
		last = bucket
		out = append(out, r)
	}
	return out
}

// FrameName returns the archive file name of a frame.
func FrameName(instrument string, at time.Time) string {
	return instrument + "_" + at.UTC().Format(timeLayout) + frameSuffix
}

func parseName(instrument, name string) (time.Time, bool) {
	stem := strings.TrimSuffix(name, frameSuffix)
	prefix := instrument + "_"
	if !strings.HasPrefix(stem, prefix) {
		return time.Time{}, false
	}
	at, err := time.Parse(timeLayout, strings.TrimPrefix(stem, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// frameMeta is the metadata block of a frame file.
type frameMeta struct {
	Instrument string          `yaml:"instrument"`
	ObservedAt time.Time       `yaml:"observedAt"`
	Exposure   float64         `yaml:"exposure"`
	View       models.DiskView `yaml:"view"`
}

// ReadFrame decodes a frame file. Off-disk pixels come back as NaN.
func ReadFrame(path string) (*models.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var meta frameMeta
	r, err := store.Decode(f, &meta)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
	}
	for i, ok := range r.Valid {
		if !ok {
			r.Data[i] = math.NaN()
		}
	}
	return &models.Frame{
		Instrument: meta.Instrument,
		Width:      r.Cols,
		Height:     r.Rows,
		Data:       r.Data,
		View:       meta.View,
		Exposure:   meta.Exposure,
		ObservedAt: meta.ObservedAt,
	}, nil
}

// WriteFrame stores a frame in the archive under root and returns its path.
func WriteFrame(root string, frame *models.Frame) (string, error) {
	path := filepath.Join(root, frame.Instrument, FrameName(frame.Instrument, frame.ObservedAt))
	meta := frameMeta{
		Instrument: frame.Instrument,
		ObservedAt: frame.ObservedAt.UTC(),
		Exposure:   frame.Exposure,
		View:       frame.View,
	}
	valid := make([]bool, len(frame.Data))
	for i, v := range frame.Data {
		valid[i] = !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	raster := store.Raster{Rows: frame.Height, Cols: frame.Width, Data: frame.Data, Valid: valid}

	err := store.WriteAtomic(path, func(w io.Writer) error {
		return store.Encode(w, meta, raster)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write frame %s: %w", path, err)
	}
	return path, nil
}
