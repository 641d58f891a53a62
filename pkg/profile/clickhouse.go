package profile

import (
	"context"
	"fmt"
	"math"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/rs/zerolog"

	"coronalmap/internal/models"
)

// BatchLimit is the number of rows sent per insert block.
const BatchLimit = 50000

// Batch holds profile rows as ClickHouse columns. No-data statistics are
// sent as NaN.
type Batch struct {
	Rotation     *proto.ColInt32
	Row          *proto.ColUInt16
	Latitude     *proto.ColFloat64
	Coverage     *proto.ColFloat64
	Fraction     *proto.ColFloat64
	Intensity    *proto.ColFloat64
	SignedFlux   *proto.ColFloat64
	UnsignedFlux *proto.ColFloat64
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		Rotation:     new(proto.ColInt32),
		Row:          new(proto.ColUInt16),
		Latitude:     new(proto.ColFloat64),
		Coverage:     new(proto.ColFloat64),
		Fraction:     new(proto.ColFloat64),
		Intensity:    new(proto.ColFloat64),
		SignedFlux:   new(proto.ColFloat64),
		UnsignedFlux: new(proto.ColFloat64),
	}
}

// Reset empties every column for the next block.
func (b *Batch) Reset() {
	b.Rotation.Reset()
	b.Row.Reset()
	b.Latitude.Reset()
	b.Coverage.Reset()
	b.Fraction.Reset()
	b.Intensity.Reset()
	b.SignedFlux.Reset()
	b.UnsignedFlux.Reset()
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return b.Rotation.Rows()
}

// Input binds the columns to the table's column names for an insert.
func (b *Batch) Input() proto.Input {
	return proto.Input{
		{Name: "rotation", Data: b.Rotation},
		{Name: "row", Data: b.Row},
		{Name: "latitude", Data: b.Latitude},
		{Name: "coverage", Data: b.Coverage},
		{Name: "fraction", Data: b.Fraction},
		{Name: "intensity", Data: b.Intensity},
		{Name: "signed_flux", Data: b.SignedFlux},
		{Name: "unsigned_flux", Data: b.UnsignedFlux},
	}
}

// AddRow appends one table row.
func (b *Batch) AddRow(r Row) {
	b.Rotation.Append(r.Rotation)
	b.Row.Append(uint16(r.Row))
	b.Latitude.Append(r.Latitude)
	b.Coverage.Append(orNaN(r.Coverage))
	b.Fraction.Append(orNaN(r.Fraction))
	b.Intensity.Append(orNaN(r.Intensity))
	b.SignedFlux.Append(orNaN(r.SignedFlux))
	b.UnsignedFlux.Append(orNaN(r.UnsignedFlux))
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Exporter inserts profile rows into a ClickHouse table.
type Exporter struct {
	conn     *ch.Client
	tableFQN string
	log      zerolog.Logger
}

// NewExporter connects to ClickHouse with LZ4 compression.
func NewExporter(ctx context.Context, address, database, table string, log zerolog.Logger) (*Exporter, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     address,
		Database:    database,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse at %s: %w", address, err)
	}
	return &Exporter{
		conn:     conn,
		tableFQN: fmt.Sprintf("%s.%s", database, table),
		log:      log,
	}, nil
}

// EnsureTable creates the profile table if it does not exist. Re-exported
// rotations replace their earlier rows on merge.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	rotation Int32,
	row UInt16,
	latitude Float64,
	coverage Float64,
	fraction Float64,
	intensity Float64,
	signed_flux Float64,
	unsigned_flux Float64
) ENGINE = ReplacingMergeTree ORDER BY (rotation, row)`, e.tableFQN)
	return e.conn.Do(ctx, ch.Query{Body: query})
}

// Export inserts every row of the profiles, BatchLimit rows per block.
func (e *Exporter) Export(ctx context.Context, p *models.Profiles) error {
	batch := NewBatch()
	total := 0
	for _, r := range Rows(p) {
		batch.AddRow(r)
		if batch.Len() >= BatchLimit {
			if err := e.flush(ctx, batch); err != nil {
				return err
			}
			total += BatchLimit
			batch.Reset()
		}
	}
	if batch.Len() > 0 {
		if err := e.flush(ctx, batch); err != nil {
			return err
		}
		total += batch.Len()
	}

	e.log.Info().Int("rows", total).Str("table", e.tableFQN).Msg("profiles exported")
	return nil
}

func (e *Exporter) flush(ctx context.Context, batch *Batch) error {
	query := fmt.Sprintf("INSERT INTO %s (rotation, row, latitude, coverage, fraction, intensity, signed_flux, unsigned_flux) VALUES", e.tableFQN)
	if err := e.conn.Do(ctx, ch.Query{Body: query, Input: batch.Input()}); err != nil {
		return fmt.Errorf("failed to insert profiles into %s: %w", e.tableFQN, err)
	}
	return nil
}

// Close closes the ClickHouse connection.
func (e *Exporter) Close() {
	e.conn.Close()
}
