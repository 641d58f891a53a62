package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"gopkg.in/yaml.v3"
)

// magic opens every grid file.
const magic = "CHGRID01"

// Raster is a 2-D float grid with a validity mask, as stored on disk.
type Raster struct {
	Rows, Cols int
	Data       []float64
	Valid      []bool
}

// Encode writes a gzip-compressed grid file: the magic, a YAML metadata
// block, the dimensions, the values as little-endian float64 and the
// validity mask packed eight cells per byte.
func Encode(w io.Writer, meta any, r Raster) error {
	if len(r.Data) != r.Rows*r.Cols || len(r.Valid) != len(r.Data) {
		return fmt.Errorf("raster %dx%d with %d values and %d flags", r.Rows, r.Cols, len(r.Data), len(r.Valid))
	}
	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	zw := pgzip.NewWriter(w)
	defer zw.Close()
	bw := bufio.NewWriterSize(zw, 1<<20)

	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	head := []uint32{uint32(len(metaBytes)), uint32(r.Rows), uint32(r.Cols)}
	if err := binary.Write(bw, binary.LittleEndian, head); err != nil {
		return fmt.Errorf("failed to write grid header: %w", err)
	}
	if _, err := bw.Write(metaBytes); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	buf := make([]byte, 8)
	for _, v := range r.Data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("failed to write values: %w", err)
		}
	}
	if _, err := bw.Write(packBits(r.Valid)); err != nil {
		return fmt.Errorf("failed to write validity mask: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

// Decode reads a grid file written by Encode, unmarshaling its metadata
// into meta.
func Decode(rd io.Reader, meta any) (Raster, error) {
	zr, err := gzip.NewReader(rd)
	if err != nil {
		return Raster{}, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()
	br := bufio.NewReaderSize(zr, 1<<20)

	got := make([]byte, len(magic))
	if _, err := io.ReadFull(br, got); err != nil {
		return Raster{}, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(got) != magic {
		return Raster{}, fmt.Errorf("not a grid file (magic %q)", got)
	}

	head := make([]uint32, 3)
	if err := binary.Read(br, binary.LittleEndian, head); err != nil {
		return Raster{}, fmt.Errorf("failed to read grid header: %w", err)
	}
	metaBytes := make([]byte, head[0])
	if _, err := io.ReadFull(br, metaBytes); err != nil {
		return Raster{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	if meta != nil {
		if err := yaml.Unmarshal(metaBytes, meta); err != nil {
			return Raster{}, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	r := Raster{Rows: int(head[1]), Cols: int(head[2])}
	n := r.Rows * r.Cols
	raw := make([]byte, 8*n)
	if _, err := io.ReadFull(br, raw); err != nil {
		return Raster{}, fmt.Errorf("failed to read values: %w", err)
	}
	r.Data = make([]float64, n)
	for i := range r.Data {
		r.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}

	packed := make([]byte, (n+7)/8)
	if _, err := io.ReadFull(br, packed); err != nil {
		return Raster{}, fmt.Errorf("failed to read validity mask: %w", err)
	}
	r.Valid = unpackBits(packed, n)
	return r, nil
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(packed []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = packed[i/8]&(1<<(i%8)) != 0
	}
	return out
}
