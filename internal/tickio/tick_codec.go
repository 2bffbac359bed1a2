package tickio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Tick file layout: 8-byte header (magic + version), then fixed 36-byte
// rows. Columns in row order: ts u64, mid f32, log_return f32, bid_size
// f32, ask_size f32, spread f32, bid f32, ask f32.
const (
	tickMagic   = "NBT1"
	tickVersion = uint32(1)
	tickRowSize = 36
)

// TickWriter appends Tick rows to a file.
type TickWriter struct {
	f    *os.File
	w    *bufio.Writer
	rows uint64
}

// NewTickWriter creates the file (truncating any previous content) and
// writes the header.
func NewTickWriter(path string) (*TickWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create tick file: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	var hdr [8]byte
	copy(hdr[:4], tickMagic)
	binary.LittleEndian.PutUint32(hdr[4:], tickVersion)
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write tick header: %w", err)
	}
	return &TickWriter{f: f, w: w}, nil
}

// Append writes one row.
func (tw *TickWriter) Append(t Tick) error {
	var row [tickRowSize]byte
	binary.LittleEndian.PutUint64(row[0:], t.TS)
	binary.LittleEndian.PutUint32(row[8:], math.Float32bits(t.Mid))
	binary.LittleEndian.PutUint32(row[12:], math.Float32bits(t.LogRet))
	binary.LittleEndian.PutUint32(row[16:], math.Float32bits(t.BidSize))
	binary.LittleEndian.PutUint32(row[20:], math.Float32bits(t.AskSize))
	binary.LittleEndian.PutUint32(row[24:], math.Float32bits(t.Spread))
	binary.LittleEndian.PutUint32(row[28:], math.Float32bits(t.Bid))
	binary.LittleEndian.PutUint32(row[32:], math.Float32bits(t.Ask))
	if _, err := tw.w.Write(row[:]); err != nil {
		return fmt.Errorf("append tick row: %w", err)
	}
	tw.rows++
	return nil
}

// Rows returns the number of rows appended so far.
func (tw *TickWriter) Rows() uint64 { return tw.rows }

// Close flushes and closes the underlying file. Close must be called
// exactly once.
func (tw *TickWriter) Close() error {
	if err := tw.w.Flush(); err != nil {
		tw.f.Close()
		return fmt.Errorf("flush tick file: %w", err)
	}
	if err := tw.f.Close(); err != nil {
		return fmt.Errorf("close tick file: %w", err)
	}
	return nil
}

// TickReader streams Tick rows from a file.
type TickReader struct {
	f *os.File
	r *bufio.Reader
}

// OpenTickReader opens a tick file and validates its header.
func OpenTickReader(path string) (*TickReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tick file: %w", err)
	}
	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read tick header: %w", err)
	}
	if string(hdr[:4]) != tickMagic {
		f.Close()
		return nil, fmt.Errorf("bad tick magic %q in %s", hdr[:4], path)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != tickVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported tick version %d in %s", v, path)
	}
	return &TickReader{f: f, r: r}, nil
}

// Next returns the next row, or io.EOF when the stream ends.
func (tr *TickReader) Next() (Tick, error) {
	var row [tickRowSize]byte
	if _, err := io.ReadFull(tr.r, row[:]); err != nil {
		if err == io.EOF {
			return Tick{}, io.EOF
		}
		return Tick{}, fmt.Errorf("read tick row: %w", err)
	}
	return Tick{
		TS:      binary.LittleEndian.Uint64(row[0:]),
		Mid:     math.Float32frombits(binary.LittleEndian.Uint32(row[8:])),
		LogRet:  math.Float32frombits(binary.LittleEndian.Uint32(row[12:])),
		BidSize: math.Float32frombits(binary.LittleEndian.Uint32(row[16:])),
		AskSize: math.Float32frombits(binary.LittleEndian.Uint32(row[20:])),
		Spread:  math.Float32frombits(binary.LittleEndian.Uint32(row[24:])),
		Bid:     math.Float32frombits(binary.LittleEndian.Uint32(row[28:])),
		Ask:     math.Float32frombits(binary.LittleEndian.Uint32(row[32:])),
	}, nil
}

// Close closes the underlying file.
func (tr *TickReader) Close() error {
	return tr.f.Close()
}
