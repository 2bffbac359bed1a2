package tickio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Event file layout: 8-byte header, then fixed 76-byte rows. Columns in
// row order: ts u64, day u32, mid f64, mid_next f64, spread f64,
// imbalance f64, age_diff_ms f64, last_move f64, y f64, tau_ms f64.
const (
	eventMagic   = "NBE1"
	eventVersion = uint32(1)
	eventRowSize = 76
)

// EventWriter appends LabeledEvent rows to a file.
type EventWriter struct {
	f    *os.File
	w    *bufio.Writer
	rows uint64
}

// NewEventWriter creates the file and writes the header.
func NewEventWriter(path string) (*EventWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event file: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	var hdr [8]byte
	copy(hdr[:4], eventMagic)
	binary.LittleEndian.PutUint32(hdr[4:], eventVersion)
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write event header: %w", err)
	}
	return &EventWriter{f: f, w: w}, nil
}

// Append writes one row.
func (ew *EventWriter) Append(e LabeledEvent) error {
	var row [eventRowSize]byte
	binary.LittleEndian.PutUint64(row[0:], e.TS)
	binary.LittleEndian.PutUint32(row[8:], e.Day)
	binary.LittleEndian.PutUint64(row[12:], math.Float64bits(e.Mid))
	binary.LittleEndian.PutUint64(row[20:], math.Float64bits(e.MidNext))
	binary.LittleEndian.PutUint64(row[28:], math.Float64bits(e.Spread))
	binary.LittleEndian.PutUint64(row[36:], math.Float64bits(e.Imbalance))
	binary.LittleEndian.PutUint64(row[44:], math.Float64bits(e.AgeDiffMs))
	binary.LittleEndian.PutUint64(row[52:], math.Float64bits(e.LastMove))
	binary.LittleEndian.PutUint64(row[60:], math.Float64bits(e.Y))
	binary.LittleEndian.PutUint64(row[68:], math.Float64bits(e.TauMs))
	if _, err := ew.w.Write(row[:]); err != nil {
		return fmt.Errorf("append event row: %w", err)
	}
	ew.rows++
	return nil
}

// Rows returns the number of rows appended so far.
func (ew *EventWriter) Rows() uint64 { return ew.rows }

// Close flushes and closes the underlying file.
func (ew *EventWriter) Close() error {
	if err := ew.w.Flush(); err != nil {
		ew.f.Close()
		return fmt.Errorf("flush event file: %w", err)
	}
	if err := ew.f.Close(); err != nil {
		return fmt.Errorf("close event file: %w", err)
	}
	return nil
}

// EventReader streams LabeledEvent rows from a file.
type EventReader struct {
	f *os.File
	r *bufio.Reader
}

// OpenEventReader opens an event file and validates its header.
func OpenEventReader(path string) (*EventReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read event header: %w", err)
	}
	if string(hdr[:4]) != eventMagic {
		f.Close()
		return nil, fmt.Errorf("bad event magic %q in %s", hdr[:4], path)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != eventVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported event version %d in %s", v, path)
	}
	return &EventReader{f: f, r: r}, nil
}

// Next returns the next row, or io.EOF when the stream ends.
func (er *EventReader) Next() (LabeledEvent, error) {
	var row [eventRowSize]byte
	if _, err := io.ReadFull(er.r, row[:]); err != nil {
		if err == io.EOF {
			return LabeledEvent{}, io.EOF
		}
		return LabeledEvent{}, fmt.Errorf("read event row: %w", err)
	}
	f64 := func(off int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(row[off:]))
	}
	return LabeledEvent{
		TS:        binary.LittleEndian.Uint64(row[0:]),
		Day:       binary.LittleEndian.Uint32(row[8:]),
		Mid:       f64(12),
		MidNext:   f64(20),
		Spread:    f64(28),
		Imbalance: f64(36),
		AgeDiffMs: f64(44),
		LastMove:  f64(52),
		Y:         f64(60),
		TauMs:     f64(68),
	}, nil
}

// Close closes the underlying file.
func (er *EventReader) Close() error {
	return er.f.Close()
}
