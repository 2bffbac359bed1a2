package nbbo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/tickio"
)

// PartitionedWriter owns one tick writer per output year, opened lazily
// on first write and each closed exactly once. Writes for the same year
// from different shards are serialized by the internal mutex; contention
// is low because the partition pass is shard-sequential.
type PartitionedWriter struct {
	dir     string
	symRoot string

	mu      sync.Mutex
	writers map[int]*tickio.TickWriter
	closed  bool
}

// NewPartitionedWriter prepares a writer rooted at dir, creating it.
func NewPartitionedWriter(dir, symRoot string) (*PartitionedWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &PartitionedWriter{
		dir:     dir,
		symRoot: symRoot,
		writers: make(map[int]*tickio.TickWriter),
	}, nil
}

// Append routes one tick to its year file.
func (p *PartitionedWriter) Append(year int, t tickio.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("append to closed partitioned writer")
	}
	w, ok := p.writers[year]
	if !ok {
		path := filepath.Join(p.dir, fmt.Sprintf("%s_%d%s", p.symRoot, year, tickSuffix))
		var err error
		w, err = tickio.NewTickWriter(path)
		if err != nil {
			return fmt.Errorf("open year %d writer: %w", year, err)
		}
		p.writers[year] = w
		log.Info().Int("year", year).Str("path", path).Msg("opened year partition")
	}
	return w.Append(t)
}

// Close closes every open year writer. Calling Close twice is a logic
// error.
func (p *PartitionedWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("partitioned writer closed twice")
	}
	p.closed = true

	years := make([]int, 0, len(p.writers))
	for y := range p.writers {
		years = append(years, y)
	}
	sort.Ints(years)

	var firstErr error
	for _, y := range years {
		w := p.writers[y]
		rows := w.Rows()
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close year %d: %w", y, err)
		}
		log.Info().Int("year", y).Uint64("rows", rows).Msg("closed year partition")
	}
	return firstErr
}

// Years returns the years written so far, sorted.
func (p *PartitionedWriter) Years() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	years := make([]int, 0, len(p.writers))
	for y := range p.writers {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
