// Package nbbo implements stage A of the pipeline: it consumes raw
// gzip CSV quote shards, reduces accepted quotes into per-millisecond
// NBBO ticks, optionally expands them onto a clock grid with bounded
// forward fill, winsorizes log returns, and writes per-year partitioned
// tick files.
package nbbo

import (
	"runtime"

	"github.com/quantlab/nbboflow/internal/quote"
	"github.com/quantlab/nbboflow/internal/winsor"
)

// Grid selects the output policy.
type Grid int

const (
	// GridEvent emits one tick per millisecond bucket that produced at
	// least one accepted quote.
	GridEvent Grid = iota
	// GridClock additionally fills intra-day gaps up to MaxFFillGapMs
	// with synthetic copies of the previous tick.
	GridClock
)

// String names the grid for cache subdirectories and logs.
func (g Grid) String() string {
	if g == GridClock {
		return "clock"
	}
	return "event"
}

// Settings configures a stage A run.
type Settings struct {
	InDir      string // raw CSV.gz quote shards; may be empty in cache-only runs
	CacheDir   string // per-shard tick cache root (ms_event/, ms_clock/)
	OutDir     string // per-year partitioned output root
	ReportPath string // glitch report destination; empty disables

	SymRoot string // symbol prefix of shard file names
	YearLo  int    // 0 disables the lower bound
	YearHi  int    // 0 disables the upper bound

	Grid          Grid
	MaxFFillGapMs int

	Winsor winsor.Options

	Session quote.Session
	Venues  map[byte]bool

	// StaleMs is accepted for CLI compatibility and ignored; the
	// aggregator applies no staleness filter.
	StaleMs int

	Workers    int
	LogEveryIn uint64
}

// DefaultSettings returns settings matching the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		SymRoot:       "SPY",
		Grid:          GridEvent,
		MaxFFillGapMs: 250,
		Winsor:        winsor.DefaultOptions(),
		Session:       quote.DefaultSession(),
		Venues:        quote.DefaultVenues(),
		Workers:       runtime.NumCPU(),
		LogEveryIn:    5_000_000,
	}
}

// modeDirName names the output subdirectory for the grid/winsor combo.
func (s Settings) modeDirName() string {
	name := s.Grid.String()
	if s.Winsor.Mode != winsor.Off {
		name += "_winsor"
	}
	return name
}
