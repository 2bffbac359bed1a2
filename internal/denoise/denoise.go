// Package denoise removes implausible mid-price ticks from an
// event-grid stream, one day at a time. Two rules apply: an absolute
// level cap on the mid itself, and an absolute delta cap against the
// last kept mid of the same day. The baseline resets on every day
// change, so inter-day jumps are always permitted.
package denoise

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

// Defaults for the two filters.
const (
	DefaultThreshold = 100.0  // drop |Δmid| >= threshold
	DefaultMidMax    = 1000.0 // drop mid > MID_MAX (strictly greater)
	MaxExamples      = 10
)

// Options configures a denoiser.
type Options struct {
	Threshold float64
	MidMax    float64
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, MidMax: DefaultMidMax}
}

// SpikeExample is one retained delta-spike pair for human inspection.
type SpikeExample struct {
	Day     uint32
	TSPrev  uint64
	TSCurr  uint64
	MidPrev float64
	MidCurr float64
	Delta   float64
}

// Denoiser holds the streaming state and per-day accounting.
type Denoiser struct {
	opts Options

	lastDay  uint32
	lastTS   uint64
	lastMid  float64
	haveLast bool

	RowsIn         uint64
	RowsKept       uint64
	RemovedByDelta uint64
	RemovedByLevel uint64
	KeptPerDay     map[uint32]uint64
	RemovedPerDay  map[uint32]uint64
	Examples       []SpikeExample
}

// New builds a denoiser.
func New(opts Options) *Denoiser {
	return &Denoiser{
		opts:          opts,
		KeptPerDay:    make(map[uint32]uint64),
		RemovedPerDay: make(map[uint32]uint64),
	}
}

// Keep decides whether a tick survives, updating the baseline and the
// per-day accounting. The first tick of each day is tested against the
// level filter only; a tick dropped there does not install a baseline,
// so the next good tick becomes first-of-day.
func (d *Denoiser) Keep(t tickio.Tick) bool {
	d.RowsIn++

	mid := float64(t.Mid)
	if t.TS == 0 || math.IsNaN(mid) {
		return false
	}

	day := timeutil.Day(t.TS)
	overLevel := mid > d.opts.MidMax

	if !d.haveLast || day != d.lastDay {
		if overLevel {
			d.RemovedByLevel++
			d.RemovedPerDay[day]++
			d.haveLast = false
			return false
		}
		d.keep(day, t.TS, mid)
		return true
	}

	delta := math.Abs(mid - d.lastMid)
	if delta >= d.opts.Threshold {
		d.RemovedByDelta++
		d.RemovedPerDay[day]++
		if len(d.Examples) < MaxExamples {
			d.Examples = append(d.Examples, SpikeExample{
				Day:     day,
				TSPrev:  d.lastTS,
				TSCurr:  t.TS,
				MidPrev: d.lastMid,
				MidCurr: mid,
				Delta:   delta,
			})
		}
		return false
	}
	if overLevel {
		d.RemovedByLevel++
		d.RemovedPerDay[day]++
		return false
	}
	d.keep(day, t.TS, mid)
	return true
}

func (d *Denoiser) keep(day uint32, ts uint64, mid float64) {
	d.RowsKept++
	d.KeptPerDay[day]++
	d.lastDay = day
	d.lastTS = ts
	d.lastMid = mid
	d.haveLast = true
}

// Removed returns the total number of dropped rows.
func (d *Denoiser) Removed() uint64 {
	return d.RowsIn - d.RowsKept
}

// LogSummary emits the per-day removal counts, the retained spike
// examples, and the overall totals.
func (d *Denoiser) LogSummary() {
	days := make([]uint32, 0, len(d.RemovedPerDay))
	for day := range d.RemovedPerDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	for _, day := range days {
		log.Info().
			Str("day", timeutil.DayString(day)).
			Uint64("removed", d.RemovedPerDay[day]).
			Uint64("kept", d.KeptPerDay[day]).
			Msg("denoise per-day removals")
	}

	for _, ex := range d.Examples {
		log.Info().
			Str("day", timeutil.DayString(ex.Day)).
			Uint64("ts_prev", ex.TSPrev).
			Uint64("ts_curr", ex.TSCurr).
			Float64("mid_prev", ex.MidPrev).
			Float64("mid_curr", ex.MidCurr).
			Float64("delta", ex.Delta).
			Msg("denoise spike example")
	}

	kept := float64(1)
	if d.RowsIn > 0 {
		kept = float64(d.RowsKept) / float64(d.RowsIn)
	}
	log.Info().
		Uint64("rows_in", d.RowsIn).
		Uint64("rows_out", d.RowsKept).
		Uint64("removed", d.Removed()).
		Uint64("removed_by_delta", d.RemovedByDelta).
		Uint64("removed_by_level", d.RemovedByLevel).
		Float64("kept_ratio", kept).
		Msg("denoise summary")
}
