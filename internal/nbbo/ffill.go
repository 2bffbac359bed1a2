package nbbo

import (
	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

// Filler applies the bounded forward-fill rule that turns an event-grid
// tick stream into a clock grid. It is a pure function of the stream,
// so the direct CSV path and the event-cache fallback produce identical
// output by construction.
//
// For an intra-day gap of G ms between consecutive ticks:
//   - 0 < G <= MaxGapMs: emit G synthetic copies of the previous tick,
//     each one ms later, with a zero log return, then the real tick.
//   - G > MaxGapMs: emit no fills; the real tick's log return is
//     nulled, since its baseline lies across the unfilled gap.
//
// Fills never cross a day boundary.
type Filler struct {
	MaxGapMs int

	prev     tickio.Tick
	havePrev bool
}

// NewFiller builds a filler with the given gap cap in milliseconds.
func NewFiller(maxGapMs int) *Filler {
	return &Filler{MaxGapMs: maxGapMs}
}

// Push forwards one tick, inserting synthetic fills as needed.
func (f *Filler) Push(t tickio.Tick, emit EmitFunc) error {
	if f.havePrev && timeutil.SameDay(f.prev.TS, t.TS) {
		gap := timeutil.MsSinceMidnight(t.TS) - timeutil.MsSinceMidnight(f.prev.TS) - 1
		switch {
		case gap > 0 && gap <= f.MaxGapMs:
			fill := f.prev
			fill.LogRet = 0
			ts := f.prev.TS
			for g := 0; g < gap; g++ {
				ts = timeutil.IncMs(ts)
				fill.TS = ts
				if err := emit(fill); err != nil {
					return err
				}
			}
		case gap > f.MaxGapMs:
			t.LogRet = tickio.NullLogRet()
		}
	}
	f.prev = t
	f.havePrev = true
	return emit(t)
}

// Reset clears the previous-tick state, e.g. between shards.
func (f *Filler) Reset() {
	f.havePrev = false
}
