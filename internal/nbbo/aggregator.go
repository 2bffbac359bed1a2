package nbbo

import (
	"math"

	"github.com/quantlab/nbboflow/internal/glitch"
	"github.com/quantlab/nbboflow/internal/quote"
	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

// EmitFunc receives finalized ticks in input order.
type EmitFunc func(tickio.Tick) error

// Aggregator turns a stream of accepted quotes into event-grid ticks:
// one tick per millisecond bucket that produced at least one usable
// quote. The log return is computed against the previous kept mid on
// the same day and is null otherwise.
type Aggregator struct {
	glitches *glitch.Counts
	bucket   bucket

	prevMid  float32
	prevDay  uint32
	havePrev bool
}

// NewAggregator builds an aggregator reporting into the given counters.
func NewAggregator(g *glitch.Counts) *Aggregator {
	return &Aggregator{glitches: g}
}

// Push consumes one accepted quote. A quote whose millisecond differs
// from the open bucket finalizes that bucket first.
func (a *Aggregator) Push(q quote.Record, hour int, emit EmitFunc) error {
	if a.bucket.ts == 0 {
		a.bucket.reset(q.TS)
	}
	if q.TS != a.bucket.ts {
		if err := a.finalize(emit); err != nil {
			return err
		}
		a.bucket.reset(q.TS)
	}
	a.bucket.update(q, a.glitches, hour)
	return nil
}

// Flush finalizes the last open bucket at end of stream.
func (a *Aggregator) Flush(emit EmitFunc) error {
	if a.bucket.ts == 0 {
		return nil
	}
	return a.finalize(emit)
}

func (a *Aggregator) finalize(emit EmitFunc) error {
	t, ok := a.bucket.tick()
	if !ok {
		return nil
	}
	if a.havePrev && timeutil.Day(t.TS) == a.prevDay && a.prevMid > 0 && t.Mid > 0 {
		t.LogRet = float32(math.Log(float64(t.Mid) / float64(a.prevMid)))
	}
	a.prevMid = t.Mid
	a.prevDay = timeutil.Day(t.TS)
	a.havePrev = true
	return emit(t)
}
