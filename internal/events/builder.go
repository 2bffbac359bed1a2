// Package events transforms a cleaned event-grid tick stream into
// labeled mid-change events. An event is created at every tick whose
// log return is finite and non-zero; it is emitted once the next
// same-day mid change supplies its label (direction, next mid, waiting
// time). Pending events are discarded at day boundaries and at end of
// stream.
package events

import (
	"math"

	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

// DefaultThresholdNext is the outlier cap on |mid_next - mid| in price
// units.
const DefaultThresholdNext = 1.0

// EmitFunc receives labeled events in stream order.
type EmitFunc func(tickio.LabeledEvent) error

// Builder holds per-day quote-age state and the single pending event.
type Builder struct {
	thresholdNext float64

	currDay uint32
	haveDay bool

	lastBidPrice float64
	lastAskPrice float64
	bidOriginMs  int
	askOriginMs  int
	ageBidMs     float64
	ageAskMs     float64

	lastMoveSign float64
	prevEvent    tickio.LabeledEvent
	havePrev     bool

	TicksTotal            uint64
	EventsDetected        uint64
	EventsWritten         uint64
	EventsDroppedBigmove  uint64
	EventsDroppedBoundary uint64
}

// NewBuilder creates a builder with the given big-move cap.
func NewBuilder(thresholdNext float64) *Builder {
	return &Builder{thresholdNext: thresholdNext}
}

// Push processes one tick.
func (b *Builder) Push(t tickio.Tick, emit EmitFunc) error {
	b.TicksTotal++

	mid := float64(t.Mid)
	bid := float64(t.Bid)
	ask := float64(t.Ask)
	bidSz := float64(t.BidSize)
	askSz := float64(t.AskSize)
	spread := float64(t.Spread)
	if t.TS == 0 || math.IsNaN(mid) || math.IsNaN(bid) || math.IsNaN(ask) ||
		math.IsNaN(bidSz) || math.IsNaN(askSz) || math.IsNaN(spread) {
		return nil
	}

	day := timeutil.Day(t.TS)
	ms := timeutil.MsSinceMidnight(t.TS)
	if !b.haveDay || day != b.currDay {
		b.startNewDay(day, ms, bid, ask)
	}

	b.updateQuoteAges(ms, bid, ask)
	imbalance := computeImbalance(bidSz, askSz)
	ageDiffMs := b.ageBidMs - b.ageAskMs

	// Only a finite, non-zero log return marks a mid change.
	lr := float64(t.LogRet)
	if math.IsNaN(lr) || math.IsInf(lr, 0) || lr == 0 {
		return nil
	}
	b.EventsDetected++

	ev := tickio.LabeledEvent{
		TS:        t.TS,
		Day:       day,
		Mid:       mid,
		Spread:    spread,
		Imbalance: imbalance,
		AgeDiffMs: ageDiffMs,
		LastMove:  b.lastMoveSign,
	}

	if err := b.labelAndEmitPrev(ev, ms, emit); err != nil {
		return err
	}

	if lr > 0 {
		b.lastMoveSign = 1
	} else {
		b.lastMoveSign = -1
	}
	b.prevEvent = ev
	b.havePrev = true
	return nil
}

// Finish drops any pending event; the last mid change of the stream has
// no next same-day move.
func (b *Builder) Finish() {
	if b.havePrev {
		b.EventsDroppedBoundary++
		b.havePrev = false
	}
}

func (b *Builder) startNewDay(day uint32, ms int, bid, ask float64) {
	b.currDay = day
	b.haveDay = true
	b.lastBidPrice = bid
	b.lastAskPrice = ask
	b.bidOriginMs = ms
	b.askOriginMs = ms
	b.lastMoveSign = 0
	if b.havePrev {
		b.EventsDroppedBoundary++
		b.havePrev = false
	}
}

// updateQuoteAges restarts a side's age clock whenever its best price
// changes.
func (b *Builder) updateQuoteAges(ms int, bid, ask float64) {
	if bid != b.lastBidPrice {
		b.lastBidPrice = bid
		b.bidOriginMs = ms
	}
	if ask != b.lastAskPrice {
		b.lastAskPrice = ask
		b.askOriginMs = ms
	}
	b.ageBidMs = float64(ms - b.bidOriginMs)
	b.ageAskMs = float64(ms - b.askOriginMs)
}

func computeImbalance(bidSz, askSz float64) float64 {
	denom := bidSz + askSz
	if denom == 0 {
		return 0
	}
	return (bidSz - askSz) / denom
}

// labelAndEmitPrev labels the pending event with the current one as its
// next same-day mid change, dropping it instead when the move exceeds
// the big-move cap.
func (b *Builder) labelAndEmitPrev(ev tickio.LabeledEvent, msCurr int, emit EmitFunc) error {
	if !b.havePrev || b.prevEvent.Day != ev.Day {
		return nil
	}
	dmid := ev.Mid - b.prevEvent.Mid
	if math.Abs(dmid) > b.thresholdNext {
		b.EventsDroppedBigmove++
		return nil
	}
	b.prevEvent.MidNext = ev.Mid
	switch {
	case dmid > 0:
		b.prevEvent.Y = 1
	case dmid < 0:
		b.prevEvent.Y = -1
	default:
		b.prevEvent.Y = 0
	}
	msPrev := timeutil.MsSinceMidnight(b.prevEvent.TS)
	b.prevEvent.TauMs = float64(msCurr - msPrev)

	b.EventsWritten++
	return emit(b.prevEvent)
}
