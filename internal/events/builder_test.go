package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

func collect(dst *[]tickio.LabeledEvent) EmitFunc {
	return func(e tickio.LabeledEvent) error {
		*dst = append(*dst, e)
		return nil
	}
}

// mkTick builds an event-grid tick at ms-of-session offset `ms`.
func mkTick(day uint32, ms int, mid, bid, ask float64, bidSz, askSz float32, logRet float32) tickio.Tick {
	h := 9
	m := 30 + ms/60000
	s := (ms % 60000) / 1000
	milli := ms % 1000
	return tickio.Tick{
		TS:      timeutil.Compose(day, h, m, s, milli),
		Mid:     float32(mid),
		Bid:     float32(bid),
		Ask:     float32(ask),
		BidSize: bidSz,
		AskSize: askSz,
		Spread:  float32(ask - bid),
		LogRet:  logRet,
	}
}

func TestLabelingNextSameDayMove(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	// First tick of the day: null log return, no event.
	require.NoError(t, b.Push(mkTick(day, 0, 100.00, 99.99, 100.01, 5, 5, tickio.NullLogRet()), emit))
	// First mid change.
	require.NoError(t, b.Push(mkTick(day, 3, 100.00, 99.99, 100.01, 5, 5, 0.0001), emit))
	// Next mid change 7 ms later labels the previous one.
	require.NoError(t, b.Push(mkTick(day, 10, 100.05, 100.04, 100.06, 5, 5, 0.0005), emit))
	b.Finish()

	require.Len(t, out, 1)
	ev := out[0]
	assert.Equal(t, day, ev.Day)
	assert.InDelta(t, 100.00, ev.Mid, 1e-4)
	assert.InDelta(t, 100.05, ev.MidNext, 1e-4)
	assert.Equal(t, float64(1), ev.Y)
	assert.Equal(t, float64(7), ev.TauMs)
	assert.Equal(t, float64(0), ev.LastMove, "first move of the day has no prior move")

	assert.Equal(t, uint64(2), b.EventsDetected)
	assert.Equal(t, uint64(1), b.EventsWritten)
	assert.Equal(t, uint64(1), b.EventsDroppedBoundary, "pending event dropped at end of stream")
}

func TestLastMoveSignPropagates(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	require.NoError(t, b.Push(mkTick(day, 0, 100.00, 99.99, 100.01, 5, 5, tickio.NullLogRet()), emit))
	require.NoError(t, b.Push(mkTick(day, 1, 100.02, 100.01, 100.03, 5, 5, 0.0002), emit))
	require.NoError(t, b.Push(mkTick(day, 2, 100.01, 100.00, 100.02, 5, 5, -0.0001), emit))
	require.NoError(t, b.Push(mkTick(day, 3, 100.03, 100.02, 100.04, 5, 5, 0.0002), emit))
	b.Finish()

	require.Len(t, out, 2)
	assert.Equal(t, float64(0), out[0].LastMove)
	assert.Equal(t, float64(-1), out[0].Y)
	assert.Equal(t, float64(1), out[1].LastMove, "previous move was up")
	assert.Equal(t, float64(1), out[1].Y)
}

func TestBigMoveDropped(t *testing.T) {
	b := NewBuilder(1.0)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	require.NoError(t, b.Push(mkTick(day, 0, 100.00, 99.99, 100.01, 5, 5, 0.0001), emit))
	require.NoError(t, b.Push(mkTick(day, 5, 101.50, 101.49, 101.51, 5, 5, 0.0149), emit))
	b.Finish()

	assert.Empty(t, out)
	assert.Equal(t, uint64(1), b.EventsDroppedBigmove)
}

func TestDayBoundaryDropsPendingEvent(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	require.NoError(t, b.Push(mkTick(20200102, 0, 100.00, 99.99, 100.01, 5, 5, 0.0001), emit))
	// New day: the pending event has no same-day next move.
	require.NoError(t, b.Push(mkTick(20200103, 0, 100.05, 100.04, 100.06, 5, 5, 0.0001), emit))
	require.NoError(t, b.Push(mkTick(20200103, 5, 100.10, 100.09, 100.11, 5, 5, 0.0005), emit))
	b.Finish()

	require.Len(t, out, 1)
	assert.Equal(t, uint32(20200103), out[0].Day)
	assert.Equal(t, uint64(2), b.EventsDroppedBoundary)
}

func TestImbalance(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	require.NoError(t, b.Push(mkTick(day, 0, 100.00, 99.99, 100.01, 30, 10, 0.0001), emit))
	require.NoError(t, b.Push(mkTick(day, 5, 100.02, 100.01, 100.03, 5, 5, 0.0002), emit))
	b.Finish()

	require.Len(t, out, 1)
	assert.InDelta(t, 0.5, out[0].Imbalance, 1e-12) // (30-10)/(30+10)
}

func TestQuoteAges(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	// ms 0: both sides appear; origins start here.
	require.NoError(t, b.Push(mkTick(day, 0, 100.01, 100.00, 100.02, 5, 5, tickio.NullLogRet()), emit))
	// ms 50: bid improves, ask unchanged. age_bid = 0, age_ask = 50.
	require.NoError(t, b.Push(mkTick(day, 50, 100.015, 100.01, 100.02, 5, 5, 0.00005), emit))
	// ms 120: ask moves, bid unchanged. age_bid = 70, age_ask = 0.
	require.NoError(t, b.Push(mkTick(day, 120, 100.02, 100.01, 100.03, 5, 5, 0.00005), emit))
	// One more event to label the ms-120 snapshot.
	require.NoError(t, b.Push(mkTick(day, 130, 100.025, 100.015, 100.035, 5, 5, 0.00005), emit))
	b.Finish()

	require.Len(t, out, 2)
	assert.Equal(t, float64(-50), out[0].AgeDiffMs, "fresh bid against a 50ms-old ask")
	assert.Equal(t, float64(70), out[1].AgeDiffMs, "70ms-old bid against a fresh ask")
}

func TestNullAndZeroReturnsAreNotEvents(t *testing.T) {
	b := NewBuilder(DefaultThresholdNext)
	var out []tickio.LabeledEvent
	emit := collect(&out)

	day := uint32(20200102)
	require.NoError(t, b.Push(mkTick(day, 0, 100.00, 99.99, 100.01, 5, 5, tickio.NullLogRet()), emit))
	require.NoError(t, b.Push(mkTick(day, 1, 100.00, 99.99, 100.01, 5, 5, 0), emit))
	b.Finish()

	assert.Empty(t, out)
	assert.Equal(t, uint64(0), b.EventsDetected)
	assert.Equal(t, uint64(2), b.TicksTotal)
}
