package nbbo

import (
	"math"

	"github.com/quantlab/nbboflow/internal/glitch"
	"github.com/quantlab/nbboflow/internal/quote"
	"github.com/quantlab/nbboflow/internal/tickio"
)

// bucket reduces the accepted quotes of one millisecond into the best
// bid/ask across venues. Best bid takes the max, best ask the min, and
// the size follows its price only on strict improvement.
type bucket struct {
	ts      uint64
	bestBid float32
	bestAsk float32
	bidSize int32
	askSize int32
	any     bool
}

func (b *bucket) reset(ts uint64) {
	b.ts = ts
	b.bestBid = 0
	b.bestAsk = float32(math.Inf(1))
	b.bidSize = 0
	b.askSize = 0
	b.any = false
}

// update folds one accepted quote into the bucket. Non-positive prices
// and locked/crossed quotes are counted and ignored.
func (b *bucket) update(q quote.Record, g *glitch.Counts, hour int) {
	if q.Bid <= 0 || q.Ask <= 0 {
		g.Bump(glitch.NonPosPrice, hour)
		return
	}
	if q.Ask <= q.Bid {
		g.Bump(glitch.LockedCrossed, hour)
		return
	}
	if q.Bid > b.bestBid {
		b.bestBid = q.Bid
		b.bidSize = q.BidSize
		b.any = true
	}
	if q.Ask < b.bestAsk {
		b.bestAsk = q.Ask
		b.askSize = q.AskSize
		b.any = true
	}
}

// tick finalizes the bucket into a Tick with a null log return; the
// aggregator fills the return in against its previous kept mid.
func (b *bucket) tick() (tickio.Tick, bool) {
	if !b.any {
		return tickio.Tick{}, false
	}
	return tickio.Tick{
		TS:      b.ts,
		Bid:     b.bestBid,
		Ask:     b.bestAsk,
		BidSize: float32(b.bidSize),
		AskSize: float32(b.askSize),
		Spread:  b.bestAsk - b.bestBid,
		Mid:     0.5 * (b.bestBid + b.bestAsk),
		LogRet:  tickio.NullLogRet(),
	}, true
}
