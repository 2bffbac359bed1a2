package backtest

import (
	"errors"
	"io"
	"math"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/histogram"
	"github.com/quantlab/nbboflow/internal/metrics"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/tickio"
)

const stageName = "backtest"

// Backtester streams labeled events in timestamp order and opens
// one-step trades on adjacent same-day pairs. The model is read-only;
// no synchronization is needed.
type Backtester struct {
	model *histogram.Model
	cfg   StrategyConfig
	pnl   *PnLAggregator
}

// New builds a backtester around a trained model.
func New(model *histogram.Model, cfg StrategyConfig, pnl *PnLAggregator) *Backtester {
	return &Backtester{model: model, cfg: cfg, pnl: pnl}
}

// RunYear replays one year's event file with a one-event lookahead.
// Events at a day boundary produce no trade.
func (b *Backtester) RunYear(year uint32, eventsPath string) error {
	r, err := tickio.OpenEventReader(eventsPath)
	if err != nil {
		return pipeline.Fail(stageName, filepath.Base(eventsPath), err)
	}
	defer r.Close()

	b.pnl.StartYear(year)

	var prev tickio.LabeledEvent
	havePrev := false
	var n uint64
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return pipeline.Fail(stageName, filepath.Base(eventsPath), err)
		}
		n++
		if havePrev && ev.Day == prev.Day {
			if err := b.processEvent(prev, ev); err != nil {
				return pipeline.Fail(stageName, filepath.Base(eventsPath), err)
			}
		}
		prev = ev
		havePrev = true
	}

	if err := b.pnl.FinalizeYear(); err != nil {
		return pipeline.Fail(stageName, filepath.Base(eventsPath), err)
	}
	metrics.AddRowsIn(stageName, n)
	metrics.AddRowsOut(stageName, uint64(len(b.pnl.Trades())))
	log.Info().
		Uint32("year", year).
		Uint64("events", n).
		Int("trades", len(b.pnl.Trades())).
		Int("days", len(b.pnl.DailyRows())).
		Msg("year backtested")
	return nil
}

// processEvent runs the decision pipeline for one entry candidate; next
// is guaranteed to be the following event on the same day.
func (b *Backtester) processEvent(ev, next tickio.LabeledEvent) error {
	if ev.Mid <= 0 || ev.Spread <= 0 {
		return nil
	}

	state := histogram.TickState{
		Imbalance: ev.Imbalance,
		Spread:    ev.Spread,
		AgeDiffMs: ev.AgeDiffMs,
		LastMove:  ev.LastMove,
	}
	direction := b.model.DirectionScoreState(state)

	if b.cfg.MinAbsDirectionScore > 0 && math.Abs(direction) < b.cfg.MinAbsDirectionScore {
		return nil
	}

	// One-tick move approximation: half the spread.
	deltaM := 0.5 * ev.Spread
	expectedEdge := direction * deltaM / ev.Mid

	var costRet float64
	switch b.cfg.EdgeMode {
	case EdgeLegacy:
		if expectedEdge <= 0 {
			return nil
		}
	case EdgeCostTradeAll, EdgeCostWithGate:
		costRet = ev.Spread/ev.Mid + 2*b.cfg.FeePrice/ev.Mid + b.cfg.SlipPrice/ev.Mid
		if b.cfg.EdgeMode == EdgeCostWithGate && b.cfg.MinExpectedEdgeBps > 0 {
			gate := (2*b.cfg.FeePrice+b.cfg.SlipPrice)/ev.Mid + b.cfg.MinExpectedEdgeBps*1e-4
			if math.Abs(expectedEdge) <= gate {
				return nil
			}
		}
	}

	if b.cfg.MaxMeanWaitMs > 0 {
		if meanTau := b.model.MeanTauMsState(state); meanTau > b.cfg.MaxMeanWaitMs {
			return nil
		}
	}

	side := -1
	if direction > 0 {
		side = 1
	}
	grossRet := float64(side) * (next.Mid - ev.Mid) / ev.Mid
	netRet := grossRet - costRet

	return b.pnl.OnTrade(TradeRecord{
		TsIn:            ev.TS,
		TsOut:           next.TS,
		Day:             ev.Day,
		MidIn:           ev.Mid,
		MidOut:          next.Mid,
		SpreadIn:        ev.Spread,
		DirectionScore:  direction,
		ExpectedEdgeRet: expectedEdge,
		CostRet:         costRet,
		GrossRet:        grossRet,
		NetRet:          netRet,
		Side:            side,
	})
}
