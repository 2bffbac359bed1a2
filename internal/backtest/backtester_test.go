package backtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/nbboflow/internal/histogram"
	"github.com/quantlab/nbboflow/internal/tickio"
)

// testModel returns a model whose cell for the zero-ish state carries
// D = +0.4 (p_up = 0.7 with alpha = 1).
func testModel(t *testing.T) (*histogram.Model, histogram.TickState) {
	t.Helper()
	m := histogram.NewModel(1)
	state := histogram.TickState{Imbalance: 0, Spread: 0.02, AgeDiffMs: 0, LastMove: 0}
	k := m.CellIndex(state)
	m.Cells[k] = histogram.CellStats{N: 8, NUp: 6, NDown: 2, SumTauMs: 80}
	require.InDelta(t, 0.4, m.DirectionScore(k), 1e-12)
	return m, state
}

func writeEvents(t *testing.T, path string, evs []tickio.LabeledEvent) {
	t.Helper()
	w, err := tickio.NewEventWriter(path)
	require.NoError(t, err)
	for _, ev := range evs {
		require.NoError(t, w.Append(ev))
	}
	require.NoError(t, w.Close())
}

func pairEvents() []tickio.LabeledEvent {
	return []tickio.LabeledEvent{
		{
			TS: 20200102093000000, Day: 20200102,
			Mid: 100, MidNext: 100.01, Spread: 0.02,
			Imbalance: 0, AgeDiffMs: 0, LastMove: 0, Y: 1, TauMs: 7,
		},
		{
			TS: 20200102093000007, Day: 20200102,
			Mid: 100.01, MidNext: 100.02, Spread: 0.02,
			Imbalance: 0, AgeDiffMs: 0, LastMove: 1, Y: 1, TauMs: 5,
		},
	}
}

func runBacktestOn(t *testing.T, model *histogram.Model, cfg StrategyConfig, evs []tickio.LabeledEvent) *PnLAggregator {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "SPY_2020_events.nbe")
	writeEvents(t, path, evs)

	pnl := NewPnLAggregator(filepath.Join(dir, "trades"), filepath.Join(dir, "pnl"), "SPY")
	bt := New(model, cfg, pnl)
	require.NoError(t, bt.RunYear(2020, path))
	return pnl
}

func TestLegacyModeTradesOnPositiveEdge(t *testing.T) {
	model, _ := testModel(t)
	cfg := StrategyConfig{
		FeePrice: 0.03, SlipPrice: 0.02,
		MinExpectedEdgeBps: 1,
		EdgeMode:           EdgeLegacy,
	}
	pnl := runBacktestOn(t, model, cfg, pairEvents())

	trades := pnl.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.InDelta(t, 4e-5, tr.ExpectedEdgeRet, 1e-10) // 0.4 * 0.01 / 100
	assert.Equal(t, 0.0, tr.CostRet, "legacy mode charges no costs")
	assert.InDelta(t, 1e-4, tr.GrossRet, 1e-10)
	assert.InDelta(t, 1e-4, tr.NetRet, 1e-10)
	assert.Equal(t, 1, tr.Side)
}

func TestCostWithGateSkipsThinEdge(t *testing.T) {
	model, _ := testModel(t)
	cfg := StrategyConfig{
		FeePrice: 0.03, SlipPrice: 0.02,
		MinExpectedEdgeBps: 1,
		EdgeMode:           EdgeCostWithGate,
	}
	pnl := runBacktestOn(t, model, cfg, pairEvents())
	assert.Empty(t, pnl.Trades(), "|EE| = 4e-5 cannot clear the 9e-4 gate")
}

func TestCostTradeAllChargesCosts(t *testing.T) {
	model, _ := testModel(t)
	cfg := StrategyConfig{
		FeePrice: 0.03, SlipPrice: 0.02,
		EdgeMode: EdgeCostTradeAll,
	}
	pnl := runBacktestOn(t, model, cfg, pairEvents())

	trades := pnl.Trades()
	require.Len(t, trades, 1)
	// cost = spread/mid + 2*fee/mid + slip/mid = (0.02+0.06+0.02)/100
	assert.InDelta(t, 1e-3, trades[0].CostRet, 1e-10)
	assert.InDelta(t, 1e-4-1e-3, trades[0].NetRet, 1e-10)
}

func TestGateDisabledByZeroMargin(t *testing.T) {
	model, _ := testModel(t)
	cfg := StrategyConfig{
		FeePrice: 0.03, SlipPrice: 0.02,
		MinExpectedEdgeBps: 0, // gate disabled: behaves like trade-all
		EdgeMode:           EdgeCostWithGate,
	}
	pnl := runBacktestOn(t, model, cfg, pairEvents())
	assert.Len(t, pnl.Trades(), 1)
}

func TestDirectionScoreGate(t *testing.T) {
	model, _ := testModel(t)
	cfg := StrategyConfig{EdgeMode: EdgeLegacy, MinAbsDirectionScore: 0.5}
	pnl := runBacktestOn(t, model, cfg, pairEvents())
	assert.Empty(t, pnl.Trades(), "|D| = 0.4 below the 0.5 magnitude gate")
}

func TestWaitGate(t *testing.T) {
	model, _ := testModel(t)
	// The populated cell has mean tau 10ms.
	cfg := StrategyConfig{EdgeMode: EdgeLegacy, MaxMeanWaitMs: 5}
	pnl := runBacktestOn(t, model, cfg, pairEvents())
	assert.Empty(t, pnl.Trades())

	cfg.MaxMeanWaitMs = 20
	pnl = runBacktestOn(t, model, cfg, pairEvents())
	assert.Len(t, pnl.Trades(), 1)
}

func TestShortSideOnNegativeScore(t *testing.T) {
	m := histogram.NewModel(1)
	state := histogram.TickState{Imbalance: 0, Spread: 0.02, AgeDiffMs: 0, LastMove: 0}
	k := m.CellIndex(state)
	m.Cells[k] = histogram.CellStats{N: 8, NUp: 2, NDown: 6, SumTauMs: 80} // D = -0.4

	evs := pairEvents()
	cfg := StrategyConfig{EdgeMode: EdgeCostTradeAll, FeePrice: 0, SlipPrice: 0}
	pnl := runBacktestOn(t, m, cfg, evs)

	trades := pnl.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, -1, trades[0].Side)
	// Short against an up move loses.
	assert.InDelta(t, -1e-4, trades[0].GrossRet, 1e-10)
}

func TestDayBoundaryPairProducesNoTrade(t *testing.T) {
	model, _ := testModel(t)
	evs := pairEvents()
	evs[1].Day = 20200103
	evs[1].TS = 20200103093000000

	cfg := StrategyConfig{EdgeMode: EdgeLegacy}
	pnl := runBacktestOn(t, model, cfg, evs)
	assert.Empty(t, pnl.Trades())
}
