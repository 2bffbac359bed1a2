package backtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(day uint32, gross, net float64) TradeRecord {
	return TradeRecord{
		TsIn: uint64(day)*1_000_000_000 + 93000000, TsOut: uint64(day)*1_000_000_000 + 93000007,
		Day: day, MidIn: 100, MidOut: 100.01, SpreadIn: 0.02,
		GrossRet: gross, NetRet: net, Side: 1,
	}
}

func TestDailyFlushAndCumulative(t *testing.T) {
	dir := t.TempDir()
	p := NewPnLAggregator(filepath.Join(dir, "trades"), filepath.Join(dir, "pnl"), "SPY")
	p.StartYear(2020)

	require.NoError(t, p.OnTrade(trade(20200102, 1e-4, 5e-5)))
	require.NoError(t, p.OnTrade(trade(20200102, 2e-4, 1e-4)))
	require.NoError(t, p.OnTrade(trade(20200103, -1e-4, -2e-4)))
	require.NoError(t, p.FinalizeYear())

	rows := p.DailyRows()
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, uint32(20200102), first.Day)
	assert.Equal(t, uint64(2), first.NumTrades)
	assert.InDelta(t, 3e-4, first.GrossRetSum, 1e-12)
	assert.InDelta(t, 1.5e-4, first.NetRetSum, 1e-12)
	assert.InDelta(t, 1.5e-4, first.GrossRetMean, 1e-12)
	assert.InDelta(t, 1.5e-4, first.CumulativeNetRet, 1e-12)

	second := rows[1]
	assert.Equal(t, uint32(20200103), second.Day)
	assert.InDelta(t, -5e-5, second.CumulativeNetRet, 1e-12, "cumulative is the running net sum")

	// Days strictly increase.
	assert.Less(t, first.Day, second.Day)
}

func TestDayRegressionIsFatal(t *testing.T) {
	dir := t.TempDir()
	p := NewPnLAggregator(filepath.Join(dir, "trades"), filepath.Join(dir, "pnl"), "SPY")
	p.StartYear(2020)

	require.NoError(t, p.OnTrade(trade(20200103, 1e-4, 1e-4)))
	assert.Error(t, p.OnTrade(trade(20200102, 1e-4, 1e-4)))
}

func TestZeroDayTradeIgnored(t *testing.T) {
	dir := t.TempDir()
	p := NewPnLAggregator(filepath.Join(dir, "trades"), filepath.Join(dir, "pnl"), "SPY")
	p.StartYear(2020)

	require.NoError(t, p.OnTrade(TradeRecord{Day: 0, NetRet: 1}))
	require.NoError(t, p.FinalizeYear())
	assert.Empty(t, p.Trades())
	assert.Empty(t, p.DailyRows())
}

func TestCsvOutputs(t *testing.T) {
	dir := t.TempDir()
	tradesDir := filepath.Join(dir, "trades")
	pnlDir := filepath.Join(dir, "pnl")
	p := NewPnLAggregator(tradesDir, pnlDir, "SPY")
	p.StartYear(2020)
	require.NoError(t, p.OnTrade(trade(20200102, 1e-4, 5e-5)))
	require.NoError(t, p.FinalizeYear())

	tradesData, err := os.ReadFile(filepath.Join(tradesDir, "SPY_2020_trades.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tradesData)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ts_in,ts_out,day,mid_in,mid_out,spread_in,"+
		"direction_score,expected_edge_ret,cost_ret,gross_ret,net_ret,side", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",1"), "side column closes the row")

	dailyData, err := os.ReadFile(filepath.Join(pnlDir, "SPY_2020_daily.csv"))
	require.NoError(t, err)
	dlines := strings.Split(strings.TrimSpace(string(dailyData)), "\n")
	require.Len(t, dlines, 2)
	assert.Equal(t, "day,num_trades,gross_ret_sum,net_ret_sum,"+
		"gross_ret_mean,net_ret_mean,cumulative_net_ret", dlines[0])
	assert.True(t, strings.HasPrefix(dlines[1], "20200102,1,"))
}

func TestSummarizeTable(t *testing.T) {
	dir := t.TempDir()
	tradesDir := filepath.Join(dir, "trades")
	p := NewPnLAggregator(tradesDir, filepath.Join(dir, "pnl"), "SPY")
	p.StartYear(2020)
	require.NoError(t, p.OnTrade(trade(20200102, 2e-4, 1e-4)))
	require.NoError(t, p.OnTrade(trade(20200102, -1e-4, -2e-4)))
	require.NoError(t, p.FinalizeYear())

	var sb strings.Builder
	require.NoError(t, Summarize(&sb, tradesDir, "SPY", []int{2020}))
	out := sb.String()
	assert.Contains(t, out, "2020")
	assert.Contains(t, out, "# Trades")
	assert.Contains(t, out, "50.00", "one win and one loss split 50/50")
}

func TestExpandYears(t *testing.T) {
	years, err := ExpandYears([]string{"2018-2020", "2022", "2019"})
	require.NoError(t, err)
	assert.Equal(t, []int{2018, 2019, 2020, 2022}, years)

	_, err = ExpandYears([]string{"2020-2018"})
	assert.Error(t, err)
	_, err = ExpandYears([]string{"abc"})
	assert.Error(t, err)
}
