package backtest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// TradeRecord is one executed one-step trade; created on entry, never
// mutated.
type TradeRecord struct {
	TsIn            uint64
	TsOut           uint64
	Day             uint32
	MidIn           float64
	MidOut          float64
	SpreadIn        float64
	DirectionScore  float64
	ExpectedEdgeRet float64
	CostRet         float64
	GrossRet        float64
	NetRet          float64
	Side            int
}

// DailyPnlRow is the roll-up of one trading day's trades.
type DailyPnlRow struct {
	Day              uint32
	NumTrades        uint64
	GrossRetSum      float64
	NetRetSum        float64
	GrossRetMean     float64
	NetRetMean       float64
	CumulativeNetRet float64
}

// PnLAggregator collects a year's trades and flushes daily rows when
// the trading day advances. Daily rows are strictly increasing in day;
// a regression is a fatal logic error.
type PnLAggregator struct {
	tradesDir string
	dailyDir  string
	symbol    string

	year      uint32
	trades    []TradeRecord
	dailyRows []DailyPnlRow

	currentDay    uint32
	dayTradeCount uint64
	dayGrossSum   float64
	dayNetSum     float64
	cumulativeNet float64
}

// NewPnLAggregator builds an aggregator writing per-year CSVs into the
// given directories.
func NewPnLAggregator(tradesDir, dailyDir, symbol string) *PnLAggregator {
	return &PnLAggregator{tradesDir: tradesDir, dailyDir: dailyDir, symbol: symbol}
}

// StartYear clears all state for a new year.
func (p *PnLAggregator) StartYear(year uint32) {
	p.year = year
	p.trades = p.trades[:0]
	p.dailyRows = p.dailyRows[:0]
	p.currentDay = 0
	p.dayTradeCount = 0
	p.dayGrossSum = 0
	p.dayNetSum = 0
	p.cumulativeNet = 0
}

// OnTrade consumes one trade, flushing the open day when the calendar
// day advances. Trades without a day are ignored.
func (p *PnLAggregator) OnTrade(t TradeRecord) error {
	if t.Day == 0 {
		return nil
	}
	if p.currentDay == 0 {
		p.currentDay = t.Day
	} else if t.Day != p.currentDay {
		if t.Day < p.currentDay {
			return fmt.Errorf("trade day %d regresses behind open day %d", t.Day, p.currentDay)
		}
		p.flushCurrentDay()
		p.currentDay = t.Day
	}

	p.trades = append(p.trades, t)
	p.dayTradeCount++
	p.dayGrossSum += t.GrossRet
	p.dayNetSum += t.NetRet
	p.cumulativeNet += t.NetRet
	return nil
}

func (p *PnLAggregator) flushCurrentDay() {
	if p.currentDay == 0 || p.dayTradeCount == 0 {
		return
	}
	p.dailyRows = append(p.dailyRows, DailyPnlRow{
		Day:              p.currentDay,
		NumTrades:        p.dayTradeCount,
		GrossRetSum:      p.dayGrossSum,
		NetRetSum:        p.dayNetSum,
		GrossRetMean:     p.dayGrossSum / float64(p.dayTradeCount),
		NetRetMean:       p.dayNetSum / float64(p.dayTradeCount),
		CumulativeNetRet: p.cumulativeNet,
	})
	p.dayTradeCount = 0
	p.dayGrossSum = 0
	p.dayNetSum = 0
}

// FinalizeYear flushes the last open day and writes both CSVs.
func (p *PnLAggregator) FinalizeYear() error {
	p.flushCurrentDay()
	if p.year == 0 {
		return nil
	}
	if err := p.writeTradesCsv(); err != nil {
		return err
	}
	return p.writeDailyCsv()
}

// Trades returns the year's trades.
func (p *PnLAggregator) Trades() []TradeRecord { return p.trades }

// DailyRows returns the year's flushed daily rows.
func (p *PnLAggregator) DailyRows() []DailyPnlRow { return p.dailyRows }

// TradesFileName names one year's trades CSV.
func TradesFileName(symbol string, year uint32) string {
	return fmt.Sprintf("%s_%d_trades.csv", symbol, year)
}

// DailyFileName names one year's daily PnL CSV.
func DailyFileName(symbol string, year uint32) string {
	return fmt.Sprintf("%s_%d_daily.csv", symbol, year)
}

func g10(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func (p *PnLAggregator) writeTradesCsv() error {
	if err := os.MkdirAll(p.tradesDir, 0o755); err != nil {
		return fmt.Errorf("create trades dir: %w", err)
	}
	path := filepath.Join(p.tradesDir, TradesFileName(p.symbol, p.year))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open trades output: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "ts_in,ts_out,day,mid_in,mid_out,spread_in,"+
		"direction_score,expected_edge_ret,cost_ret,gross_ret,net_ret,side")
	for _, t := range p.trades {
		fmt.Fprintf(w, "%d,%d,%d,%s,%s,%s,%s,%s,%s,%s,%s,%d\n",
			t.TsIn, t.TsOut, t.Day,
			g10(t.MidIn), g10(t.MidOut), g10(t.SpreadIn),
			g10(t.DirectionScore), g10(t.ExpectedEdgeRet), g10(t.CostRet),
			g10(t.GrossRet), g10(t.NetRet), t.Side)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write trades output: %w", err)
	}
	return nil
}

func (p *PnLAggregator) writeDailyCsv() error {
	if err := os.MkdirAll(p.dailyDir, 0o755); err != nil {
		return fmt.Errorf("create daily dir: %w", err)
	}
	path := filepath.Join(p.dailyDir, DailyFileName(p.symbol, p.year))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open daily PnL output: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "day,num_trades,gross_ret_sum,net_ret_sum,"+
		"gross_ret_mean,net_ret_mean,cumulative_net_ret")
	for _, r := range p.dailyRows {
		fmt.Fprintf(w, "%d,%d,%s,%s,%s,%s,%s\n",
			r.Day, r.NumTrades,
			g10(r.GrossRetSum), g10(r.NetRetSum),
			g10(r.GrossRetMean), g10(r.NetRetMean), g10(r.CumulativeNetRet))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write daily PnL output: %w", err)
	}
	return nil
}
