package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Yearly trade summaries over previously written trades CSVs.

// YearStats aggregates one year's trades by net return.
type YearStats struct {
	TotalNetRet float64
	NumTrades   uint64
	NumWins     uint64
	NumLosses   uint64
	NumFlat     uint64
	SumWinNet   float64
	SumLossNet  float64
	MaxGain     float64
	MaxLoss     float64
}

// ExpandYears parses year tokens: individual years ("2019") and
// inclusive ranges ("2018-2023"), mixed freely; the result is sorted
// and deduped.
func ExpandYears(tokens []string) ([]int, error) {
	seen := make(map[int]bool)
	for _, tok := range tokens {
		if i := strings.IndexByte(tok, '-'); i >= 0 {
			y1, err1 := strconv.Atoi(tok[:i])
			y2, err2 := strconv.Atoi(tok[i+1:])
			if err1 != nil || err2 != nil || y2 < y1 {
				return nil, fmt.Errorf("invalid year range %q", tok)
			}
			for y := y1; y <= y2; y++ {
				seen[y] = true
			}
			continue
		}
		y, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", tok)
		}
		seen[y] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// summarizeYear reads one year's trades CSV, locating net_ret by header
// name. Malformed lines are skipped.
func summarizeYear(tradesDir, symbol string, year int) (YearStats, error) {
	var stats YearStats
	path := filepath.Join(tradesDir, TradesFileName(symbol, uint32(year)))
	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open trades file for %d: %w", year, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("empty trades file for %d: %w", year, err)
	}
	netIdx := -1
	for i, name := range header {
		if name == "net_ret" {
			netIdx = i
			break
		}
	}
	if netIdx < 0 {
		return stats, fmt.Errorf("trades file for %d has no net_ret column", year)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read trades file for %d: %w", year, err)
		}
		if netIdx >= len(rec) {
			continue
		}
		netRet, err := strconv.ParseFloat(rec[netIdx], 64)
		if err != nil {
			continue
		}

		stats.NumTrades++
		stats.TotalNetRet += netRet
		switch {
		case netRet > 0:
			stats.NumWins++
			stats.SumWinNet += netRet
			if stats.NumWins == 1 || netRet > stats.MaxGain {
				stats.MaxGain = netRet
			}
		case netRet < 0:
			stats.NumLosses++
			stats.SumLossNet += netRet
			if stats.NumLosses == 1 || netRet < stats.MaxLoss {
				stats.MaxLoss = netRet
			}
		default:
			stats.NumFlat++
		}
	}
	return stats, nil
}

// Summarize prints the per-year trade summary table.
func Summarize(w io.Writer, tradesDir, symbol string, years []int) error {
	fmt.Fprintf(w, "Using trades directory: %s\n", tradesDir)
	fmt.Fprintf(w, "Years: %s\n\n", joinYears(years))

	header := "  Year   Total Net Ret   Total Net Ret (bps)    # Trades   Win%   Loss%  " +
		"Avg Win    Avg Loss     Max Gain     Max Loss"
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, y := range years {
		stats, err := summarizeYear(tradesDir, symbol, y)
		if err != nil {
			return err
		}

		n := stats.NumTrades
		winPct, lossPct := 0.0, 0.0
		if n > 0 {
			winPct = 100 * float64(stats.NumWins) / float64(n)
			lossPct = 100 * float64(stats.NumLosses) / float64(n)
		}
		avgWin, avgLoss := 0.0, 0.0
		if stats.NumWins > 0 {
			avgWin = stats.SumWinNet / float64(stats.NumWins)
		}
		if stats.NumLosses > 0 {
			avgLoss = stats.SumLossNet / float64(stats.NumLosses)
		}
		maxGain, maxLoss := 0.0, 0.0
		if stats.NumWins > 0 {
			maxGain = stats.MaxGain
		}
		if stats.NumLosses > 0 {
			maxLoss = stats.MaxLoss
		}

		fmt.Fprintf(w, "%6d  %15.8f  %20.8f  %10d  %6.2f  %6.2f  %8.6f  %10.6f  %10.6f  %10.6f\n",
			y, stats.TotalNetRet, stats.TotalNetRet*1e4, stats.NumTrades,
			winPct, lossPct, avgWin, avgLoss, maxGain, maxLoss)
	}
	return nil
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}
