package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/backtest"
	"github.com/quantlab/nbboflow/internal/histogram"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/store"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest the state-conditioned one-step strategy",
		Long: `Loads the histogram model and strategy config, replays each year's
labeled events in timestamp order, and writes per-trade and per-day
CSVs. With --pg-dsn the results are also saved to PostgreSQL.`,
		RunE: runBacktest,
	}
	cmd.Flags().String("events-dir", "", "Directory of per-year event files (required)")
	cmd.Flags().String("histogram", "", "Histogram model JSON path (required)")
	cmd.Flags().String("strategy", "", "Strategy config JSON path (empty = defaults)")
	cmd.Flags().String("years", "", "Year range YYYY:YYYY (required)")
	cmd.Flags().String("symbol", "SPY", "Symbol")
	cmd.Flags().String("trades-dir", "data/research/trades", "Per-trade CSV output directory")
	cmd.Flags().String("pnl-dir", "data/research/pnl", "Per-day PnL CSV output directory")
	cmd.Flags().String("pg-dsn", "", "Optional PostgreSQL DSN for the results sink")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	eventsDir, _ := f.GetString("events-dir")
	histPath, _ := f.GetString("histogram")
	strategyPath, _ := f.GetString("strategy")
	symbol, _ := f.GetString("symbol")
	tradesDir, _ := f.GetString("trades-dir")
	pnlDir, _ := f.GetString("pnl-dir")
	pgDSN, _ := f.GetString("pg-dsn")

	years, _ := f.GetString("years")
	yearLo, yearHi, err := parseYears(years)
	if err != nil {
		return err
	}
	if eventsDir == "" || histPath == "" || yearLo == 0 || yearHi == 0 {
		return fmt.Errorf("--events-dir, --histogram and --years are required")
	}
	if yearLo > yearHi {
		return fmt.Errorf("years lower bound %d exceeds upper bound %d", yearLo, yearHi)
	}

	cfg := backtest.DefaultStrategyConfig()
	if strategyPath != "" {
		if cfg, err = backtest.LoadStrategyConfig(strategyPath); err != nil {
			return err
		}
	}
	log.Info().
		Stringer("edge_mode", cfg.EdgeMode).
		Float64("fee_price", cfg.FeePrice).
		Float64("slip_price", cfg.SlipPrice).
		Float64("min_abs_direction_score", cfg.MinAbsDirectionScore).
		Float64("min_expected_edge_bps", cfg.MinExpectedEdgeBps).
		Float64("max_mean_wait_ms", cfg.MaxMeanWaitMs).
		Msg("strategy config loaded")

	model, err := histogram.Load(histPath)
	if err != nil {
		return err
	}

	var sink *store.Store
	if pgDSN != "" {
		if sink, err = store.Open(pgDSN); err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
	}

	run := pipeline.NewRun()
	err = run.Time("backtest", func() error {
		for year := yearLo; year <= yearHi; year++ {
			pnl := backtest.NewPnLAggregator(tradesDir, pnlDir, symbol)
			bt := backtest.New(model, cfg, pnl)
			eventsPath := filepath.Join(eventsDir, histogram.EventFileName(symbol, year))
			if err := bt.RunYear(uint32(year), eventsPath); err != nil {
				return err
			}
			if sink != nil {
				if err := sink.SaveYear(context.Background(), symbol, uint32(year),
					pnl.Trades(), pnl.DailyRows()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	run.LogSummary()
	return err
}
