package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/backtest"
)

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <years...>",
		Short: "Print per-year trade summaries from trades CSVs",
		Long: `Reads previously written per-year trades CSVs and prints the yearly
summary table: total net return, trade count, win/loss rates, average
and extreme wins and losses. Years are given individually ("2019") or
as inclusive ranges ("2018-2023"), mixed freely.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSummarize,
	}
	cmd.Flags().String("trades-dir", "data/research/trades", "Per-trade CSV directory")
	cmd.Flags().String("symbol", "SPY", "Symbol")
	return cmd
}

func runSummarize(cmd *cobra.Command, args []string) error {
	tradesDir, _ := cmd.Flags().GetString("trades-dir")
	symbol, _ := cmd.Flags().GetString("symbol")

	years, err := backtest.ExpandYears(args)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		return fmt.Errorf("no years given")
	}
	return backtest.Summarize(os.Stdout, tradesDir, symbol, years)
}
