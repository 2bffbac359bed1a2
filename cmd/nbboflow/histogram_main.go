package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/histogram"
	"github.com/quantlab/nbboflow/internal/pipeline"
)

func newHistogramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Accumulate labeled events into the 4-D histogram model",
		Long: `Streams every year's labeled events for the symbol, accumulates the
per-cell counts of the (imbalance, spread, age difference, last move)
grid, and writes the smoothed model as JSON with its bin spec.`,
		RunE: runHistogram,
	}
	cmd.Flags().String("events-root", "", "Directory of per-year event files (required)")
	cmd.Flags().String("symbol", "SPY", "Symbol")
	cmd.Flags().String("years", "", "Year range YYYY:YYYY (required)")
	cmd.Flags().String("out", "", "Model output path (required)")
	cmd.Flags().Float64("alpha", 1.0, "Laplace smoothing parameter")
	return cmd
}

func runHistogram(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	cfg := histogram.BuildConfig{}
	cfg.EventsRoot, _ = f.GetString("events-root")
	cfg.Symbol, _ = f.GetString("symbol")
	cfg.OutPath, _ = f.GetString("out")
	cfg.Alpha, _ = f.GetFloat64("alpha")

	years, _ := f.GetString("years")
	var err error
	if cfg.YearLo, cfg.YearHi, err = parseYears(years); err != nil {
		return err
	}
	if cfg.EventsRoot == "" || cfg.OutPath == "" || cfg.YearLo == 0 || cfg.YearHi == 0 {
		return fmt.Errorf("--events-root, --years and --out are required")
	}

	run := pipeline.NewRun()
	err = run.Time("histogram", func() error {
		_, err := histogram.Build(cfg)
		return err
	})
	run.LogSummary()
	return err
}
