package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/denoise"
	"github.com/quantlab/nbboflow/internal/pipeline"
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove mid-price spikes from a per-year tick file",
		Long: `Streams one per-year event-grid tick file and drops implausible mid
ticks: rows whose mid exceeds the level cap, and intra-day jumps of at
least the delta threshold versus the last kept tick of the same day.
The first tick of each day is tested against the level filter only.`,
		RunE: runClean,
	}
	cmd.Flags().String("in", "", "Input per-year tick file (required)")
	cmd.Flags().String("out", "", "Output tick file (required)")
	cmd.Flags().Float64("thr", denoise.DefaultThreshold, "Delta threshold in price units")
	cmd.Flags().Float64("mid-max", denoise.DefaultMidMax, "Absolute mid level cap")
	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	in, _ := f.GetString("in")
	out, _ := f.GetString("out")
	if in == "" || out == "" {
		return fmt.Errorf("--in and --out are required")
	}

	opts := denoise.DefaultOptions()
	opts.Threshold, _ = f.GetFloat64("thr")
	opts.MidMax, _ = f.GetFloat64("mid-max")

	run := pipeline.NewRun()
	err := run.Time("clean", func() error {
		_, err := denoise.RunFile(in, out, opts)
		return err
	})
	run.LogSummary()
	return err
}
