package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/events"
	"github.com/quantlab/nbboflow/internal/pipeline"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Build labeled mid-change events from cleaned ticks",
		Long: `Reads a cleaned per-year event-grid tick file and emits one labeled
event per mid change: imbalance, spread, quote-age difference, last
move, plus the next same-day mid, its direction, and the waiting time.
The last mid change of each day and moves beyond the threshold are
dropped.`,
		RunE: runEvents,
	}
	cmd.Flags().String("in", "", "Input cleaned tick file (required)")
	cmd.Flags().String("out", "", "Output event file (required)")
	cmd.Flags().Float64("threshold-next", events.DefaultThresholdNext, "Big-move cap on |mid_next - mid| in price units")
	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	in, _ := f.GetString("in")
	out, _ := f.GetString("out")
	if in == "" || out == "" {
		return fmt.Errorf("--in and --out are required")
	}
	thr, _ := f.GetFloat64("threshold-next")

	run := pipeline.NewRun()
	err := run.Time("events", func() error {
		_, err := events.RunFile(in, out, thr)
		return err
	})
	run.LogSummary()
	return err
}
