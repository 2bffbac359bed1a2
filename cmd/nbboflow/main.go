package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quantlab/nbboflow/internal/quote"
)

const (
	appName = "nbboflow"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "NBBO research pipeline: aggregate, clean, label, model, backtest",
		Version: version,
		Long: appName + ` turns raw Level-1 quote files for a single symbol into a
cleaned per-millisecond NBBO series, labeled mid-change events, a 4-D
histogram model, and a backtest of the state-conditioned strategy.

Stages run leaf-first: aggregate -> clean -> events -> histogram -> backtest.
Each stage reads the previous stage's durable output.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	cobra.OnInitialize(func() {
		lvl, err := zerolog.ParseLevel(rootCmd.PersistentFlags().Lookup("log-level").Value.String())
		if err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	})

	rootCmd.AddCommand(newAggregateCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHistogramCmd())
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newMonitorCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// parseVenues turns a venue string like "PTQZYJK" into the allow-set.
func parseVenues(s string) map[byte]bool {
	set := make(map[byte]bool, len(s))
	for i := 0; i < len(s); i++ {
		set[s[i]] = true
	}
	return set
}

// parseRTH parses "HH:MM-HH:MM" into a half-open session window.
func parseRTH(s string) (quote.Session, error) {
	var ses quote.Session
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return ses, fmt.Errorf("invalid rth window %q", s)
	}
	if _, err := fmt.Sscanf(parts[0], "%d:%d", &ses.StartHour, &ses.StartMin); err != nil {
		return ses, fmt.Errorf("invalid rth start %q", parts[0])
	}
	if _, err := fmt.Sscanf(parts[1], "%d:%d", &ses.EndHour, &ses.EndMin); err != nil {
		return ses, fmt.Errorf("invalid rth end %q", parts[1])
	}
	return ses, nil
}

// parseYears parses "YYYY:YYYY"; zeros disable a bound.
func parseYears(s string) (lo, hi int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &lo, &hi); err != nil {
		return 0, 0, fmt.Errorf("invalid years range %q", s)
	}
	return lo, hi, nil
}
