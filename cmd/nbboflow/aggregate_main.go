package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlab/nbboflow/internal/config"
	"github.com/quantlab/nbboflow/internal/nbbo"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/winsor"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Build per-ms NBBO ticks from raw quote shards",
		Long: `Parses gzip CSV quote shards, reduces accepted quotes into per-ms
NBBO ticks (event grid, or clock grid with bounded forward fill),
optionally winsorizes log returns at extreme quantiles, and writes
per-year partitioned tick files. A covering tick cache skips the CSV
parse; in clock mode a missing clock cache is synthesized from the
event cache. Flags override the optional YAML config.`,
		RunE: runAggregate,
	}

	cmd.Flags().String("config", "", "Optional pipeline YAML config")
	cmd.Flags().String("in", "", "Directory of raw <SYM><YYYY>*.csv.gz shards (may be empty for cache-only runs)")
	cmd.Flags().String("cache", "", "Tick cache root (required)")
	cmd.Flags().String("out", "", "Partitioned output root (required)")
	cmd.Flags().String("report", "", "Glitch report path")
	cmd.Flags().String("grid", "event", "Output grid (event|clock)")
	cmd.Flags().Int("max-ffill-gap-ms", 250, "Clock-grid forward-fill cap in ms")
	cmd.Flags().String("winsor", "off", "Winsor mode (off|clip|drop)")
	cmd.Flags().Float64("q-lo", 1e-5, "Lower winsor quantile")
	cmd.Flags().Float64("q-hi", 1-1e-5, "Upper winsor quantile")
	cmd.Flags().Int("heap-limit", winsor.DefaultHeapLimit, "Per-tail heap size for the quantile sketch")
	cmd.Flags().String("rth", "09:30-16:00", "Regular trading hours, half-open")
	cmd.Flags().String("venues", "PTQZYJK", "Venue allow-set")
	cmd.Flags().Int("stale-ms", 0, "Accepted for compatibility; unused")
	cmd.Flags().String("sym-root", "SPY", "Symbol prefix of shard file names")
	cmd.Flags().String("years", "", "Year range YYYY:YYYY (empty = all)")
	cmd.Flags().Int("workers", 0, "Worker count (0 = all cores)")
	cmd.Flags().Uint64("log-every-in", 5_000_000, "Progress log interval in input rows")
	return cmd
}

func runAggregate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	s := nbbo.DefaultSettings()

	// Config file first, flags override.
	if cfgPath, _ := f.GetString("config"); cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := applyAggregateConfig(&s, cfg); err != nil {
			return err
		}
	}

	getString := func(name string, dst *string) {
		if f.Changed(name) || *dst == "" {
			if v, _ := f.GetString(name); v != "" || f.Changed(name) {
				*dst = v
			}
		}
	}
	getString("in", &s.InDir)
	getString("cache", &s.CacheDir)
	getString("out", &s.OutDir)
	getString("report", &s.ReportPath)
	if f.Changed("sym-root") || s.SymRoot == "" {
		s.SymRoot, _ = f.GetString("sym-root")
	}
	if f.Changed("max-ffill-gap-ms") {
		s.MaxFFillGapMs, _ = f.GetInt("max-ffill-gap-ms")
	}
	if f.Changed("stale-ms") {
		s.StaleMs, _ = f.GetInt("stale-ms")
	}
	if f.Changed("log-every-in") {
		s.LogEveryIn, _ = f.GetUint64("log-every-in")
	}

	if s.CacheDir == "" || s.OutDir == "" {
		return fmt.Errorf("--cache and --out are required")
	}

	if f.Changed("grid") {
		grid, _ := f.GetString("grid")
		g, err := parseGrid(grid)
		if err != nil {
			return err
		}
		s.Grid = g
	}
	if f.Changed("winsor") {
		wmode, _ := f.GetString("winsor")
		m, err := parseWinsorMode(wmode)
		if err != nil {
			return err
		}
		s.Winsor.Mode = m
	}
	if f.Changed("q-lo") {
		s.Winsor.QLo, _ = f.GetFloat64("q-lo")
	}
	if f.Changed("q-hi") {
		s.Winsor.QHi, _ = f.GetFloat64("q-hi")
	}
	if f.Changed("heap-limit") {
		s.Winsor.HeapLimit, _ = f.GetInt("heap-limit")
	}
	if f.Changed("rth") {
		rth, _ := f.GetString("rth")
		ses, err := parseRTH(rth)
		if err != nil {
			return err
		}
		s.Session = ses
	}
	if f.Changed("venues") {
		venues, _ := f.GetString("venues")
		s.Venues = parseVenues(venues)
	}
	if f.Changed("years") {
		years, _ := f.GetString("years")
		var err error
		if s.YearLo, s.YearHi, err = parseYears(years); err != nil {
			return err
		}
	}
	if w, _ := f.GetInt("workers"); w > 0 {
		s.Workers = w
	}

	run := pipeline.NewRun()
	err := run.Time("aggregate", func() error {
		_, err := nbbo.Run(s)
		return err
	})
	run.LogSummary()
	return err
}

// applyAggregateConfig maps the YAML config onto stage A settings.
func applyAggregateConfig(s *nbbo.Settings, cfg config.PipelineConfig) error {
	s.SymRoot = cfg.Symbol
	s.InDir = cfg.Paths.InDir
	s.CacheDir = cfg.Paths.CacheDir
	s.OutDir = cfg.Paths.OutDir
	s.ReportPath = cfg.Paths.ReportPath
	s.YearLo = cfg.Years.Lo
	s.YearHi = cfg.Years.Hi
	s.MaxFFillGapMs = cfg.Aggregate.MaxFFillGapMs
	s.Winsor.QLo = cfg.Aggregate.QLo
	s.Winsor.QHi = cfg.Aggregate.QHi
	if cfg.Aggregate.Workers > 0 {
		s.Workers = cfg.Aggregate.Workers
	}

	g, err := parseGrid(cfg.Aggregate.Grid)
	if err != nil {
		return err
	}
	s.Grid = g

	m, err := parseWinsorMode(cfg.Aggregate.Winsor)
	if err != nil {
		return err
	}
	s.Winsor.Mode = m

	ses, err := parseRTH(cfg.Aggregate.RTH)
	if err != nil {
		return err
	}
	s.Session = ses
	s.Venues = parseVenues(cfg.Aggregate.Venues)
	return nil
}

func parseGrid(s string) (nbbo.Grid, error) {
	switch s {
	case "event":
		return nbbo.GridEvent, nil
	case "clock":
		return nbbo.GridClock, nil
	}
	return nbbo.GridEvent, fmt.Errorf("invalid grid %q", s)
}

func parseWinsorMode(s string) (winsor.Mode, error) {
	switch s {
	case "off", "":
		return winsor.Off, nil
	case "clip":
		return winsor.Clip, nil
	case "drop":
		return winsor.Drop, nil
	}
	return winsor.Off, fmt.Errorf("invalid winsor mode %q", s)
}
