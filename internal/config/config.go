// Package config loads the pipeline's YAML configuration. CLI flags
// override the file; the file overrides defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineConfig mirrors the YAML file layout.
type PipelineConfig struct {
	Symbol string `yaml:"symbol"`

	Paths struct {
		InDir      string `yaml:"in_dir"`
		CacheDir   string `yaml:"cache_dir"`
		OutDir     string `yaml:"out_dir"`
		ReportPath string `yaml:"report_path"`
		EventsDir  string `yaml:"events_dir"`
		TradesDir  string `yaml:"trades_dir"`
		PnlDir     string `yaml:"pnl_dir"`
	} `yaml:"paths"`

	Years struct {
		Lo int `yaml:"lo"`
		Hi int `yaml:"hi"`
	} `yaml:"years"`

	Aggregate struct {
		Grid          string  `yaml:"grid"` // "event" or "clock"
		MaxFFillGapMs int     `yaml:"max_ffill_gap_ms"`
		Venues        string  `yaml:"venues"`
		RTH           string  `yaml:"rth"` // "HH:MM-HH:MM"
		Winsor        string  `yaml:"winsor"` // "off", "clip", "drop"
		QLo           float64 `yaml:"q_lo"`
		QHi           float64 `yaml:"q_hi"`
		Workers       int     `yaml:"workers"`
	} `yaml:"aggregate"`

	Clean struct {
		Threshold float64 `yaml:"threshold"`
		MidMax    float64 `yaml:"mid_max"`
	} `yaml:"clean"`

	Events struct {
		ThresholdNext float64 `yaml:"threshold_next"`
	} `yaml:"events"`

	Histogram struct {
		Alpha   float64 `yaml:"alpha"`
		OutPath string  `yaml:"out_path"`
	} `yaml:"histogram"`

	Backtest struct {
		StrategyPath string `yaml:"strategy_path"`
		PgDSN        string `yaml:"pg_dsn"`
	} `yaml:"backtest"`
}

// Default returns the defaults applied before the file is read.
func Default() PipelineConfig {
	var c PipelineConfig
	c.Symbol = "SPY"
	c.Aggregate.Grid = "event"
	c.Aggregate.MaxFFillGapMs = 250
	c.Aggregate.Venues = "PTQZYJK"
	c.Aggregate.RTH = "09:30-16:00"
	c.Aggregate.Winsor = "off"
	c.Aggregate.QLo = 1e-5
	c.Aggregate.QHi = 1 - 1e-5
	c.Clean.Threshold = 100
	c.Clean.MidMax = 1000
	c.Events.ThresholdNext = 1
	c.Histogram.Alpha = 1
	return c
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults.
func Load(path string) (PipelineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pipeline config: %w", err)
	}
	return cfg, nil
}

// Save writes the config back out, e.g. to scaffold a starting file.
func Save(cfg PipelineConfig, path string) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal pipeline config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pipeline config: %w", err)
	}
	return nil
}
