// Package backtest replays labeled events against the histogram model:
// it decides entries with a configurable cost/edge gate, realizes
// one-step returns against the next same-day event, and aggregates
// per-trade PnL into daily rows.
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
)

// EdgeMode selects the cost model and edge gate.
type EdgeMode int

const (
	// EdgeLegacy charges no costs and requires a positive expected edge.
	EdgeLegacy EdgeMode = 0
	// EdgeCostTradeAll charges full costs and trades every event that
	// passes the other gates.
	EdgeCostTradeAll EdgeMode = 1
	// EdgeCostWithGate charges full costs and additionally requires the
	// absolute expected edge to clear costs plus a margin.
	EdgeCostWithGate EdgeMode = 2
)

// String names the mode for logs.
func (m EdgeMode) String() string {
	switch m {
	case EdgeLegacy:
		return "legacy"
	case EdgeCostTradeAll:
		return "cost_trade_all"
	case EdgeCostWithGate:
		return "cost_with_gate"
	}
	return fmt.Sprintf("edge_mode(%d)", int(m))
}

// StrategyConfig holds the strategy knobs. Zero values disable the
// optional gates.
type StrategyConfig struct {
	// FeePrice is the per-leg fee in price units; a roundtrip charges
	// twice this.
	FeePrice float64
	// SlipPrice is the slippage cushion in price units, charged once
	// per roundtrip.
	SlipPrice float64
	// MinAbsDirectionScore is the minimum |D| required to consider a
	// trade; 0 disables the gate.
	MinAbsDirectionScore float64
	// MinExpectedEdgeBps is the edge-gate margin in basis points; 0
	// makes EdgeCostWithGate behave like EdgeCostTradeAll.
	MinExpectedEdgeBps float64
	// MaxMeanWaitMs skips states whose expected waiting time exceeds
	// the cap; 0 disables the gate.
	MaxMeanWaitMs float64
	// EdgeMode selects the cost/edge policy.
	EdgeMode EdgeMode
}

// DefaultStrategyConfig returns the documented defaults.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		FeePrice:  0.03,
		SlipPrice: 0.02,
		EdgeMode:  EdgeCostWithGate,
	}
}

// strategyFile is the flat JSON object; absent keys keep their
// defaults. legacy_mode is a backwards-compatibility alias: any
// non-zero value forces EdgeLegacy regardless of edge_mode.
type strategyFile struct {
	FeePrice             *float64 `json:"fee_price"`
	SlipPrice            *float64 `json:"slip_price"`
	MinAbsDirectionScore *float64 `json:"min_abs_direction_score"`
	MinExpectedEdgeBps   *float64 `json:"min_expected_edge_bps"`
	MaxMeanWaitMs        *float64 `json:"max_mean_wait_ms"`
	EdgeMode             *float64 `json:"edge_mode"`
	LegacyMode           *float64 `json:"legacy_mode"`
}

// LoadStrategyConfig reads a flat JSON strategy file.
func LoadStrategyConfig(path string) (StrategyConfig, error) {
	cfg := DefaultStrategyConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read strategy config: %w", err)
	}
	var sf strategyFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return cfg, fmt.Errorf("parse strategy config: %w", err)
	}

	if sf.FeePrice != nil {
		cfg.FeePrice = *sf.FeePrice
	}
	if sf.SlipPrice != nil {
		cfg.SlipPrice = *sf.SlipPrice
	}
	if sf.MinAbsDirectionScore != nil {
		cfg.MinAbsDirectionScore = *sf.MinAbsDirectionScore
	}
	if sf.MinExpectedEdgeBps != nil {
		cfg.MinExpectedEdgeBps = *sf.MinExpectedEdgeBps
	}
	if sf.MaxMeanWaitMs != nil {
		cfg.MaxMeanWaitMs = *sf.MaxMeanWaitMs
	}
	if sf.EdgeMode != nil {
		mode := EdgeMode(int(*sf.EdgeMode))
		if mode < EdgeLegacy || mode > EdgeCostWithGate {
			return cfg, fmt.Errorf("edge_mode %v out of range", *sf.EdgeMode)
		}
		cfg.EdgeMode = mode
	}
	if sf.LegacyMode != nil && *sf.LegacyMode != 0 {
		cfg.EdgeMode = EdgeLegacy
	}
	return cfg, nil
}
