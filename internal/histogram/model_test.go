package histogram

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/nbboflow/internal/tickio"
)

func TestSmoothedCellQuantities(t *testing.T) {
	m := NewModel(1)
	state := TickState{Imbalance: 0, Spread: 0.01, AgeDiffMs: 0, LastMove: 0}
	k := m.CellIndex(state)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Accumulate(tickio.LabeledEvent{
			Imbalance: 0, Spread: 0.01, AgeDiffMs: 0, LastMove: 0, Y: 1, TauMs: 10,
		}))
	}
	require.NoError(t, m.Accumulate(tickio.LabeledEvent{
		Imbalance: 0, Spread: 0.01, AgeDiffMs: 0, LastMove: 0, Y: -1, TauMs: 10,
	}))

	assert.Equal(t, uint64(4), m.Cells[k].N)
	assert.InDelta(t, 4.0/6.0, m.PUp(k), 1e-12) // (3+1)/(4+2)
	assert.InDelta(t, 1.0/3.0, m.DirectionScore(k), 1e-12)
	assert.InDelta(t, 10, m.MeanTauMs(k), 1e-12)
	assert.InDelta(t, 1, m.PUp(k)+m.PDown(k), 1e-12)
}

func TestFlatMovesCountTowardNOnly(t *testing.T) {
	m := NewModel(1)
	require.NoError(t, m.Accumulate(tickio.LabeledEvent{Y: 0, TauMs: 5}))
	k := m.CellIndex(TickState{})
	assert.Equal(t, uint64(1), m.Cells[k].N)
	assert.Equal(t, uint64(0), m.Cells[k].NUp)
	assert.Equal(t, uint64(0), m.Cells[k].NDown)
	assert.Equal(t, float64(5), m.Cells[k].SumTauMs)
}

func TestEmptyCellFallbacks(t *testing.T) {
	m := NewModel(1)
	assert.Equal(t, 0.5, m.PUp(0))
	assert.Equal(t, 0.0, m.DirectionScore(0))
	assert.True(t, math.IsNaN(m.MeanTauMs(0)))
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "SPY_histogram.json")
	path2 := filepath.Join(dir, "SPY_histogram_2.json")

	m := NewModel(0.5)
	require.NoError(t, m.Accumulate(tickio.LabeledEvent{
		Imbalance: -0.5, Spread: 0.02, AgeDiffMs: 75, LastMove: 1, Y: 1, TauMs: 42,
	}))
	require.NoError(t, m.Save(path1, "SPY", 2018, 2022))

	loaded, err := Load(path1)
	require.NoError(t, err)
	assert.Equal(t, m.Alpha, loaded.Alpha)
	assert.Equal(t, m.Cells, loaded.Cells)
	assert.Equal(t, m.Spec, loaded.Spec)

	// Persist -> load -> persist is the identity on bytes.
	require.NoError(t, loaded.Save(path2, "SPY", 2018, 2022))
	b1, err := os.ReadFile(path1)
	require.NoError(t, err)
	b2, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestPersistedEmptyCellSentinel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SPY_histogram.json")

	m := NewModel(1)
	// One populated cell: global mean tau = 40/4 = 10, sentinel = 20.
	for i := 0; i < 4; i++ {
		require.NoError(t, m.Accumulate(tickio.LabeledEvent{Y: 1, TauMs: 10}))
	}
	require.NoError(t, m.Save(path, "SPY", 2020, 2020))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw struct {
		Cells []struct {
			N         uint64  `json:"n"`
			MeanTauMs float64 `json:"mean_tau_ms"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Cells, NCells)

	for _, c := range raw.Cells {
		if c.N == 0 {
			assert.Equal(t, 20.0, c.MeanTauMs, "empty cells persist the 2x global mean sentinel")
		} else {
			assert.Equal(t, 10.0, c.MeanTauMs)
		}
	}
}

func TestLoadRejectsWrongCellCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alpha": 1, "cells": [{"idx":0}]}`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDefaultsAlpha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noalpha.json")

	m := NewModel(1)
	require.NoError(t, m.Save(path, "SPY", 2020, 2020))

	// Strip alpha from the file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &obj))
	delete(obj, "alpha")
	data, err = json.Marshal(obj)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, loaded.Alpha)
}
