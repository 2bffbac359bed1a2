package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImbalanceBins(t *testing.T) {
	spec := DefaultBinSpec()
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"deep negative", -0.9, 0},
		{"boundary -0.7 goes right", -0.7, 1},
		{"mid negative", -0.2, 2},
		{"boundary -0.1 inclusive", -0.1, 3},
		{"flat", 0.0, 3},
		{"boundary 0.1 inclusive left", 0.1, 3},
		{"just over 0.1", 0.1000001, 4},
		{"boundary 0.3 inclusive", 0.3, 4},
		{"deep positive", 0.8, 5},
		{"clamped below", -1.5, 0},
		{"clamped above", 1.5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spec.ImbBinOf(tt.in))
		})
	}
}

func TestSpreadBins(t *testing.T) {
	spec := DefaultBinSpec()
	tests := []struct {
		name string
		in   float64
		want int
	}{
		// Spreads arrive as float32 differences; mirror that here.
		{"one tick", float64(float32(0.01)), 0},
		{"1.4 ticks rounds to 1", float64(float32(0.014)), 0},
		{"1.6 ticks rounds to 2", float64(float32(0.016)), 1},
		{"two ticks", float64(float32(0.02)), 1},
		{"2.6 ticks rounds to 3", float64(float32(0.026)), 2},
		{"wide", 0.5, 2},
		{"zero", 0, 0},
		{"negative", -0.01, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spec.SprBinOf(tt.in))
		})
	}
}

func TestAgeBins(t *testing.T) {
	spec := DefaultBinSpec()
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"far negative", -500, 0},
		{"boundary -200 goes right", -200, 1},
		{"mild negative", -100, 1},
		{"boundary -50 inclusive", -50, 2},
		{"balanced", 0, 2},
		{"boundary 50 inclusive", 50, 2},
		{"mild positive", 100, 3},
		{"boundary 200 inclusive", 200, 3},
		{"far positive", 201, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spec.AgeBinOf(tt.in))
		})
	}
}

func TestLastMoveBins(t *testing.T) {
	spec := DefaultBinSpec()
	assert.Equal(t, 0, spec.LastBinOf(-1))
	assert.Equal(t, 1, spec.LastBinOf(0))
	assert.Equal(t, 2, spec.LastBinOf(1))
}

func TestCellIndexRoundTrip(t *testing.T) {
	for k := 0; k < NCells; k++ {
		bImb, bSpr, bAge, bLast := DecodeCell(k)
		assert.Equal(t, k, ((bImb*NSpr+bSpr)*NAge+bAge)*NLast+bLast)
	}
}

func TestValidateCell(t *testing.T) {
	assert.NoError(t, ValidateCell(0))
	assert.NoError(t, ValidateCell(NCells-1))
	assert.Error(t, ValidateCell(-1))
	assert.Error(t, ValidateCell(NCells))
}
