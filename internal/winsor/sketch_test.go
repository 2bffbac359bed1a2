package winsor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/nbboflow/internal/tickio"
)

// hundred returns 0.001, 0.002, ..., 0.100 in shuffled-ish order.
func hundred() []float64 {
	out := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		out = append(out, float64((i*37)%100+1)/1000)
	}
	return out
}

func TestExactSelectionWithinCapturedTails(t *testing.T) {
	s := NewSketch(10)
	for _, v := range hundred() {
		s.Add(v)
	}
	require.Equal(t, uint64(100), s.N())

	cut := s.Quantiles(0.02, 0.98)
	assert.True(t, cut.Exact)
	// rank floor(0.02*100)=2 -> third smallest; floor(0.98*100)=98 ->
	// index 8 of the captured top 10.
	assert.InDelta(t, 0.003, cut.Lo, 1e-12)
	assert.InDelta(t, 0.099, cut.Hi, 1e-12)
}

func TestRankOutsideCapturedTail(t *testing.T) {
	s := NewSketch(10)
	for _, v := range hundred() {
		s.Add(v)
	}
	cut := s.Quantiles(0.5, 1-1e-5)
	assert.False(t, cut.Exact)
	// The lower cutoff degrades to the heap boundary.
	assert.InDelta(t, 0.010, cut.Lo, 1e-12)
}

func TestNonFiniteSamplesIgnored(t *testing.T) {
	s := NewSketch(10)
	s.Add(math.NaN())
	s.Add(math.Inf(1))
	s.Add(0.5)
	assert.Equal(t, uint64(1), s.N())
}

func TestEmptySketch(t *testing.T) {
	s := NewSketch(10)
	cut := s.Quantiles(1e-5, 1-1e-5)
	assert.True(t, math.IsNaN(cut.Lo))
	assert.True(t, math.IsNaN(cut.Hi))
}

func TestMergeMatchesSingleSketch(t *testing.T) {
	all := NewSketch(10)
	a := NewSketch(10)
	b := NewSketch(10)
	for i, v := range hundred() {
		all.Add(v)
		if i%2 == 0 {
			a.Add(v)
		} else {
			b.Add(v)
		}
	}
	a.Merge(b)
	require.Equal(t, all.N(), a.N())

	want := all.Quantiles(0.02, 0.98)
	got := a.Quantiles(0.02, 0.98)
	assert.Equal(t, want.Lo, got.Lo)
	assert.Equal(t, want.Hi, got.Hi)
}

func TestApplyClip(t *testing.T) {
	tick := tickio.Tick{LogRet: 0.5}
	keep := Apply(&tick, Clip, -0.1, 0.1)
	assert.True(t, keep)
	assert.Equal(t, float32(0.1), tick.LogRet)

	tick = tickio.Tick{LogRet: -0.5}
	Apply(&tick, Clip, -0.1, 0.1)
	assert.Equal(t, float32(-0.1), tick.LogRet)

	tick = tickio.Tick{LogRet: 0.05}
	Apply(&tick, Clip, -0.1, 0.1)
	assert.Equal(t, float32(0.05), tick.LogRet)
}

func TestApplyDrop(t *testing.T) {
	inRange := tickio.Tick{LogRet: 0.05}
	assert.True(t, Apply(&inRange, Drop, -0.1, 0.1))

	outRange := tickio.Tick{LogRet: 0.5}
	assert.False(t, Apply(&outRange, Drop, -0.1, 0.1))

	nullRet := tickio.Tick{LogRet: tickio.NullLogRet()}
	assert.True(t, Apply(&nullRet, Drop, -0.1, 0.1), "null returns always pass")
}
