package denoise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
)

func tick(day uint32, ms int, mid float64) tickio.Tick {
	return tickio.Tick{
		TS:  timeutil.Compose(day, 9, 30, 0, 0) + uint64(ms),
		Mid: float32(mid),
	}
}

func TestLevelThenDeltaStream(t *testing.T) {
	d := New(DefaultOptions())

	mids := []float64{50, 1200, 80, 100, 250}
	var kept []float64
	for i, m := range mids {
		if d.Keep(tick(20200102, i, m)) {
			kept = append(kept, m)
		}
	}

	assert.Equal(t, []float64{50, 80, 100}, kept)
	assert.Equal(t, uint64(2), d.Removed())
	assert.Equal(t, uint64(3), d.KeptPerDay[20200102])
	assert.Equal(t, uint64(2), d.RemovedPerDay[20200102])
	// Baseline is the last kept tick.
	assert.Equal(t, float64(100), d.lastMid)
}

func TestDeltaThresholdBoundary(t *testing.T) {
	opts := Options{Threshold: 100, MidMax: 1e9}
	t.Run("delta just under threshold kept", func(t *testing.T) {
		d := New(opts)
		require.True(t, d.Keep(tick(20200102, 0, 500)))
		assert.True(t, d.Keep(tick(20200102, 1, 599.99)))
	})
	t.Run("delta equal to threshold dropped", func(t *testing.T) {
		d := New(opts)
		require.True(t, d.Keep(tick(20200102, 0, 500)))
		assert.False(t, d.Keep(tick(20200102, 1, 600)))
		assert.Equal(t, uint64(1), d.RemovedByDelta)
	})
}

func TestLevelFilterStrictlyGreater(t *testing.T) {
	d := New(Options{Threshold: 1e9, MidMax: 1000})
	assert.True(t, d.Keep(tick(20200102, 0, 1000)), "mid == cap passes")
	assert.False(t, d.Keep(tick(20200102, 1, 1000.01)))
	assert.Equal(t, uint64(1), d.RemovedByLevel)
}

func TestFirstTickOfDayLevelOnly(t *testing.T) {
	d := New(DefaultOptions())

	// First tick over the level cap: dropped, no baseline installed.
	assert.False(t, d.Keep(tick(20200102, 0, 1500)))
	// Next good tick becomes first-of-day; no delta filter applies.
	assert.True(t, d.Keep(tick(20200102, 1, 50)))
	assert.Equal(t, uint64(1), d.RemovedByLevel)
	assert.Equal(t, uint64(0), d.RemovedByDelta)
}

func TestDayBoundaryResetsBaseline(t *testing.T) {
	d := New(DefaultOptions())

	require.True(t, d.Keep(tick(20200102, 0, 100)))
	// Inter-day jump far beyond the threshold is permitted.
	assert.True(t, d.Keep(tick(20200103, 0, 900)))
	assert.Equal(t, uint64(0), d.Removed())
}

func TestBaselineUnchangedByDrops(t *testing.T) {
	d := New(DefaultOptions())

	require.True(t, d.Keep(tick(20200102, 0, 100)))
	require.False(t, d.Keep(tick(20200102, 1, 300))) // delta 200
	// Delta is measured against the last *kept* mid, not the dropped one.
	assert.True(t, d.Keep(tick(20200102, 2, 150)))
}

func TestSpikeExamplesRetained(t *testing.T) {
	d := New(DefaultOptions())
	require.True(t, d.Keep(tick(20200102, 0, 100)))
	require.False(t, d.Keep(tick(20200102, 1, 300)))

	require.Len(t, d.Examples, 1)
	ex := d.Examples[0]
	assert.Equal(t, uint32(20200102), ex.Day)
	assert.Equal(t, float64(100), ex.MidPrev)
	assert.Equal(t, float64(300), ex.MidCurr)
	assert.Equal(t, float64(200), ex.Delta)
}
