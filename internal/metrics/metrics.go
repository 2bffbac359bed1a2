// Package metrics exposes Prometheus counters for the pipeline. The
// monitor subcommand serves them over /metrics; batch runs update them
// as a side channel and they reset with the process.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsIn counts input rows consumed per stage.
	RowsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nbboflow",
		Name:      "rows_in_total",
		Help:      "Input rows consumed, by stage",
	}, []string{"stage"})

	// RowsOut counts output rows emitted per stage.
	RowsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nbboflow",
		Name:      "rows_out_total",
		Help:      "Output rows emitted, by stage",
	}, []string{"stage"})

	// Glitches counts recoverable data problems by category and hour.
	Glitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nbboflow",
		Name:      "glitches_total",
		Help:      "Recoverable data problems, by category and hour of day",
	}, []string{"category", "hour"})

	// StageSeconds records wall-clock duration of completed stages.
	StageSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nbboflow",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of the last completed run of each stage",
	}, []string{"stage"})
)

// AddRowsIn records n consumed rows for a stage.
func AddRowsIn(stage string, n uint64) {
	RowsIn.WithLabelValues(stage).Add(float64(n))
}

// AddRowsOut records n emitted rows for a stage.
func AddRowsOut(stage string, n uint64) {
	RowsOut.WithLabelValues(stage).Add(float64(n))
}

// AddGlitch records n glitches for a category/hour pair.
func AddGlitch(category string, hour int, n uint64) {
	Glitches.WithLabelValues(category, strconv.Itoa(hour)).Add(float64(n))
}

// ObserveStage records a stage's wall-clock duration in seconds.
func ObserveStage(stage string, seconds float64) {
	StageSeconds.WithLabelValues(stage).Set(seconds)
}
