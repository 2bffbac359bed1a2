package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/metrics"
)

// Run is the per-run context object: a run identity plus stage timings.
// It replaces any process-global registry; its lifecycle is bounded by
// the driver that created it.
type Run struct {
	ID      string
	Started time.Time

	mu      sync.Mutex
	timings []StageTiming
}

// StageTiming records the wall-clock duration of one completed stage.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// NewRun creates a run context with a fresh UUID.
func NewRun() *Run {
	return &Run{ID: uuid.NewString(), Started: time.Now()}
}

// Time runs fn, records its duration under the stage name, and passes
// the stage's error through.
func (r *Run) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)

	r.mu.Lock()
	r.timings = append(r.timings, StageTiming{Stage: stage, Duration: d})
	r.mu.Unlock()
	metrics.ObserveStage(stage, d.Seconds())

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("run_id", r.ID).Str("stage", stage).Dur("elapsed", d).Msg("stage finished")
	return err
}

// LogSummary emits one line per recorded stage plus the total.
func (r *Run) LogSummary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := time.Since(r.Started)
	for _, t := range r.timings {
		log.Info().
			Str("run_id", r.ID).
			Str("stage", t.Stage).
			Dur("elapsed", t.Duration).
			Float64("share", float64(t.Duration)/float64(total)).
			Msg("timing")
	}
	log.Info().Str("run_id", r.ID).Dur("total", total).Msg("run complete")
}
