// Package progress emits deterministic row-count progress logs for
// long-running streams: a milestone line every N rows, plus an optional
// rate-limited heartbeat for tight per-row loops.
package progress

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Logger tracks a row counter for one named stream.
type Logger struct {
	name    string
	every   uint64
	count   uint64
	started time.Time
	beat    *rate.Limiter
}

// New creates a progress logger that logs a milestone every `every`
// rows. An `every` of 0 disables milestones.
func New(name string, every uint64) *Logger {
	return &Logger{
		name:    name,
		every:   every,
		started: time.Now(),
		beat:    rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Bump advances the counter by one and logs when a milestone is
// crossed. Milestones are strictly every-N-rows, independent of timing.
func (l *Logger) Bump() {
	l.count++
	if l.every > 0 && l.count%l.every == 0 {
		log.Info().
			Str("stream", l.name).
			Uint64("rows", l.count).
			Dur("elapsed", time.Since(l.started)).
			Msg("progress")
	}
}

// Add advances the counter by n, logging once if a milestone was
// crossed in the span.
func (l *Logger) Add(n uint64) {
	if n == 0 {
		return
	}
	before := l.count
	l.count += n
	if l.every > 0 && before/l.every != l.count/l.every {
		log.Info().
			Str("stream", l.name).
			Uint64("rows", l.count).
			Dur("elapsed", time.Since(l.started)).
			Msg("progress")
	}
}

// Heartbeat logs a debug-level line at most once per limiter interval.
// Use it inside loops whose per-row cost is too small for milestones.
func (l *Logger) Heartbeat(ev func(e *zerolog.Event)) {
	if !l.beat.Allow() {
		return
	}
	e := log.Debug().Str("stream", l.name).Uint64("rows", l.count)
	if ev != nil {
		ev(e)
	}
	e.Msg("heartbeat")
}

// Count returns the rows seen so far.
func (l *Logger) Count() uint64 { return l.count }

// Done logs the final count and elapsed time.
func (l *Logger) Done() {
	log.Info().
		Str("stream", l.name).
		Uint64("rows", l.count).
		Dur("elapsed", time.Since(l.started)).
		Msg("stream complete")
}
