// Package pipeline carries the per-run context shared by all stages and
// the structured error type stages fail with. Recoverable data problems
// never surface here; a StageError means the stage could not complete.
package pipeline

import "fmt"

// StageError identifies a fatal failure of one stage, optionally pinned
// to the shard being processed.
type StageError struct {
	Stage string
	Shard string
	Err   error
}

// Error renders the stage, shard, and cause.
func (e *StageError) Error() string {
	if e.Shard != "" {
		return fmt.Sprintf("stage %s: shard %s: %v", e.Stage, e.Shard, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the cause.
func (e *StageError) Unwrap() error { return e.Err }

// Fail wraps an error as a StageError.
func Fail(stage, shard string, err error) *StageError {
	return &StageError{Stage: stage, Shard: shard, Err: err}
}
