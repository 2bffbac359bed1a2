package events

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/metrics"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/progress"
	"github.com/quantlab/nbboflow/internal/tickio"
)

const stageName = "events"

// RunFile builds labeled events from one cleaned per-year tick file.
func RunFile(inPath, outPath string, thresholdNext float64) (*Builder, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, pipeline.Fail(stageName, "", fmt.Errorf("create output dir: %w", err))
	}

	r, err := tickio.OpenTickReader(inPath)
	if err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}
	defer r.Close()

	w, err := tickio.NewEventWriter(outPath)
	if err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}

	b := NewBuilder(thresholdNext)
	prog := progress.New(stageName+":"+filepath.Base(inPath), 10_000_000)
	for {
		t, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			w.Close()
			return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
		}
		prog.Bump()
		if err := b.Push(t, w.Append); err != nil {
			w.Close()
			return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
		}
	}
	b.Finish()
	if err := w.Close(); err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}

	metrics.AddRowsIn(stageName, b.TicksTotal)
	metrics.AddRowsOut(stageName, b.EventsWritten)
	log.Info().
		Uint64("ticks_total", b.TicksTotal).
		Uint64("events_detected", b.EventsDetected).
		Uint64("events_written", b.EventsWritten).
		Uint64("events_dropped_bigmove", b.EventsDroppedBigmove).
		Uint64("events_dropped_boundary", b.EventsDroppedBoundary).
		Msg("event build summary")
	return b, nil
}
