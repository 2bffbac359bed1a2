package denoise

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quantlab/nbboflow/internal/metrics"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/progress"
	"github.com/quantlab/nbboflow/internal/tickio"
)

const stageName = "clean"

// RunFile streams one per-year tick file through the denoiser and
// writes the surviving rows to outPath. The returned denoiser carries
// the accounting for reporting.
func RunFile(inPath, outPath string, opts Options) (*Denoiser, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, pipeline.Fail(stageName, "", fmt.Errorf("create output dir: %w", err))
	}

	r, err := tickio.OpenTickReader(inPath)
	if err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}
	defer r.Close()

	w, err := tickio.NewTickWriter(outPath)
	if err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}

	d := New(opts)
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
		if !d.Keep(t) {
			continue
		}
		if err := w.Append(t); err != nil {
			w.Close()
			return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, pipeline.Fail(stageName, filepath.Base(inPath), err)
	}

	metrics.AddRowsIn(stageName, d.RowsIn)
	metrics.AddRowsOut(stageName, d.RowsKept)
	d.LogSummary()
	return d, nil
}
