package histogram

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/metrics"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/tickio"
)

const stageName = "histogram"

// BuildConfig locates the event files and names the output model.
type BuildConfig struct {
	EventsRoot string // directory of <SYM>_<YYYY>_events.nbe files
	Symbol     string
	YearLo     int
	YearHi     int // inclusive
	OutPath    string
	Alpha      float64
}

// EventFileName names one year's labeled-event file.
func EventFileName(symbol string, year int) string {
	return fmt.Sprintf("%s_%d_events.nbe", symbol, year)
}

// Build accumulates every year's events into a model and persists it.
func Build(cfg BuildConfig) (*Model, error) {
	if cfg.YearHi < cfg.YearLo {
		return nil, pipeline.Fail(stageName, "", fmt.Errorf("year_hi %d < year_lo %d", cfg.YearHi, cfg.YearLo))
	}
	log.Info().
		Str("symbol", cfg.Symbol).
		Str("events_root", cfg.EventsRoot).
		Int("year_lo", cfg.YearLo).
		Int("year_hi", cfg.YearHi).
		Float64("alpha", cfg.Alpha).
		Msg("building histogram model")

	m := NewModel(cfg.Alpha)
	var total, skipped uint64
	for y := cfg.YearLo; y <= cfg.YearHi; y++ {
		path := filepath.Join(cfg.EventsRoot, EventFileName(cfg.Symbol, y))
		n, sk, err := accumulateFile(m, path)
		if err != nil {
			return nil, err
		}
		total += n
		skipped += sk
		log.Info().Int("year", y).Uint64("events", n).Msg("year accumulated")
	}

	metrics.AddRowsIn(stageName, total)
	if err := m.Save(cfg.OutPath, cfg.Symbol, cfg.YearLo, cfg.YearHi); err != nil {
		return nil, pipeline.Fail(stageName, "", err)
	}
	log.Info().
		Uint64("events", total).
		Uint64("skipped_null", skipped).
		Str("out", cfg.OutPath).
		Msg("histogram model written")
	return m, nil
}

// accumulateFile folds one year's events into the model. Rows with a
// NaN in any required field are skipped and counted.
func accumulateFile(m *Model, path string) (n, skipped uint64, err error) {
	r, err := tickio.OpenEventReader(path)
	if err != nil {
		return 0, 0, pipeline.Fail(stageName, filepath.Base(path), err)
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, skipped, nil
			}
			return n, skipped, pipeline.Fail(stageName, filepath.Base(path), err)
		}
		if anyNaN(ev.Imbalance, ev.Spread, ev.AgeDiffMs, ev.LastMove, ev.Y, ev.TauMs) {
			skipped++
			continue
		}
		if err := m.Accumulate(ev); err != nil {
			return n, skipped, pipeline.Fail(stageName, filepath.Base(path), err)
		}
		n++
	}
}

// Accumulate folds one labeled event into its cell. Flat moves (y = 0)
// count toward n and the waiting-time sum only.
func (m *Model) Accumulate(ev tickio.LabeledEvent) error {
	k := m.CellIndex(TickState{
		Imbalance: ev.Imbalance,
		Spread:    ev.Spread,
		AgeDiffMs: ev.AgeDiffMs,
		LastMove:  ev.LastMove,
	})
	if err := ValidateCell(k); err != nil {
		return err
	}
	c := &m.Cells[k]
	c.N++
	if ev.Y > 0 {
		c.NUp++
	} else if ev.Y < 0 {
		c.NDown++
	}
	c.SumTauMs += ev.TauMs
	return nil
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
