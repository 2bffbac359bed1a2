package nbbo

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/nbboflow/internal/glitch"
	"github.com/quantlab/nbboflow/internal/metrics"
	"github.com/quantlab/nbboflow/internal/pipeline"
	"github.com/quantlab/nbboflow/internal/progress"
	"github.com/quantlab/nbboflow/internal/quote"
	"github.com/quantlab/nbboflow/internal/tickio"
	"github.com/quantlab/nbboflow/internal/timeutil"
	"github.com/quantlab/nbboflow/internal/winsor"
)

const stageName = "aggregate"

// Summary reports what a stage A run produced.
type Summary struct {
	Shards   int
	Years    []int
	Cutoffs  winsor.Cutoffs
	Glitches *glitch.Counts
}

// Run executes stage A end to end: resolve or build the per-shard tick
// cache, compute winsor cutoffs if requested, and write the per-year
// partitioned output. The tick cache is reused when it already covers
// the requested shards; in clock mode a missing clock cache is
// synthesized from an existing event cache without re-parsing CSVs.
func Run(s Settings) (*Summary, error) {
	if s.CacheDir == "" {
		return nil, pipeline.Fail(stageName, "", fmt.Errorf("cache dir required"))
	}
	for _, g := range []Grid{GridEvent, GridClock} {
		if err := os.MkdirAll(cacheSubdir(s.CacheDir, g), 0o755); err != nil {
			return nil, pipeline.Fail(stageName, "", fmt.Errorf("create cache dir: %w", err))
		}
	}
	if s.StaleMs != 0 {
		log.Warn().Int("stale_ms", s.StaleMs).Msg("stale_ms is accepted but unused")
	}
	log.Info().
		Str("grid", s.Grid.String()).
		Str("winsor", s.Winsor.Mode.String()).
		Float64("q_lo", s.Winsor.QLo).
		Float64("q_hi", s.Winsor.QHi).
		Int("max_ffill_gap_ms", s.MaxFFillGapMs).
		Int("workers", s.Workers).
		Str("sym_root", s.SymRoot).
		Msg("stage A starting")

	glitches := glitch.NewCounts()
	raws := listRawShards(s)

	shards, haveCache := cacheFromRawList(s, raws)
	if !haveCache {
		shards, haveCache = cacheFromSubdir(s, cacheSubdir(s.CacheDir, s.Grid))
	}
	if !haveCache && s.Grid == GridClock {
		if eventShards, ok := cacheFromSubdir(s, cacheSubdir(s.CacheDir, GridEvent)); ok {
			log.Info().Int("shards", len(eventShards)).
				Int("max_ffill_gap_ms", s.MaxFFillGapMs).
				Msg("clock cache missing; synthesizing from event cache")
			produced, err := eventToClock(s, eventShards)
			if err != nil {
				return nil, err
			}
			shards, haveCache = produced, len(produced) > 0
		}
	}
	if !haveCache {
		if len(raws) == 0 {
			return nil, pipeline.Fail(stageName, "", fmt.Errorf(
				"no raw shards in %q and no tick cache in %q", s.InDir, cacheSubdir(s.CacheDir, s.Grid)))
		}
		if err := parallelRawToCache(s, raws, glitches); err != nil {
			return nil, err
		}
		if shards, haveCache = cacheFromRawList(s, raws); !haveCache {
			if shards, haveCache = cacheFromSubdir(s, cacheSubdir(s.CacheDir, s.Grid)); !haveCache {
				return nil, pipeline.Fail(stageName, "", fmt.Errorf("shard parsing produced no cache files"))
			}
		}
	} else {
		log.Info().Int("shards", len(shards)).Msg("tick cache found; skipping CSV parse")
	}

	cut := winsor.Cutoffs{}
	if s.Winsor.Mode != winsor.Off {
		var err error
		if cut, err = tailPass(s, shards); err != nil {
			return nil, err
		}
		log.Info().
			Uint64("n_finite", cut.N).
			Float64("cut_lo", cut.Lo).
			Float64("cut_hi", cut.Hi).
			Bool("exact", cut.Exact).
			Msg("tail quantiles computed")
		if !cut.Exact {
			log.Warn().Msg("requested quantile outside captured tail; cutoff is a heap boundary")
		}
	}

	years, err := partitionPass(s, shards, cut)
	if err != nil {
		return nil, err
	}

	if s.ReportPath != "" {
		if err := glitches.WriteReportFile(s.ReportPath); err != nil {
			return nil, pipeline.Fail(stageName, "", err)
		}
	}
	for cat, hm := range glitches.ByHour {
		for h, n := range hm {
			metrics.AddGlitch(cat, h, n)
		}
	}

	return &Summary{Shards: len(shards), Years: years, Cutoffs: cut, Glitches: glitches}, nil
}

// forEachShard runs fn over shards with a fixed worker pool draining a
// shared atomic index. The first error stops new work and is returned.
func forEachShard(workers int, shards []string, fn func(i int, shard string) error) error {
	if workers < 1 {
		workers = 1
	}
	var next atomic.Int64
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= len(shards) {
					return
				}
				mu.Lock()
				stop := firstErr != nil
				mu.Unlock()
				if stop {
					return
				}
				if err := fn(i, shards[i]); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// parallelRawToCache parses every raw shard into its cached tick file.
// Per-worker glitch counts merge into the shared set at end of shard.
func parallelRawToCache(s Settings, raws []string, total *glitch.Counts) error {
	var mu sync.Mutex
	return forEachShard(s.Workers, raws, func(i int, raw string) error {
		outPath := cachePathForRaw(s, raw)
		log.Info().
			Int("shard", i+1).
			Int("of", len(raws)).
			Str("out", filepath.Base(outPath)).
			Msg("parsing raw shard")
		local := glitch.NewCounts()
		if err := parseRawShard(s, raw, outPath, local); err != nil {
			return pipeline.Fail(stageName, filepath.Base(raw), err)
		}
		mu.Lock()
		total.Merge(local)
		mu.Unlock()
		return nil
	})
}

// parseRawShard streams one CSV.gz shard through the filters and the
// per-ms aggregator into a cached tick file.
func parseRawShard(s Settings, rawPath, outPath string, g *glitch.Counts) error {
	f, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("open raw shard: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	w, err := tickio.NewTickWriter(outPath)
	if err != nil {
		return err
	}

	emit := EmitFunc(w.Append)
	if s.Grid == GridClock {
		filler := NewFiller(s.MaxFFillGapMs)
		emit = func(t tickio.Tick) error { return filler.Push(t, w.Append) }
	}

	filter := quote.NewFilter(s.Venues, s.Session)
	agg := NewAggregator(g)
	prog := progress.New("stageA:"+filepath.Base(rawPath), s.LogEveryIn)

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	first := true
	for sc.Scan() {
		if first {
			first = false // header row
			continue
		}
		prog.Bump()
		rec, outcome, hour := filter.ParseLine(sc.Text())
		switch outcome {
		case quote.Accepted:
			if err := agg.Push(rec, hour, emit); err != nil {
				w.Close()
				return err
			}
		case quote.ParseFail:
			g.Bump(glitch.ParseFail, hour)
		case quote.NonPosField:
			g.Bump(glitch.NonPosField, hour)
		}
	}
	if err := sc.Err(); err != nil {
		w.Close()
		return fmt.Errorf("read raw shard: %w", err)
	}
	if err := agg.Flush(emit); err != nil {
		w.Close()
		return err
	}
	metrics.AddRowsIn(stageName, prog.Count())
	metrics.AddRowsOut(stageName, w.Rows())
	prog.Done()
	return w.Close()
}

// eventToClock synthesizes the clock cache from the event cache by
// running each shard through the bounded-fill rule.
func eventToClock(s Settings, eventShards []string) ([]string, error) {
	outDir := cacheSubdir(s.CacheDir, GridClock)
	produced := make([]string, len(eventShards))

	err := forEachShard(s.Workers, eventShards, func(i int, in string) error {
		outPath := filepath.Join(outDir, filepath.Base(in))
		if err := fillShard(s.MaxFFillGapMs, in, outPath); err != nil {
			return pipeline.Fail(stageName, filepath.Base(in), err)
		}
		produced[i] = outPath
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortChronologically(s.SymRoot, produced)
	return produced, nil
}

// fillShard copies one event-grid shard onto the clock grid.
func fillShard(maxGapMs int, inPath, outPath string) error {
	r, err := tickio.OpenTickReader(inPath)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := tickio.NewTickWriter(outPath)
	if err != nil {
		return err
	}

	filler := NewFiller(maxGapMs)
	for {
		t, err := r.Next()
		if err != nil {
			if isEOF(err) {
				break
			}
			w.Close()
			return err
		}
		if err := filler.Push(t, w.Append); err != nil {
			w.Close()
			return err
		}
	}
	log.Info().
		Str("shard", filepath.Base(inPath)).
		Uint64("rows_out", w.Rows()).
		Msg("clock shard synthesized from event cache")
	return w.Close()
}

// tailPass computes winsor cutoffs over the log returns of every shard.
// Workers keep local sketches and merge into the global one under a
// single mutex at end of shard.
func tailPass(s Settings, shards []string) (winsor.Cutoffs, error) {
	global := winsor.NewSketch(s.Winsor.HeapLimit)
	var mu sync.Mutex

	err := forEachShard(s.Workers, shards, func(i int, shard string) error {
		local := winsor.NewSketch(s.Winsor.HeapLimit)
		r, err := tickio.OpenTickReader(shard)
		if err != nil {
			return pipeline.Fail(stageName, filepath.Base(shard), err)
		}
		defer r.Close()
		for {
			t, err := r.Next()
			if err != nil {
				if isEOF(err) {
					break
				}
				return pipeline.Fail(stageName, filepath.Base(shard), err)
			}
			if t.HasLogRet() {
				local.Add(float64(t.LogRet))
			}
		}
		mu.Lock()
		global.Merge(local)
		mu.Unlock()
		log.Info().
			Int("shard", i+1).
			Int("of", len(shards)).
			Uint64("finite", local.N()).
			Msg("tail pass shard done")
		return nil
	})
	if err != nil {
		return winsor.Cutoffs{}, err
	}
	return global.Quantiles(s.Winsor.QLo, s.Winsor.QHi), nil
}

// partitionPass streams the cached shards in chronological order,
// applies the winsor policy, and routes each tick to its year file.
func partitionPass(s Settings, shards []string, cut winsor.Cutoffs) ([]int, error) {
	outDir := filepath.Join(s.OutDir, s.modeDirName())
	pw, err := NewPartitionedWriter(outDir, s.SymRoot)
	if err != nil {
		return nil, pipeline.Fail(stageName, "", err)
	}

	prog := progress.New("stageA:partition", 5_000_000)
	for i, shard := range shards {
		log.Info().
			Int("shard", i+1).
			Int("of", len(shards)).
			Str("name", filepath.Base(shard)).
			Msg("partitioning shard")
		r, err := tickio.OpenTickReader(shard)
		if err != nil {
			pw.Close()
			return nil, pipeline.Fail(stageName, filepath.Base(shard), err)
		}
		for {
			t, err := r.Next()
			if err != nil {
				if isEOF(err) {
					break
				}
				r.Close()
				pw.Close()
				return nil, pipeline.Fail(stageName, filepath.Base(shard), err)
			}
			if !winsor.Apply(&t, s.Winsor.Mode, cut.Lo, cut.Hi) {
				continue
			}
			if err := pw.Append(timeutil.Year(t.TS), t); err != nil {
				r.Close()
				pw.Close()
				return nil, pipeline.Fail(stageName, filepath.Base(shard), err)
			}
			prog.Bump()
		}
		r.Close()
	}

	years := pw.Years()
	if err := pw.Close(); err != nil {
		return nil, pipeline.Fail(stageName, "", err)
	}
	prog.Done()
	log.Info().Str("out_dir", outDir).Ints("years", years).Msg("partitioned write complete")
	return years, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
