// Package winsor computes extreme-tail log-return quantiles with bounded
// memory and applies a clip-or-drop policy to tick streams.
//
// Each worker feeds finite samples into its own Sketch: a max-heap of
// the smallest values seen and a min-heap of the largest, both capped at
// a fixed size. Worker sketches merge into a global one under a single
// lock, and exact order statistics are read off the sorted heap
// contents. For a heap limit L >= ceil(max(q_lo, 1-q_hi)*N) plus a
// safety margin the selection is exact; with a smaller L the outermost
// captured value is returned and flagged.
package winsor

import (
	"container/heap"
	"math"
	"sort"
)

// DefaultHeapLimit bounds each tail heap.
const DefaultHeapLimit = 200_000

// maxHeap keeps the smallest values seen; the largest of them is on top.
type maxHeap []float64

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// minHeap keeps the largest values seen; the smallest of them is on top.
type minHeap []float64

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Sketch is a two-sided bounded selection of tail samples.
type Sketch struct {
	limit int
	low   maxHeap
	high  minHeap
	n     uint64
}

// NewSketch builds a sketch with the given per-tail heap limit.
func NewSketch(limit int) *Sketch {
	if limit <= 0 {
		limit = DefaultHeapLimit
	}
	return &Sketch{
		limit: limit,
		low:   make(maxHeap, 0, min(limit, 1024)),
		high:  make(minHeap, 0, min(limit, 1024)),
	}
}

// Add feeds one sample. Non-finite samples are ignored and not counted.
func (s *Sketch) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	s.n++
	if len(s.low) < s.limit {
		heap.Push(&s.low, v)
	} else if v < s.low[0] {
		s.low[0] = v
		heap.Fix(&s.low, 0)
	}
	if len(s.high) < s.limit {
		heap.Push(&s.high, v)
	} else if v > s.high[0] {
		s.high[0] = v
		heap.Fix(&s.high, 0)
	}
}

// N returns the number of finite samples seen.
func (s *Sketch) N() uint64 { return s.n }

// Merge folds another sketch into this one. The caller serializes
// concurrent merges.
func (s *Sketch) Merge(o *Sketch) {
	s.n += o.n
	for _, v := range o.low {
		if len(s.low) < s.limit {
			heap.Push(&s.low, v)
		} else if v < s.low[0] {
			s.low[0] = v
			heap.Fix(&s.low, 0)
		}
	}
	for _, v := range o.high {
		if len(s.high) < s.limit {
			heap.Push(&s.high, v)
		} else if v > s.high[0] {
			s.high[0] = v
			heap.Fix(&s.high, 0)
		}
	}
}

// Cutoffs holds the two-sided quantile result.
type Cutoffs struct {
	Lo, Hi float64
	// Exact is false when a requested rank fell outside the captured
	// tail; the returned cutoff is then the heap boundary and should be
	// treated as a bound.
	Exact bool
	N     uint64
}

// Quantiles computes the cutoffs at the given extreme quantiles over all
// samples added so far. With no finite samples both cutoffs are NaN.
func (s *Sketch) Quantiles(qLo, qHi float64) Cutoffs {
	if s.n == 0 {
		return Cutoffs{Lo: math.NaN(), Hi: math.NaN(), Exact: false}
	}

	lows := append([]float64(nil), s.low...)
	sort.Float64s(lows)
	highs := append([]float64(nil), s.high...)
	sort.Float64s(highs)

	exact := true

	rLo := uint64(math.Floor(qLo * float64(s.n)))
	idxLo := int(rLo)
	if idxLo >= len(lows) {
		idxLo = len(lows) - 1
		exact = false
	}

	rHi := uint64(math.Floor(qHi * float64(s.n)))
	var base uint64
	if uint64(len(highs)) < s.n {
		base = s.n - uint64(len(highs))
	}
	idxHi := 0
	if rHi > base {
		idxHi = int(rHi - base)
		if idxHi > len(highs)-1 {
			idxHi = len(highs) - 1
		}
	} else if uint64(len(highs)) < s.n {
		// The requested rank sits below the captured upper tail.
		exact = false
	}

	return Cutoffs{Lo: lows[idxLo], Hi: highs[idxHi], Exact: exact, N: s.n}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
