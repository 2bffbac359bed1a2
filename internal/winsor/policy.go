package winsor

import "github.com/quantlab/nbboflow/internal/tickio"

// Mode selects how cutoffs are applied to the tick stream.
type Mode int

const (
	// Off leaves log returns untouched.
	Off Mode = iota
	// Clip replaces returns beyond a cutoff with the cutoff itself.
	Clip
	// Drop excludes rows whose return lies beyond a cutoff.
	Drop
)

// String names the mode for logs.
func (m Mode) String() string {
	switch m {
	case Clip:
		return "clip"
	case Drop:
		return "drop"
	default:
		return "off"
	}
}

// Options configures the winsorization pass.
type Options struct {
	Mode      Mode
	QLo, QHi  float64
	HeapLimit int
}

// DefaultOptions returns the default extreme quantiles with winsor off.
func DefaultOptions() Options {
	return Options{Mode: Off, QLo: 1e-5, QHi: 1 - 1e-5, HeapLimit: DefaultHeapLimit}
}

// Apply enforces the policy on one tick. It returns false when the row
// must be dropped; in clip mode the tick's log return may be rewritten
// in place. Ticks with a null log return always pass unchanged.
func Apply(t *tickio.Tick, mode Mode, lo, hi float64) bool {
	if mode == Off || !t.HasLogRet() {
		return true
	}
	lr := float64(t.LogRet)
	switch mode {
	case Clip:
		if lr < lo {
			t.LogRet = float32(lo)
		} else if lr > hi {
			t.LogRet = float32(hi)
		}
		return true
	case Drop:
		return lr >= lo && lr <= hi
	}
	return true
}
