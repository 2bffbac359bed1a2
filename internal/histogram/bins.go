// Package histogram implements the 4-dimensional categorical model over
// (imbalance, spread, age difference, last move): the bin spec, the
// per-cell statistics, Laplace-smoothed derived quantities, the
// accumulator that builds the model from labeled events, and the JSON
// persistence format shared with downstream consumers.
package histogram

import (
	"fmt"
	"math"
)

// Grid dimensions.
const (
	NImb   = 6
	NSpr   = 3
	NAge   = 5
	NLast  = 3
	NCells = NImb * NSpr * NAge * NLast
)

// TickSize is the price increment used to convert spreads to tick
// counts for binning.
const TickSize = 0.01

// ImbBin is one imbalance interval; inclusivity comes from the interval
// notation, e.g. "[-0.7, -0.3)".
type ImbBin struct {
	Lo, Hi       float64
	LoInc, HiInc bool
	Interval     string
}

// SpreadBin is one spread-tick-count range; MaxIsInf marks an unbounded
// upper end.
type SpreadBin struct {
	TicksMin int
	TicksMax int
	MaxIsInf bool
}

// AgeBin is one age-difference interval in ms; infinite ends are
// flagged rather than encoded as sentinels.
type AgeBin struct {
	Lo, Hi           float64
	LoIsInf, HiIsInf bool
	LoInc, HiInc     bool
}

// LastMoveThresholds splits the last-move value into down/flat/up.
type LastMoveThresholds struct {
	DownCut, UpCut float64
}

// BinSpec is the full 4-D binning scheme.
type BinSpec struct {
	Imb  [NImb]ImbBin
	Spr  [NSpr]SpreadBin
	Age  [NAge]AgeBin
	Last LastMoveThresholds
}

// DefaultBinSpec returns the documented default scheme.
func DefaultBinSpec() BinSpec {
	var spec BinSpec

	imb := func(idx int, lo, hi float64, loInc, hiInc bool, interval string) {
		spec.Imb[idx] = ImbBin{Lo: lo, Hi: hi, LoInc: loInc, HiInc: hiInc, Interval: interval}
	}
	imb(0, -1.0, -0.7, true, false, "[-1.0, -0.7)")
	imb(1, -0.7, -0.3, true, false, "[-0.7, -0.3)")
	imb(2, -0.3, -0.1, true, false, "[-0.3, -0.1)")
	imb(3, -0.1, 0.1, true, true, "[-0.1, 0.1]")
	imb(4, 0.1, 0.3, false, true, "(0.1, 0.3]")
	imb(5, 0.3, 1.0, false, true, "(0.3, 1.0]")

	spec.Spr[0] = SpreadBin{TicksMin: 0, TicksMax: 1}
	spec.Spr[1] = SpreadBin{TicksMin: 2, TicksMax: 2}
	spec.Spr[2] = SpreadBin{TicksMin: 3, MaxIsInf: true}

	age := func(idx int, lo, hi float64, loIsInf, hiIsInf, loInc, hiInc bool) {
		spec.Age[idx] = AgeBin{Lo: lo, Hi: hi, LoIsInf: loIsInf, HiIsInf: hiIsInf, LoInc: loInc, HiInc: hiInc}
	}
	age(0, 0, -200, true, false, false, false)
	age(1, -200, -50, false, false, true, false)
	age(2, -50, 50, false, false, true, true)
	age(3, 50, 200, false, false, false, true)
	age(4, 200, 0, false, true, false, false)

	spec.Last = LastMoveThresholds{DownCut: -0.5, UpCut: 0.5}
	return spec
}

// ImbBinOf maps an imbalance to its bin. Inputs are clamped to [-1, 1].
func (s *BinSpec) ImbBinOf(I float64) int {
	if I < -1 {
		I = -1
	}
	if I > 1 {
		I = 1
	}
	for i := 0; i < NImb-1; i++ {
		b := s.Imb[i]
		if (b.HiInc && I <= b.Hi) || (!b.HiInc && I < b.Hi) {
			return i
		}
	}
	return NImb - 1
}

// SprBinOf maps a spread in price units to its tick-count bin.
// Non-positive or non-finite spreads map to bin 0.
func (s *BinSpec) SprBinOf(spread float64) int {
	if spread <= 0 || math.IsNaN(spread) || math.IsInf(spread, 0) {
		return 0
	}
	k := int(math.Round(spread / TickSize))
	for i := 0; i < NSpr-1; i++ {
		b := s.Spr[i]
		if !b.MaxIsInf && k <= b.TicksMax {
			return i
		}
	}
	return NSpr - 1
}

// AgeBinOf maps an age difference in ms to its bin.
func (s *BinSpec) AgeBinOf(ageDiffMs float64) int {
	for i := 0; i < NAge-1; i++ {
		b := s.Age[i]
		if b.HiIsInf {
			return i
		}
		if (b.HiInc && ageDiffMs <= b.Hi) || (!b.HiInc && ageDiffMs < b.Hi) {
			return i
		}
	}
	return NAge - 1
}

// LastBinOf maps a last-move value to down/flat/up.
func (s *BinSpec) LastBinOf(L float64) int {
	if L < s.Last.DownCut {
		return 0
	}
	if L > s.Last.UpCut {
		return 2
	}
	return 1
}

// CellOf computes the linear cell index of a state.
func (s *BinSpec) CellOf(imbalance, spread, ageDiffMs, lastMove float64) int {
	bImb := s.ImbBinOf(imbalance)
	bSpr := s.SprBinOf(spread)
	bAge := s.AgeBinOf(ageDiffMs)
	bLast := s.LastBinOf(lastMove)
	return ((bImb*NSpr+bSpr)*NAge+bAge)*NLast + bLast
}

// DecodeCell splits a linear cell index back into its bin coordinates.
func DecodeCell(k int) (bImb, bSpr, bAge, bLast int) {
	bLast = k % NLast
	k /= NLast
	bAge = k % NAge
	k /= NAge
	bSpr = k % NSpr
	k /= NSpr
	bImb = k
	return
}

// ValidateCell checks a cell index before indexing the cell array; an
// out-of-range index is a logic invariant violation.
func ValidateCell(k int) error {
	if k < 0 || k >= NCells {
		return fmt.Errorf("cell index %d out of range [0,%d)", k, NCells)
	}
	return nil
}
