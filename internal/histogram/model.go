package histogram

import "math"

// CellStats accumulates the counts of one grid cell.
type CellStats struct {
	N        uint64
	NUp      uint64
	NDown    uint64
	SumTauMs float64
}

// TickState is the feature vector a cell is keyed by.
type TickState struct {
	Imbalance float64
	Spread    float64
	AgeDiffMs float64
	LastMove  float64
}

// Model is the 4-D categorical model: per-cell counts plus the Laplace
// smoothing parameter and the bin spec used to key cells.
type Model struct {
	Alpha float64
	Spec  BinSpec
	Cells [NCells]CellStats
}

// NewModel builds an empty model over the default bin spec.
func NewModel(alpha float64) *Model {
	return &Model{Alpha: alpha, Spec: DefaultBinSpec()}
}

// CellIndex keys a state into the grid.
func (m *Model) CellIndex(x TickState) int {
	return m.Spec.CellOf(x.Imbalance, x.Spread, x.AgeDiffMs, x.LastMove)
}

// PUp returns the smoothed up-probability of a cell. An empty cell
// (no up or down observations) falls back to the symmetric prior 0.5.
func (m *Model) PUp(k int) float64 {
	c := m.Cells[k]
	nUp := float64(c.NUp)
	nDown := float64(c.NDown)
	nTot := nUp + nDown
	if nTot <= 0 {
		return 0.5
	}
	return (nUp + m.Alpha) / (nTot + 2*m.Alpha)
}

// PDown returns 1 - PUp.
func (m *Model) PDown(k int) float64 { return 1 - m.PUp(k) }

// DirectionScore returns D(k) = 2*p_up(k) - 1.
func (m *Model) DirectionScore(k int) float64 { return 2*m.PUp(k) - 1 }

// MeanTauMs returns the mean waiting time of a cell, or NaN when the
// cell is empty. The persisted model writes a conservative sentinel for
// empty cells instead; see Save.
func (m *Model) MeanTauMs(k int) float64 {
	c := m.Cells[k]
	if c.N == 0 {
		return math.NaN()
	}
	return c.SumTauMs / float64(c.N)
}

// State-keyed variants.

// PUpState returns PUp at the state's cell.
func (m *Model) PUpState(x TickState) float64 { return m.PUp(m.CellIndex(x)) }

// DirectionScoreState returns DirectionScore at the state's cell.
func (m *Model) DirectionScoreState(x TickState) float64 {
	return m.DirectionScore(m.CellIndex(x))
}

// MeanTauMsState returns MeanTauMs at the state's cell.
func (m *Model) MeanTauMsState(x TickState) float64 {
	return m.MeanTauMs(m.CellIndex(x))
}

// GlobalMeanTauMs returns the event-weighted mean waiting time over the
// whole grid, and the sentinel used for empty cells when persisting.
func (m *Model) GlobalMeanTauMs() (mean, sentinel float64) {
	var sum float64
	var n uint64
	for k := 0; k < NCells; k++ {
		sum += m.Cells[k].SumTauMs
		n += m.Cells[k].N
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	return mean, 2 * mean
}
