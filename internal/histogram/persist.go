package histogram

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Model file format. The bin spec is embedded so consumers can validate
// what they load; a present spec overrides the default, wrong sizes are
// fatal. Cells carry both the raw counts and the derived quantities;
// only the counts are read back.

type imbBinJSON struct {
	Idx      int     `json:"idx"`
	Lo       float64 `json:"lo"`
	Hi       float64 `json:"hi"`
	Interval string  `json:"interval"`
}

type spreadBinJSON struct {
	Idx      int  `json:"idx"`
	TicksMin int  `json:"ticks_min"`
	TicksMax *int `json:"ticks_max"`
}

type ageBinJSON struct {
	Idx int      `json:"idx"`
	Lo  *float64 `json:"lo"`
	Hi  *float64 `json:"hi"`
}

type lastMoveBinJSON struct {
	Idx int `json:"idx"`
	L   int `json:"L"`
}

type cellJSON struct {
	Idx       int     `json:"idx"`
	BImb      int     `json:"b_imb"`
	BSpr      int     `json:"b_spr"`
	BAge      int     `json:"b_age"`
	BLast     int     `json:"b_last"`
	N         uint64  `json:"n"`
	NUp       uint64  `json:"n_up"`
	NDown     uint64  `json:"n_down"`
	SumTauMs  float64 `json:"sum_tau_ms"`
	PUp       float64 `json:"p_up"`
	PDown     float64 `json:"p_down"`
	D         float64 `json:"D"`
	MeanTauMs float64 `json:"mean_tau_ms"`
}

type modelFile struct {
	Symbol        string            `json:"symbol"`
	YearLo        int               `json:"year_lo"`
	YearHi        int               `json:"year_hi"`
	Alpha         *float64          `json:"alpha,omitempty"`
	ImbalanceBins []imbBinJSON      `json:"imbalance_bins,omitempty"`
	SpreadBins    []spreadBinJSON   `json:"spread_bins,omitempty"`
	AgeDiffMsBins []ageBinJSON      `json:"age_diff_ms_bins,omitempty"`
	LastMoveBins  []lastMoveBinJSON `json:"last_move_bins,omitempty"`
	Cells         []cellJSON        `json:"cells"`
}

// Save writes the model with its bin spec and derived per-cell
// quantities. Empty cells persist the conservative waiting-time
// sentinel (twice the global mean).
func (m *Model) Save(path, symbol string, yearLo, yearHi int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	_, sentinel := m.GlobalMeanTauMs()

	alpha := m.Alpha
	mf := modelFile{
		Symbol:        symbol,
		YearLo:        yearLo,
		YearHi:        yearHi,
		Alpha:         &alpha,
		ImbalanceBins: imbBinsToJSON(m.Spec),
		SpreadBins:    spreadBinsToJSON(m.Spec),
		AgeDiffMsBins: ageBinsToJSON(m.Spec),
		LastMoveBins: []lastMoveBinJSON{
			{Idx: 0, L: -1},
			{Idx: 1, L: 0},
			{Idx: 2, L: 1},
		},
		Cells: make([]cellJSON, NCells),
	}

	for k := 0; k < NCells; k++ {
		bImb, bSpr, bAge, bLast := DecodeCell(k)
		c := m.Cells[k]
		meanTau := m.MeanTauMs(k)
		if math.IsNaN(meanTau) {
			meanTau = sentinel
		}
		mf.Cells[k] = cellJSON{
			Idx:       k,
			BImb:      bImb,
			BSpr:      bSpr,
			BAge:      bAge,
			BLast:     bLast,
			N:         c.N,
			NUp:       c.NUp,
			NDown:     c.NDown,
			SumTauMs:  c.SumTauMs,
			PUp:       m.PUp(k),
			PDown:     m.PDown(k),
			D:         m.DirectionScore(k),
			MeanTauMs: meanTau,
		}
	}

	data, err := json.MarshalIndent(&mf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// Load reads a model file. Alpha defaults to 1.0 when absent; a bin
// spec present in the file overrides the default; a wrong cells or bins
// size is a fatal schema error.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if len(mf.Cells) != NCells {
		return nil, fmt.Errorf("model has %d cells, want %d", len(mf.Cells), NCells)
	}

	alpha := 1.0
	if mf.Alpha != nil {
		alpha = *mf.Alpha
	}
	m := NewModel(alpha)
	if err := specFromJSON(&m.Spec, &mf); err != nil {
		return nil, err
	}
	for k := 0; k < NCells; k++ {
		c := mf.Cells[k]
		m.Cells[k] = CellStats{N: c.N, NUp: c.NUp, NDown: c.NDown, SumTauMs: c.SumTauMs}
	}
	return m, nil
}

func imbBinsToJSON(spec BinSpec) []imbBinJSON {
	out := make([]imbBinJSON, NImb)
	for i, b := range spec.Imb {
		out[i] = imbBinJSON{Idx: i, Lo: b.Lo, Hi: b.Hi, Interval: b.Interval}
	}
	return out
}

func spreadBinsToJSON(spec BinSpec) []spreadBinJSON {
	out := make([]spreadBinJSON, NSpr)
	for i, b := range spec.Spr {
		jb := spreadBinJSON{Idx: i, TicksMin: b.TicksMin}
		if !b.MaxIsInf {
			max := b.TicksMax
			jb.TicksMax = &max
		}
		out[i] = jb
	}
	return out
}

func ageBinsToJSON(spec BinSpec) []ageBinJSON {
	out := make([]ageBinJSON, NAge)
	for i, b := range spec.Age {
		jb := ageBinJSON{Idx: i}
		if !b.LoIsInf {
			lo := b.Lo
			jb.Lo = &lo
		}
		if !b.HiIsInf {
			hi := b.Hi
			jb.Hi = &hi
		}
		out[i] = jb
	}
	return out
}

// specFromJSON overlays the imbalance_bins, spread_bins and
// age_diff_ms_bins arrays present in the file onto the default spec.
// last_move_bins is not read back, and age-bin endpoint inclusivity keeps
// its default; both come from the default spec.
func specFromJSON(spec *BinSpec, mf *modelFile) error {
	if mf.ImbalanceBins != nil {
		if len(mf.ImbalanceBins) != NImb {
			return fmt.Errorf("imbalance_bins has %d entries, want %d", len(mf.ImbalanceBins), NImb)
		}
		for _, jb := range mf.ImbalanceBins {
			if jb.Idx < 0 || jb.Idx >= NImb {
				return fmt.Errorf("imbalance_bins idx %d out of range", jb.Idx)
			}
			b := &spec.Imb[jb.Idx]
			b.Lo = jb.Lo
			b.Hi = jb.Hi
			b.Interval = jb.Interval
			if jb.Interval != "" {
				b.LoInc = strings.HasPrefix(jb.Interval, "[")
				b.HiInc = strings.HasSuffix(jb.Interval, "]")
			} else {
				b.LoInc = true
				b.HiInc = true
			}
		}
	}
	if mf.SpreadBins != nil {
		if len(mf.SpreadBins) != NSpr {
			return fmt.Errorf("spread_bins has %d entries, want %d", len(mf.SpreadBins), NSpr)
		}
		for _, jb := range mf.SpreadBins {
			if jb.Idx < 0 || jb.Idx >= NSpr {
				return fmt.Errorf("spread_bins idx %d out of range", jb.Idx)
			}
			b := &spec.Spr[jb.Idx]
			b.TicksMin = jb.TicksMin
			if jb.TicksMax == nil {
				b.MaxIsInf = true
				b.TicksMax = 0
			} else {
				b.MaxIsInf = false
				b.TicksMax = *jb.TicksMax
			}
		}
	}
	if mf.AgeDiffMsBins != nil {
		if len(mf.AgeDiffMsBins) != NAge {
			return fmt.Errorf("age_diff_ms_bins has %d entries, want %d", len(mf.AgeDiffMsBins), NAge)
		}
		for _, jb := range mf.AgeDiffMsBins {
			if jb.Idx < 0 || jb.Idx >= NAge {
				return fmt.Errorf("age_diff_ms_bins idx %d out of range", jb.Idx)
			}
			b := &spec.Age[jb.Idx]
			if jb.Lo == nil {
				b.LoIsInf = true
				b.Lo = 0
			} else {
				b.LoIsInf = false
				b.Lo = *jb.Lo
			}
			if jb.Hi == nil {
				b.HiIsInf = true
				b.Hi = 0
			} else {
				b.HiIsInf = false
				b.Hi = *jb.Hi
			}
		}
	}
	return nil
}
