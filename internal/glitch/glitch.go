// Package glitch counts recoverable data problems seen while parsing and
// aggregating raw quotes. Counts are kept per category and per hour of day,
// merged across workers under a single mutex at end of shard, and written
// out as a human-readable report.
package glitch

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// Categories of recoverable data problems. These never abort a stage;
// rows are dropped and counted.
const (
	ParseFail     = "parse_fail"
	NonPosField   = "nonpos_field"
	NonPosPrice   = "nonpos_price"
	LockedCrossed = "locked_crossed"
)

// Counts indexes glitch totals by category and by (category, hour-of-day).
type Counts struct {
	Total  map[string]uint64
	ByHour map[string]map[int]uint64
}

// NewCounts returns an empty counter set.
func NewCounts() *Counts {
	return &Counts{
		Total:  make(map[string]uint64),
		ByHour: make(map[string]map[int]uint64),
	}
}

// Bump increments a category for the given hour.
func (c *Counts) Bump(category string, hour int) {
	c.Total[category]++
	hm := c.ByHour[category]
	if hm == nil {
		hm = make(map[int]uint64)
		c.ByHour[category] = hm
	}
	hm[hour]++
}

// Merge folds another counter set into this one. The caller serializes
// concurrent merges.
func (c *Counts) Merge(o *Counts) {
	for k, v := range o.Total {
		c.Total[k] += v
	}
	for k, hm := range o.ByHour {
		dst := c.ByHour[k]
		if dst == nil {
			dst = make(map[int]uint64)
			c.ByHour[k] = dst
		}
		for h, n := range hm {
			dst[h] += n
		}
	}
}

// WriteReport renders totals first, then per-hour counts for the regular
// session hours 09-15 inclusive.
func (c *Counts) WriteReport(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "NBBO pipeline glitch report\n\nTotals:\n"); err != nil {
		return err
	}
	cats := make([]string, 0, len(c.Total))
	for k := range c.Total {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		if _, err := fmt.Fprintf(w, "%-22s : %d\n", k, c.Total[k]); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\nBy hour (RTH):\n"); err != nil {
		return err
	}
	hourCats := make([]string, 0, len(c.ByHour))
	for k := range c.ByHour {
		hourCats = append(hourCats, k)
	}
	sort.Strings(hourCats)
	for _, k := range hourCats {
		if _, err := fmt.Fprintf(w, "\n[%s]\n", k); err != nil {
			return err
		}
		for h := 9; h <= 15; h++ {
			if _, err := fmt.Fprintf(w, "  %d:00 - %d\n", h, c.ByHour[k][h]); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteReportFile writes the report to the given path.
func (c *Counts) WriteReportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create glitch report: %w", err)
	}
	defer f.Close()
	if err := c.WriteReport(f); err != nil {
		return fmt.Errorf("write glitch report: %w", err)
	}
	return nil
}
