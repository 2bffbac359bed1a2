// Package quote parses raw exchange Level-1 quote lines and applies the
// pre-aggregation filters: session window, quote condition, venue
// allow-set, and field sanity. Lines that fail a filter are classified
// so the caller can count them without aborting the stream.
package quote

import (
	"math"
	"strconv"
	"strings"

	"github.com/quantlab/nbboflow/internal/timeutil"
)

// Record is one accepted raw quote.
type Record struct {
	TS      uint64
	Bid     float32
	Ask     float32
	BidSize int32
	AskSize int32
	Venue   byte
}

// Outcome classifies what happened to a parsed line.
type Outcome int

const (
	// Accepted: the record is valid and inside all filters.
	Accepted Outcome = iota
	// Skipped: the line is structurally short, has the wrong quote
	// condition, a disallowed venue, or is outside the session window.
	// Skips are not counted as glitches.
	Skipped
	// ParseFail: a numeric field failed to parse.
	ParseFail
	// NonPosField: a price or size parsed but was non-finite or not
	// strictly positive.
	NonPosField
)

// Session is a half-open intraday window [start, end).
type Session struct {
	StartHour, StartMin int
	EndHour, EndMin     int
}

// DefaultSession is regular trading hours, [09:30, 16:00).
func DefaultSession() Session {
	return Session{StartHour: 9, StartMin: 30, EndHour: 16, EndMin: 0}
}

// Contains reports whether the given wall time falls inside the window.
func (s Session) Contains(h, m int) bool {
	t := h*60 + m
	return t >= s.StartHour*60+s.StartMin && t < s.EndHour*60+s.EndMin
}

// Filter holds the pre-aggregation acceptance rules.
type Filter struct {
	Venues    map[byte]bool
	Session   Session
	Condition byte
}

// DefaultVenues is the default venue allow-set.
func DefaultVenues() map[byte]bool {
	set := make(map[byte]bool, 7)
	for _, v := range []byte{'P', 'T', 'Q', 'Z', 'Y', 'J', 'K'} {
		set[v] = true
	}
	return set
}

// NewFilter builds a filter with the default condition tag 'R'.
func NewFilter(venues map[byte]bool, session Session) *Filter {
	return &Filter{Venues: venues, Session: session, Condition: 'R'}
}

// maxFields caps the comma split; trailing fields beyond the quote
// condition are ignored.
const maxFields = 14

// ParseLine parses one CSV line. The returned hour is valid for
// ParseFail and NonPosField outcomes (used to bucket glitch counts) and
// for Accepted.
func (f *Filter) ParseLine(line string) (Record, Outcome, int) {
	fields := splitFields(line)
	if len(fields) < 8 {
		return Record{}, Skipped, 0
	}

	date, tod, venue := fields[0], fields[1], fields[2]
	sBid, sBidSz, sAsk, sAskSz, qc := fields[3], fields[4], fields[5], fields[6], fields[7]

	if len(qc) != 1 || qc[0] != f.Condition {
		return Record{}, Skipped, 0
	}
	if len(venue) == 0 || !f.Venues[venue[0]] {
		return Record{}, Skipped, 0
	}

	h, m, s, ok := parseClock(tod)
	if !ok {
		return Record{}, Skipped, 0
	}
	if !f.Session.Contains(h, m) {
		return Record{}, Skipped, 0
	}

	bid, okBid := parsePrice(sBid)
	ask, okAsk := parsePrice(sAsk)
	bidSz, okBS := parseSize(sBidSz)
	askSz, okAS := parseSize(sAskSz)
	if !okBid || !okAsk || !okBS || !okAS {
		return Record{}, ParseFail, h
	}
	if bid <= 0 || ask <= 0 || bidSz <= 0 || askSz <= 0 ||
		math.IsInf(float64(bid), 0) || math.IsInf(float64(ask), 0) {
		return Record{}, NonPosField, h
	}

	msec := 0
	if len(tod) >= 12 {
		if v, err := strconv.Atoi(tod[9:12]); err == nil {
			msec = v
		}
	}

	day, err := strconv.ParseUint(date, 10, 64)
	if err != nil {
		return Record{}, Skipped, 0
	}

	ts := timeutil.Compose(uint32(day), h, m, s, msec)
	return Record{
		TS:      ts,
		Bid:     bid,
		Ask:     ask,
		BidSize: bidSz,
		AskSize: askSz,
		Venue:   venue[0],
	}, Accepted, h
}

// splitFields splits on commas up to maxFields pieces without
// allocating beyond the slice header.
func splitFields(line string) []string {
	return strings.SplitN(line, ",", maxFields)
}

// parseClock reads "HH:MM:SS" from the head of a time-of-day string.
func parseClock(tod string) (h, m, s int, ok bool) {
	if len(tod) < 8 || tod[2] != ':' || tod[5] != ':' {
		return 0, 0, 0, false
	}
	var err error
	if h, err = strconv.Atoi(tod[0:2]); err != nil {
		return 0, 0, 0, false
	}
	if m, err = strconv.Atoi(tod[3:5]); err != nil {
		return 0, 0, 0, false
	}
	if s, err = strconv.Atoi(tod[6:8]); err != nil {
		return 0, 0, 0, false
	}
	return h, m, s, true
}

func parsePrice(s string) (float32, bool) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return float32(v), true
}

func parseSize(s string) (int32, bool) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}
