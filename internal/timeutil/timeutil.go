// Package timeutil works with the pipeline's integer-encoded timestamps.
//
// A timestamp is a uint64 concatenation of decimal fields:
//
//	YYYYMMDD*1e9 + HH*1e7 + MM*1e5 + SS*1e3 + mmm
//
// Two timestamps fall on the same trading day iff ts/1e9 matches. All
// arithmetic here is intraday: there is no calendar rollover across
// midnight, which is an invariant on callers.
package timeutil

import "fmt"

// Day extracts the YYYYMMDD day key.
func Day(ts uint64) uint32 {
	return uint32(ts / 1_000_000_000)
}

// Hour extracts the hour (0-23).
func Hour(ts uint64) int {
	return int((ts / 10_000_000) % 100)
}

// Minute extracts the minute (0-59).
func Minute(ts uint64) int {
	return int((ts / 100_000) % 100)
}

// Second extracts the second (0-59).
func Second(ts uint64) int {
	return int((ts / 1_000) % 100)
}

// Milli extracts the millisecond (0-999).
func Milli(ts uint64) int {
	return int(ts % 1_000)
}

// Year extracts the four-digit year.
func Year(ts uint64) int {
	return int(ts / 10_000_000_000_000)
}

// SameDay reports whether two timestamps share a calendar day.
func SameDay(a, b uint64) bool {
	return Day(a) == Day(b)
}

// MsSinceMidnight returns milliseconds since midnight from the
// HH:MM:SS.mmm components.
func MsSinceMidnight(ts uint64) int {
	return ((Hour(ts)*60+Minute(ts))*60+Second(ts))*1000 + Milli(ts)
}

// Compose builds a timestamp from a day key and intraday components.
func Compose(day uint32, h, m, s, ms int) uint64 {
	return uint64(day)*1_000_000_000 +
		uint64(h)*10_000_000 +
		uint64(m)*100_000 +
		uint64(s)*1_000 +
		uint64(ms)
}

// IncMs advances a timestamp by one millisecond. The date digits are
// carried through unchanged; if the hour reaches 24 the result is up to
// the caller (no day/month/year roll).
func IncMs(ts uint64) uint64 {
	h := Hour(ts)
	m := Minute(ts)
	s := Second(ts)
	ms := Milli(ts)

	ms++
	if ms == 1000 {
		ms = 0
		s++
		if s == 60 {
			s = 0
			m++
			if m == 60 {
				m = 0
				h++
			}
		}
	}
	return Compose(Day(ts), h, m, s, ms)
}

// DayString formats a YYYYMMDD day key as "YYYY-MM-DD".
func DayString(d uint32) string {
	return fmt.Sprintf("%04d-%02d-%02d", d/10000, (d/100)%100, d%100)
}
