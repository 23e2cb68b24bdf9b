package stats

import (
	"math"
	"time"
)

// Entry is one recorded fetch.
type Entry struct {
	URI     string
	Elapsed time.Duration
	Bytes   int
}

// Ledger accumulates response times in the order resources were fetched.
// It is owned by a single run and never shared between goroutines.
type Ledger struct {
	entries []Entry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a fetch.
func (l *Ledger) Record(uri string, elapsed time.Duration, bytes int) {
	l.entries = append(l.entries, Entry{URI: uri, Elapsed: elapsed, Bytes: bytes})
}

// Len reports the number of recorded fetches.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the recorded fetches.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summary aggregates a ledger. Times are in seconds.
type Summary struct {
	Count   int
	Total   float64
	Average float64
	Min     Entry
	Max     Entry
	Bytes   int64
}

// Summary computes the aggregates. It reports false when nothing was recorded.
// Ties for min and max keep the first entry seen.
func (l *Ledger) Summary() (Summary, bool) {
	if len(l.entries) == 0 {
		return Summary{}, false
	}
	s := Summary{Count: len(l.entries), Min: l.entries[0], Max: l.entries[0]}
	for _, e := range l.entries {
		s.Total += e.Elapsed.Seconds()
		s.Bytes += int64(e.Bytes)
		if e.Elapsed < s.Min.Elapsed {
			s.Min = e
		}
		if e.Elapsed > s.Max.Elapsed {
			s.Max = e
		}
	}
	s.Average = s.Total / float64(s.Count)
	return s, true
}

// Round3 rounds seconds to three decimals for reporting.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
