package market

import "sort"

// PriceEntry is one waypoint's price for a commodity on one side of the chart.
type PriceEntry struct {
	Waypoint string `json:"waypoint"`
	Price    int    `json:"price"`
}

// Better reports whether price a beats price b for a side.
type Better func(a, b int) bool

// LowerIsBetter ranks purchase prices.
func LowerIsBetter(a, b int) bool { return a < b }

// HigherIsBetter ranks sell prices.
func HigherIsBetter(a, b int) bool { return a > b }

// PriceEntrySet keeps at most k entries, one per waypoint.
type PriceEntrySet struct {
	k       int
	better  Better
	entries []PriceEntry
}

// NewPriceEntrySet returns an empty set bounded to k entries.
func NewPriceEntrySet(k int, better Better) *PriceEntrySet {
	if k < 1 {
		k = 1
	}
	return &PriceEntrySet{k: k, better: better}
}

// Insert adds e, or updates the waypoint's existing entry in place. When the
// set grows past k, the single worst entry is evicted. That may be e itself.
func (s *PriceEntrySet) Insert(e PriceEntry) {
	for i := range s.entries {
		if s.entries[i].Waypoint == e.Waypoint {
			s.entries[i].Price = e.Price
			return
		}
	}

	s.entries = append(s.entries, e)
	if len(s.entries) > s.k {
		s.evictWorst()
	}
}

// evictWorst removes exactly one entry. On equal prices the newest entry goes,
// so a tie never displaces an incumbent.
func (s *PriceEntrySet) evictWorst() {
	worst := 0
	for i := 1; i < len(s.entries); i++ {
		if !s.better(s.entries[i].Price, s.entries[worst].Price) {
			worst = i
		}
	}
	s.entries = append(s.entries[:worst], s.entries[worst+1:]...)
}

// Best returns the best entry. ok is false for an empty set.
func (s *PriceEntrySet) Best() (PriceEntry, bool) {
	if len(s.entries) == 0 {
		return PriceEntry{}, false
	}
	best := s.entries[0]
	for _, e := range s.entries[1:] {
		if s.better(e.Price, best.Price) {
			best = e
		}
	}
	return best, true
}

// Entries returns a copy of the set ordered best first.
func (s *PriceEntrySet) Entries() []PriceEntry {
	out := make([]PriceEntry, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool { return s.better(out[i].Price, out[j].Price) })
	return out
}

// Len returns the number of entries.
func (s *PriceEntrySet) Len() int {
	return len(s.entries)
}
