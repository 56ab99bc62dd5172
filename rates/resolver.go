package rates

import (
	"sort"

	"github.com/warp/payroll-ledger/generic"
)

// =============================================================================
// HISTORY - Ordered pay-term versions
// =============================================================================

// History is sorted ascending by EffectiveDate with unique dates.
type History []RateEntry

// Resolve returns the last entry whose EffectiveDate is on or before date.
// A date before the first entry resolves to the first entry: the rate in
// force before record-keeping began. history must be non-empty; callers
// with no history use Worker.RateAt, which falls back to legacy rates.
func Resolve(history History, date generic.TimePoint) RateEntry {
	i := sort.Search(len(history), func(i int) bool {
		return history[i].EffectiveDate.After(date)
	})
	if i == 0 {
		return history[0]
	}
	return history[i-1]
}

// Upsert returns a new history containing entry. An entry with the same
// EffectiveDate is overwritten in place; otherwise entry is inserted at its
// sorted position. The receiver is not modified.
func (h History) Upsert(entry RateEntry) History {
	i := sort.Search(len(h), func(i int) bool {
		return !h[i].EffectiveDate.Before(entry.EffectiveDate)
	})

	out := make(History, 0, len(h)+1)
	out = append(out, h[:i]...)
	if i < len(h) && h[i].EffectiveDate.Equal(entry.EffectiveDate) {
		out = append(out, entry)
		return append(out, h[i+1:]...)
	}
	out = append(out, entry)
	return append(out, h[i:]...)
}

// Sorted reports whether the history satisfies its ordering invariant.
func (h History) Sorted() bool {
	for i := 1; i < len(h); i++ {
		if !h[i-1].EffectiveDate.Before(h[i].EffectiveDate) {
			return false
		}
	}
	return true
}

// Normalize builds a valid history from entries in any order. Later
// entries win on duplicate dates.
func Normalize(entries []RateEntry) History {
	var h History
	for _, e := range entries {
		h = h.Upsert(e)
	}
	return h
}
