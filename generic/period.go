package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive date range used for pay summaries
// =============================================================================

// Period is the closed range [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: %s before %s", ErrInvalidPeriod, end, start)
	}
	return Period{Start: start, End: end}, nil
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t TimePoint) Period {
	return Period{Start: StartOfMonth(t.Year(), t.Month()), End: EndOfMonth(t.Year(), t.Month())}
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
