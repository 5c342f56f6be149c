// Package period computes the calendar windows usage is metered over.
//
// All windows are calendar months in UTC. A window is closed on both ends:
// End is the last representable millisecond of the month, so a record whose
// PeriodEnd is before "now" belongs to an elapsed month.
package period

import "time"

// Window is a metering period.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Monthly returns the calendar month containing now.
func Monthly(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Millisecond),
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Elapsed reports whether the window ended before now.
func (w Window) Elapsed(now time.Time) bool {
	return w.End.Before(now)
}

// Next returns the window that follows w.
func (w Window) Next() Window {
	return Monthly(w.End.Add(time.Millisecond))
}

// ResetsAt is the instant a counter for this window stops applying.
func (w Window) ResetsAt() time.Time {
	return w.End
}

// Lifetime is how long a subscription to a zero-priced plan runs.
const Lifetime = 100

// SubscriptionEnd returns when a subscription started at start ends.
// Free plans run for Lifetime years, paid plans for one calendar month.
func SubscriptionEnd(start time.Time, free bool) time.Time {
	if free {
		return start.AddDate(Lifetime, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
