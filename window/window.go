// Package window computes the daily editorial acceptance window used to
// decide which source rows belong to a run.
package window

import (
	"fmt"
	"time"
)

// DefaultCutoverHour is the hour of day at which one editorial day ends and
// the next begins.
const DefaultCutoverHour = 15

// Window is a closed time interval. Both Start and End are accepted.
type Window struct {
	Start time.Time
	End   time.Time
}

// For returns the window for now using the default cutover:
// [yesterday 15:00:00, today 14:59:59.999999] in now's location.
func For(now time.Time) Window {
	return ForCutover(now, DefaultCutoverHour)
}

// ForCutover returns the window ending one microsecond before hour:00 on
// now's calendar day and starting at hour:00 the day before.
func ForCutover(now time.Time, hour int) Window {
	loc := now.Location()
	prev := now.AddDate(0, 0, -1)

	start := time.Date(prev.Year(), prev.Month(), prev.Day(), hour, 0, 0, 0, loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc).Add(-time.Microsecond)

	return Window{Start: start, End: end}
}

// InWindow reports whether t falls in the default window for now. The
// window is recomputed on every call; long runs should build one Window
// from the run's start time instead.
func InWindow(t, now time.Time) bool {
	return For(now).Contains(t)
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ContainsTime is Contains for optional times. A nil time is never in the
// window.
func (w Window) ContainsTime(t *time.Time) bool {
	if t == nil {
		return false
	}
	return w.Contains(*t)
}

func (w Window) String() string {
	return fmt.Sprintf("%s ～ %s", w.Start.Format("2006/01/02 15:04"), w.End.Format("2006/01/02 15:04"))
}
