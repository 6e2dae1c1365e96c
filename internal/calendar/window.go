package calendar

import (
	"fmt"
	"time"
)

// Window is the date range a sync run considers authoritative for
// retirement decisions.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFromDays builds a window spanning pastDays before now to
// futureDays after now, in the given location.
func WindowFromDays(now time.Time, pastDays, futureDays int, loc *time.Location) Window {
	now = now.In(loc)
	return Window{
		Start: now.AddDate(0, 0, -pastDays),
		End:   now.AddDate(0, 0, futureDays),
	}
}

// WindowFromRange builds a window from explicit YYYY-MM-DD dates. The
// end date is inclusive: the window extends to the end of that day.
func WindowFromRange(startDate, endDate string, loc *time.Location) (Window, error) {
	start, err := time.ParseInLocation("2006-01-02", startDate, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	end = end.AddDate(0, 0, 1)
	if !start.Before(end) {
		return Window{}, fmt.Errorf("start date %s is after end date %s", startDate, endDate)
	}
	return Window{Start: start, End: end}, nil
}

// Covers reports whether t lies inside the window. Used as the
// retirement guard: only records whose original start time the window
// fully covers may be retired by this run.
func (w Window) Covers(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}
