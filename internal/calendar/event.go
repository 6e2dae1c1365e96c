// Package calendar defines the calendar event model, the sync window,
// the eligibility filter, and the Google Calendar source.
package calendar

import (
	"context"
	"time"
)

// Attendee is one meeting participant as reported by the source.
type Attendee struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Event is the source-of-truth record for one meeting occurrence.
// Immutable once fetched within a run; owned by the source.
type Event struct {
	ID             string
	Title          string
	Description    string
	Start          time.Time
	End            time.Time
	Timezone       string
	Attendees      []Attendee
	Location       string
	HTMLLink       string
	SourceCalendar string
	Cancelled      bool
}

// Source yields events for a window. Implementations wrap the external
// calendar API; errors from FetchEvents abort the run.
type Source interface {
	FetchEvents(ctx context.Context, window Window) ([]Event, error)
}
