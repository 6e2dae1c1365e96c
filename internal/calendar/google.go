package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/logging"
)

// ErrAuth marks authorization failures against the calendar API.
// These are fatal for the run and surfaced to the caller.
var ErrAuth = errors.New("calendar authorization failed")

// GoogleSource fetches events from one Google Calendar.
type GoogleSource struct {
	svc        *gcal.Service
	calendarID string
	maxResults int
	logger     *logging.Logger
}

// NewGoogleSource creates a calendar source backed by the Google
// Calendar API. Credentials come from the configured service-account
// file, from GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET /
// GOOGLE_REFRESH_TOKEN when no file is set, or from application
// default credentials as a last resort.
func NewGoogleSource(ctx context.Context, cfg config.CalendarConfig, logger *logging.Logger) (*GoogleSource, error) {
	opts := []option.ClientOption{
		option.WithScopes(gcal.CalendarReadonlyScope),
	}
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		if ts := refreshTokenSource(ctx); ts != nil {
			opts = append(opts, option.WithTokenSource(ts))
		}
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleSource{
		svc:        svc,
		calendarID: cfg.CalendarID,
		maxResults: cfg.MaxResults,
		logger:     logger.Named("calendar"),
	}, nil
}

// FetchEvents returns all events in the window, following pagination.
// Cancelled events are included with the Cancelled flag set so the
// sync engine can transition their records.
func (g *GoogleSource) FetchEvents(ctx context.Context, window Window) ([]Event, error) {
	var events []Event
	pageToken := ""

	for {
		call := g.svc.Events.List(g.calendarID).
			Context(ctx).
			TimeMin(window.Start.Format(time.RFC3339)).
			TimeMax(window.End.Format(time.RFC3339)).
			SingleEvents(true).
			ShowDeleted(true).
			OrderBy("startTime").
			MaxResults(int64(g.maxResults))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, wrapAPIError(err)
		}

		for _, item := range resp.Items {
			ev, ok := g.convert(item, resp.TimeZone)
			if !ok {
				continue
			}
			events = append(events, ev)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	g.logger.Debug("fetched events",
		zap.String("calendar_id", g.calendarID),
		zap.String("window", window.String()),
		zap.Int("count", len(events)))

	return events, nil
}

// convert maps an API event onto the internal model. All-day events
// (date without time) and events missing both timestamps are skipped;
// the pipeline only handles timed meetings.
func (g *GoogleSource) convert(item *gcal.Event, calendarTZ string) (Event, bool) {
	start, okStart := eventTime(item.Start)
	end, okEnd := eventTime(item.End)
	if item.Status == "cancelled" {
		// Cancelled events arrive stripped of most fields; keep the ID
		// so the engine can retire the record.
		return Event{
			ID:             item.Id,
			Title:          item.Summary,
			SourceCalendar: g.calendarID,
			Cancelled:      true,
			Start:          start,
			End:            end,
		}, true
	}
	if !okStart || !okEnd {
		return Event{}, false
	}

	tz := item.Start.TimeZone
	if tz == "" {
		tz = calendarTZ
	}

	attendees := make([]Attendee, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		attendees = append(attendees, Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}

	return Event{
		ID:             item.Id,
		Title:          item.Summary,
		Description:    item.Description,
		Start:          start,
		End:            end,
		Timezone:       tz,
		Attendees:      attendees,
		Location:       item.Location,
		HTMLLink:       item.HtmlLink,
		SourceCalendar: g.calendarID,
	}, true
}

// refreshTokenSource builds a token source from an OAuth client and
// refresh token in the environment. Returns nil when any piece is
// missing.
func refreshTokenSource(ctx context.Context) oauth2.TokenSource {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	refreshToken := os.Getenv("GOOGLE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       []string{gcal.CalendarReadonlyScope},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

func eventTime(edt *gcal.EventDateTime) (time.Time, bool) {
	if edt == nil || edt.DateTime == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func wrapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
	}
	return fmt.Errorf("calendar fetch failed: %w", err)
}

var _ Source = (*GoogleSource)(nil)
