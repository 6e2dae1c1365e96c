// Package store persists booking records extracted from calendar
// events. Every mutation is an upsert keyed by event identifier, so a
// retried partial sync converges to the same final state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
)

// ErrNotFound is returned by Get when no record exists for the event.
var ErrNotFound = errors.New("booking record not found")

// WriteError marks a failed store mutation. The sync engine aborts the
// run on a write error; prior commits stand.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsWriteError reports whether err is a store write failure.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// Stats summarizes the store for status reporting.
type Stats struct {
	Total         int            `json:"total"`
	ByStatus      map[Status]int `json:"by_status"`
	LastRunID     string         `json:"last_run_id,omitempty"`
	LastUpdatedAt string         `json:"last_updated_at,omitempty"`
}

// TabularStore is the persistence contract the sync engine writes
// against.
type TabularStore interface {
	// Get returns the record for eventID, or ErrNotFound.
	Get(ctx context.Context, eventID string) (*BookingRecord, error)

	// Upsert creates or replaces the record keyed by its event ID.
	Upsert(ctx context.Context, rec *BookingRecord) error

	// ScanActiveOutsideWindow returns active records whose start time
	// the window covers. The caller retires the ones missing from the
	// source fetch; the source no longer carries them.
	ScanActiveOutsideWindow(ctx context.Context, window calendar.Window) ([]BookingRecord, error)

	// CompanyNames returns the distinct non-empty company names of
	// active records, for seeding the extraction ledger.
	CompanyNames(ctx context.Context) ([]string, error)

	// Cleanup physically deletes removed and cancelled records last
	// updated before the cutoff. Never invoked as part of a sync.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Export returns every record ordered by start time.
	Export(ctx context.Context) ([]BookingRecord, error)

	// Stats summarizes record counts and the most recent run.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
