package syncer

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
)

// SyncRun is one execution's metadata. Counts accumulate while the run
// is live; the struct is immutable once finalized.
type SyncRun struct {
	ID         string
	Window     calendar.Window
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time

	Created   int
	Updated   int
	Retired   int
	Cancelled int
	Skipped   int
	Failed    int

	Completed  bool
	FailReason string
}

// newRun starts run metadata with a fresh unique identifier.
func newRun(window calendar.Window, dryRun bool) *SyncRun {
	return &SyncRun{
		ID:        uuid.NewString(),
		Window:    window,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// finish finalizes the run. A non-empty failReason marks it failed.
func (r *SyncRun) finish(failReason string) {
	r.FinishedAt = time.Now()
	r.Completed = failReason == ""
	r.FailReason = failReason
}

// Mutations is the total number of store writes the run performed (or
// would have performed under dry-run).
func (r *SyncRun) Mutations() int {
	return r.Created + r.Updated + r.Retired + r.Cancelled
}
