package store

import "fmt"

// Status is the lifecycle state of a booking record. No state is
// terminal: a source that re-surfaces an event identifier inside a
// later window brings its record back to active.
type Status string

const (
	// StatusActive marks a record backed by a live source event.
	StatusActive Status = "active"
	// StatusRemoved marks a record whose event disappeared from the
	// source inside a window covering its start time.
	StatusRemoved Status = "removed"
	// StatusCancelled marks a record whose event the source reports as
	// cancelled.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRemoved, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to the target status is
// allowed. A removed record cannot go straight to cancelled: the event
// has to come back first.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if s == StatusRemoved && to == StatusCancelled {
		return false
	}
	return true
}

// Transition returns the target status, or an error when the move is
// not allowed.
func (s Status) Transition(to Status) (Status, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("invalid status transition %s -> %s", s, to)
	}
	return to, nil
}

func (s Status) String() string {
	return string(s)
}
