// Package extraction provides company and person name extraction from
// calendar events. It supports rule-based (pattern/dictionary) and
// LLM-based extraction, fused by a confidence-weighted merger.
package extraction

import (
	"context"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
)

// Provenance identifies which extractor produced a candidate.
type Provenance string

const (
	ProvenanceRules Provenance = "rules"
	ProvenanceAI    Provenance = "ai"
)

// Candidate is one extractor's unverified guesses for one event.
// An empty Company or Persons slice means the extractor abstained on
// that field; the matching confidence is then 0.
type Candidate struct {
	Company           string
	CompanyConfidence float64
	Persons           []string
	PersonConfidence  float64
	Provenance        Provenance
}

// Merged is the fusion of the rule and AI candidates for one event.
// Confidence is the minimum across the company and person field
// confidences: the weakest field gates acceptance.
type Merged struct {
	Company    string
	Persons    []string
	Confidence float64
	Provenance []Provenance
}

// Extractor extracts a candidate from one eligible event.
//
// The rule extractor never returns an error: it degrades to a zero
// candidate on malformed input. The AI extractor returns an error once
// retries are exhausted or the response fails validation; the caller
// degrades to the rule-only result and continues.
type Extractor interface {
	Extract(ctx context.Context, event calendar.Event) (Candidate, error)

	// Available reports whether the extractor is configured and ready.
	Available() bool
}
