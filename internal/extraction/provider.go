package extraction

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
)

// NewAIExtractor creates an AI extractor based on configuration. The
// "disabled" provider yields a no-op that always abstains, so the
// pipeline runs on the rule extractor alone.
func NewAIExtractor(cfg config.AIConfig) (Extractor, error) {
	switch cfg.Provider {
	case "disabled":
		return &NoOpExtractor{}, nil
	case "anthropic":
		return newAnthropicExtractor(cfg)
	case "openai":
		return newOpenAIExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// NoOpExtractor abstains on every event.
type NoOpExtractor struct{}

// Extract returns a zero candidate.
func (n *NoOpExtractor) Extract(_ context.Context, _ calendar.Event) (Candidate, error) {
	return Candidate{Provenance: ProvenanceAI}, nil
}

// Available returns false for NoOpExtractor.
func (n *NoOpExtractor) Available() bool {
	return false
}

var _ Extractor = (*NoOpExtractor)(nil)
