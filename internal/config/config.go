// Package config provides configuration loading for meetsync.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MEETSYNC_CALENDAR_CALENDAR_ID, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// API keys are only ever read from the process environment
// (OPENAI_API_KEY / ANTHROPIC_API_KEY), never from the config file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/meetsync/internal/logging"
)

// Config is the immutable configuration value passed into every
// component constructor. Components never read ambient process state.
type Config struct {
	Calendar    CalendarConfig    `koanf:"calendar"`
	EventFilter EventFilterConfig `koanf:"event_filter"`
	AI          AIConfig          `koanf:"ai_extraction"`
	Merge       MergeConfig       `koanf:"merge"`
	Store       StoreConfig       `koanf:"store"`
	Audit       AuditConfig       `koanf:"audit"`
	Logging     logging.Config    `koanf:"logging"`
}

// CalendarConfig controls the calendar source and sync window.
type CalendarConfig struct {
	CalendarID          string `koanf:"calendar_id"`
	SyncWindowPastDays  int    `koanf:"sync_window_past_days"`
	SyncWindowFutureDays int   `koanf:"sync_window_future_days"`
	MaxResults          int    `koanf:"max_results"`
	Timezone            string `koanf:"timezone"`
	CredentialsFile     string `koanf:"credentials_file"`
}

// EventFilterConfig controls which events are eligible for extraction.
type EventFilterConfig struct {
	MarkerPattern          string `koanf:"marker_pattern"`
	AllowBracketVariations bool   `koanf:"allow_bracket_variations"`
}

// AIConfig controls the LLM extraction stage.
type AIConfig struct {
	Provider            string   `koanf:"provider"` // "disabled", "anthropic", "openai"
	Model               string   `koanf:"model"`
	APIKey              Secret   `koanf:"-"`
	BaseURL             string   `koanf:"base_url"`
	ConfidenceThreshold float64  `koanf:"confidence_threshold"`
	MaxRetries          int      `koanf:"max_retries"`
	Timeout             Duration `koanf:"timeout"`
	MaxInFlight         int      `koanf:"max_in_flight"`
}

// MergeConfig holds the tunable penalties for candidate fusion.
type MergeConfig struct {
	ConflictPenalty float64 `koanf:"conflict_penalty"`
	AbsencePenalty  float64 `koanf:"absence_penalty"`
}

// StoreConfig controls the booking record store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// AuditConfig controls the append-only audit log.
type AuditConfig struct {
	Path string `koanf:"path"`
}

// NewDefaultConfig returns configuration defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Calendar: CalendarConfig{
			CalendarID:           "primary",
			SyncWindowPastDays:   30,
			SyncWindowFutureDays: 60,
			MaxResults:           2500,
			Timezone:             "Asia/Tokyo",
		},
		EventFilter: EventFilterConfig{
			MarkerPattern:          `【B】`,
			AllowBracketVariations: false,
		},
		AI: AIConfig{
			Provider:            "openai",
			Model:               "",
			ConfidenceThreshold: 0.8,
			MaxRetries:          3,
			MaxInFlight:         4,
		},
		Merge: MergeConfig{
			ConflictPenalty: 0.2,
			AbsencePenalty:  1.0,
		},
		Store: StoreConfig{
			Path: defaultStatePath("meetsync.db"),
		},
		Audit: AuditConfig{
			Path: defaultStatePath("audit.jsonl"),
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return home + "/.local/state/meetsync/" + name
}

// Validate checks the configuration. Failures are fatal and surfaced
// before anything talks to the calendar.
func (c *Config) Validate() error {
	if c.Calendar.CalendarID == "" {
		return errors.New("calendar.calendar_id is required")
	}
	if c.Calendar.SyncWindowPastDays < 0 || c.Calendar.SyncWindowFutureDays < 0 {
		return errors.New("sync window days must not be negative")
	}
	if c.Calendar.MaxResults <= 0 {
		return errors.New("calendar.max_results must be positive")
	}
	if _, err := loadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("invalid calendar.timezone %q: %w", c.Calendar.Timezone, err)
	}
	if c.EventFilter.MarkerPattern == "" {
		return errors.New("event_filter.marker_pattern is required")
	}
	switch c.AI.Provider {
	case "disabled", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown ai_extraction.provider %q", c.AI.Provider)
	}
	if c.AI.ConfidenceThreshold < 0 || c.AI.ConfidenceThreshold > 1 {
		return fmt.Errorf("ai_extraction.confidence_threshold %v out of range [0,1]", c.AI.ConfidenceThreshold)
	}
	if c.AI.MaxRetries < 0 {
		return errors.New("ai_extraction.max_retries must not be negative")
	}
	if c.AI.MaxInFlight < 1 {
		return errors.New("ai_extraction.max_in_flight must be at least 1")
	}
	if c.Merge.ConflictPenalty < 0 || c.Merge.ConflictPenalty > 1 {
		return fmt.Errorf("merge.conflict_penalty %v out of range [0,1]", c.Merge.ConflictPenalty)
	}
	if c.Merge.AbsencePenalty < 0 || c.Merge.AbsencePenalty > 1 {
		return fmt.Errorf("merge.absence_penalty %v out of range [0,1]", c.Merge.AbsencePenalty)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	return c.Logging.Validate()
}
