package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "MEETSYNC_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Environment variables use the MEETSYNC_ prefix, underscore separator,
// split on the first underscore after the section name:
//
//	MEETSYNC_CALENDAR_CALENDAR_ID       -> calendar.calendar_id
//	MEETSYNC_AI_EXTRACTION_MAX_RETRIES  -> ai_extraction.max_retries
//	MEETSYNC_LOGGING_LEVEL              -> logging.level
//
// If configPath is empty, only defaults and environment variables apply.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// knownSections maps the leading env var tokens to config sections.
// Section names themselves contain underscores, so the generic
// split-on-first-underscore transform is not enough.
var knownSections = []string{
	"event_filter",
	"ai_extraction",
	"calendar",
	"merge",
	"store",
	"audit",
	"logging",
}

func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range knownSections {
		if rest, ok := strings.CutPrefix(lower, section+"_"); ok {
			return section + "." + rest
		}
	}
	return lower
}

// loadSecrets pulls API keys from the process environment. Keys never
// live in config files.
func loadSecrets(cfg *Config) {
	switch cfg.AI.Provider {
	case "anthropic":
		cfg.AI.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		cfg.AI.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone is empty")
	}
	return time.LoadLocation(name)
}

// Location returns the configured reference timezone. Validate has
// already checked it parses.
func (c *CalendarConfig) Location() *time.Location {
	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
