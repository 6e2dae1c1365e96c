package calendar

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/meetsync/internal/config"
)

// bracketMarker matches markers of the 【X】 form so the filter can
// expand them into half-width and full-width bracket variants.
var bracketMarker = regexp.MustCompile(`^【(.+)】$`)

// Filter classifies events as eligible or ineligible by title marker.
// The marker and the leading-whitespace tolerance are one compiled
// pattern; same title always yields the same verdict.
type Filter struct {
	pattern *regexp.Regexp
}

// NewFilter compiles the configured marker into an anchored pattern
// that tolerates leading whitespace, including the full-width space.
func NewFilter(cfg config.EventFilterConfig) (*Filter, error) {
	marker := cfg.MarkerPattern

	if m := bracketMarker.FindStringSubmatch(marker); m != nil && cfg.AllowBracketVariations {
		inner := regexp.QuoteMeta(m[1])
		marker = `(?:【` + inner + `】|\[` + inner + `\]|［` + inner + `］)`
	}

	pattern, err := regexp.Compile(`^[\s` + "　" + `]*(?:` + marker + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid marker pattern %q: %w", cfg.MarkerPattern, err)
	}
	return &Filter{pattern: pattern}, nil
}

// Eligible reports whether the title carries the marker.
func (f *Filter) Eligible(title string) bool {
	if title == "" {
		return false
	}
	return f.pattern.MatchString(title)
}

// StripMarker removes leading whitespace and the marker from a title,
// leaving the text the extractors work on.
func (f *Filter) StripMarker(title string) string {
	loc := f.pattern.FindStringIndex(title)
	if loc == nil {
		return title
	}
	return title[loc[1]:]
}
