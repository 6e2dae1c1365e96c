package extraction

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/meetsync/internal/config"
)

// Merger fuses the rule and AI candidates for one event into a single
// Merged extraction.
//
// Per-field policy:
//   - both agree on a non-null value: max confidence, both provenances
//   - only one supplies a value: that value, confidence scaled by the
//     absence penalty (default 1.0, no penalty for an abstention)
//   - conflicting non-null values: higher-confidence candidate wins,
//     confidence reduced by the conflict penalty, floored at 0
//   - neither supplies a value: null, confidence 0
//
// The blended confidence is the minimum across the company and person
// fields: the weakest field gates acceptance.
type Merger struct {
	conflictPenalty float64
	absencePenalty  float64
}

// NewMerger creates a merger with the configured penalties.
func NewMerger(cfg config.MergeConfig) *Merger {
	return &Merger{
		conflictPenalty: cfg.ConflictPenalty,
		absencePenalty:  cfg.AbsencePenalty,
	}
}

// Merge fuses two candidates. Candidates with zero confidence on a
// field are treated as abstaining on it.
func (m *Merger) Merge(rule, ai Candidate) Merged {
	company, companyConf, companyProv := m.mergeCompany(rule, ai)
	persons, personConf, personProv := m.mergePersons(rule, ai)

	return Merged{
		Company:    company,
		Persons:    persons,
		Confidence: min(companyConf, personConf),
		Provenance: unionProvenance(companyProv, personProv),
	}
}

func (m *Merger) mergeCompany(rule, ai Candidate) (string, float64, []Provenance) {
	ruleHas := rule.Company != ""
	aiHas := ai.Company != ""

	switch {
	case !ruleHas && !aiHas:
		return "", 0, nil
	case ruleHas && !aiHas:
		return rule.Company, rule.CompanyConfidence * m.absencePenalty, []Provenance{ProvenanceRules}
	case !ruleHas && aiHas:
		return ai.Company, ai.CompanyConfidence * m.absencePenalty, []Provenance{ProvenanceAI}
	}

	if equalFold(rule.Company, ai.Company) {
		return rule.Company,
			max(rule.CompanyConfidence, ai.CompanyConfidence),
			[]Provenance{ProvenanceRules, ProvenanceAI}
	}

	// Conflict: the higher-confidence candidate wins, penalized.
	if rule.CompanyConfidence >= ai.CompanyConfidence {
		return rule.Company, floor0(rule.CompanyConfidence - m.conflictPenalty), []Provenance{ProvenanceRules}
	}
	return ai.Company, floor0(ai.CompanyConfidence - m.conflictPenalty), []Provenance{ProvenanceAI}
}

func (m *Merger) mergePersons(rule, ai Candidate) ([]string, float64, []Provenance) {
	ruleHas := len(rule.Persons) > 0
	aiHas := len(ai.Persons) > 0

	switch {
	case !ruleHas && !aiHas:
		return nil, 0, nil
	case ruleHas && !aiHas:
		return rule.Persons, rule.PersonConfidence * m.absencePenalty, []Provenance{ProvenanceRules}
	case !ruleHas && aiHas:
		return ai.Persons, ai.PersonConfidence * m.absencePenalty, []Provenance{ProvenanceAI}
	}

	if equalPersonSets(rule.Persons, ai.Persons) {
		return rule.Persons,
			max(rule.PersonConfidence, ai.PersonConfidence),
			[]Provenance{ProvenanceRules, ProvenanceAI}
	}

	if rule.PersonConfidence >= ai.PersonConfidence {
		return rule.Persons, floor0(rule.PersonConfidence - m.conflictPenalty), []Provenance{ProvenanceRules}
	}
	return ai.Persons, floor0(ai.PersonConfidence - m.conflictPenalty), []Provenance{ProvenanceAI}
}

// equalPersonSets compares person name sets case-insensitively with
// whitespace normalized, ignoring order.
func equalPersonSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := canonicalSet(a)
	bs := canonicalSet(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func canonicalSet(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(normalizeSpace(n))
	}
	sort.Strings(out)
	return out
}

func unionProvenance(a, b []Provenance) []Provenance {
	seen := map[Provenance]bool{}
	var out []Provenance
	for _, p := range append(append([]Provenance{}, a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
