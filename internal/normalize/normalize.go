// Package normalize canonicalizes extracted company and person names.
// Normalization is idempotent and never fails; values it cannot map
// pass through unchanged.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/fyrsmithlabs/meetsync/internal/extraction"
)

// companyVariants folds enclosed CJK company signs and other spelling
// variants to their canonical legal form.
var companyVariants = strings.NewReplacer(
	"㈱", "株式会社",
	"㈲", "有限会社",
	"㈳", "合同会社",
	"㈴", "一般社団法人",
	"㈵", "公益社団法人",
	"㈶", "一般財団法人",
	"㈷", "公益財団法人",
	"㈸", "社会福祉法人",
	"㈹", "学校法人",
	"㈺", "医療法人",
	"㈻", "宗教法人",
	"㈼", "特定非営利活動法人",
)

// bareEnglishSuffixes maps trailing legal suffixes written without a
// period to their dotted form.
var bareEnglishSuffixes = map[string]string{
	"Inc":  "Inc.",
	"Ltd":  "Ltd.",
	"Corp": "Corp.",
	"Co":   "Co.",
}

// honorificSuffixes are stripped from person names before storage.
var honorificSuffixes = []string{"様", "さん", "さま", "先生", "氏", "殿", "君", "ちゃん"}

// honorificPrefixes are English courtesy titles stripped from the head
// of a person name.
var honorificPrefixes = []string{"Mr. ", "Mrs. ", "Ms. ", "Dr. "}

var (
	whitespaceRun = regexp.MustCompile(`[\s　]+`)
	digitsOnly    = regexp.MustCompile(`^[0-9]+$`)
	emailLike     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	urlLike       = regexp.MustCompile(`^https?://`)
)

// Normalizer canonicalizes merged extractions. The zero value is not
// usable; construct with New.
type Normalizer struct {
	// aliases maps a canonical lookup key to the registered canonical
	// spelling of a company.
	aliases map[string]string
}

// New returns a Normalizer with an empty alias table.
func New() *Normalizer {
	return &Normalizer{aliases: map[string]string{}}
}

// RegisterAlias maps a variant company spelling to its canonical form.
// Both sides run through the base canonicalization first, and the
// canonical form is registered for itself, which keeps normalization
// idempotent.
func (n *Normalizer) RegisterAlias(variant, canonical string) {
	canonical = baseCompany(canonical)
	if canonical == "" {
		return
	}
	n.aliases[aliasKey(baseCompany(variant))] = canonical
	n.aliases[aliasKey(canonical)] = canonical
}

// RegisterCanonical records company names already accepted into the
// store so later variant spellings collapse onto them.
func (n *Normalizer) RegisterCanonical(names ...string) {
	for _, name := range names {
		n.RegisterAlias(name, name)
	}
}

// Apply returns a canonicalized copy of the merged extraction.
// Confidence and provenance are untouched.
func (n *Normalizer) Apply(m extraction.Merged) extraction.Merged {
	m.Company = n.Company(m.Company)
	m.Persons = n.Persons(m.Persons)
	return m
}

// Company canonicalizes one company name: width folding, variant sign
// expansion, whitespace collapsing, trailing legal-suffix dotting, and
// an alias-table lookup.
func (n *Normalizer) Company(name string) string {
	s := baseCompany(name)
	if s == "" {
		return ""
	}
	if canonical, ok := n.aliases[aliasKey(s)]; ok {
		return canonical
	}
	return s
}

// baseCompany applies the alias-independent canonicalization steps.
func baseCompany(name string) string {
	s := collapseSpace(width.Fold.String(name))
	if s == "" {
		return ""
	}
	s = companyVariants.Replace(s)
	return dotTrailingSuffix(s)
}

// Persons canonicalizes person names: honorifics stripped, widths and
// whitespace folded, invalid entries dropped, duplicates removed with
// original order kept. Returns nil when nothing survives.
func (n *Normalizer) Persons(names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range names {
		p := n.Person(name)
		if p == "" || !validPersonName(p) {
			continue
		}
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// Person canonicalizes a single person name. Stripping never empties a
// name: a bare honorific is left alone.
func (n *Normalizer) Person(name string) string {
	s := collapseSpace(width.Fold.String(name))
	if s == "" {
		return ""
	}
	return stripHonorifics(s)
}

func stripHonorifics(s string) string {
	for _, prefix := range honorificPrefixes {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = strings.TrimSpace(rest)
			break
		}
	}
	for changed := true; changed; {
		changed = false
		for _, suffix := range honorificSuffixes {
			if rest, ok := strings.CutSuffix(s, suffix); ok && rest != "" {
				s = strings.TrimSpace(rest)
				changed = true
			}
		}
	}
	return s
}

// dotTrailingSuffix appends the period to a bare trailing English
// legal suffix, so "Acme Inc" and "Acme Inc." collapse.
func dotTrailingSuffix(s string) string {
	for bare, dotted := range bareEnglishSuffixes {
		if rest, ok := strings.CutSuffix(s, " "+bare); ok {
			return rest + " " + dotted
		}
	}
	return s
}

func validPersonName(s string) bool {
	if len([]rune(s)) < 2 {
		return false
	}
	if digitsOnly.MatchString(s) || emailLike.MatchString(s) || urlLike.MatchString(s) {
		return false
	}
	return true
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func aliasKey(s string) string {
	return strings.ToLower(collapseSpace(width.Fold.String(s)))
}
