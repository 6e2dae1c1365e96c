package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
)

// Company suffixes recognized by the dictionary heuristic. Japanese
// legal forms first, then common English ones.
var companySuffixes = []string{
	"株式会社", "有限会社", "合同会社", "一般社団法人", "公益社団法人",
	"一般財団法人", "公益財団法人", "社会福祉法人", "学校法人",
	"医療法人", "宗教法人", "特定非営利活動法人",
	"㈱", "㈲",
	"Inc.", "LLC", "Ltd.", "Corp.", "Corporation",
	"Co.", "Company", "Limited",
}

// Generic trade terms that mark a title segment as a company name even
// without a legal suffix.
var genericCompanyTerms = []string{
	"商事", "工業", "製作所", "不動産", "銀行", "信用金庫",
	"センター", "研究所", "クリニック", "サービス", "ソリューション",
}

// Role and meeting words that disqualify a string as a person name.
var personNGTerms = []string{
	"コーチング", "コーチ", "セラピスト", "カウンセラー",
	"面談", "商談", "打合せ", "打ち合わせ", "ミーティング",
}

// Heuristic weights for the rule-based confidence. The winning company
// heuristic contributes its weight; each corroborating heuristic adds
// corroborationBonus, capped at maxRuleConfidence.
const (
	weightSuffix     = 0.6
	weightDomain     = 0.5
	weightLedger     = 0.5
	weightTitleHead  = 0.3
	weightAttendees  = 0.6
	weightTitleNames = 0.5

	corroborationBonus = 0.15
	multiPersonBonus   = 0.1
	maxRuleConfidence  = 0.95

	// Ledger fuzzy matches below this similarity are ignored.
	ledgerMatchCutoff = 0.9
)

// titleDelimiters split a meeting title into company/person segments.
var titleDelimiters = regexp.MustCompile(`[|/／・×－—~〜]`)

var (
	honorificName = regexp.MustCompile(`([一-龯]{1,4})(様|さん|先生|氏)`)
	kanaHonorific = regexp.MustCompile(`([ぁ-んァ-ヶー]{2,10})(さん|様)`)
	spacedName    = regexp.MustCompile(`[一-龯]{1,3}[　 ][一-龯]{1,3}`)
	kanjiOnly     = regexp.MustCompile(`^[一-龯]{2,4}$`)
	kanaOnly      = regexp.MustCompile(`^[ぁ-んァ-ヶー]{2,6}$`)
	katakanaHead  = regexp.MustCompile(`^[ァ-ヶー]{3,}$`)
	hiraganaHead  = regexp.MustCompile(`^[ぁ-ん]{3,}$`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)
)

// RuleExtractor extracts company and person names using deterministic
// heuristics: suffix dictionary, attendee email-domain lookup, fuzzy
// match against the confirmed-company ledger, and delimiter/honorific
// segmentation for person names. It never calls the network and never
// errors; malformed input degrades to a zero candidate.
type RuleExtractor struct {
	filter    *calendar.Filter
	domainMap map[string]string
	ledger    []string
}

// NewRuleExtractor creates a rule extractor. The filter strips the
// title marker before segmentation.
func NewRuleExtractor(filter *calendar.Filter) *RuleExtractor {
	return &RuleExtractor{
		filter:    filter,
		domainMap: map[string]string{},
	}
}

// SetDomainMapping registers an email-domain to company-name mapping.
func (r *RuleExtractor) SetDomainMapping(domain, company string) {
	r.domainMap[strings.ToLower(domain)] = company
}

// SetKnownCompanies replaces the confirmed-company ledger used for
// fuzzy matching. The sync engine seeds this from the store at run
// start.
func (r *RuleExtractor) SetKnownCompanies(companies []string) {
	r.ledger = companies
}

// Extract runs all heuristics over one event. The returned error is
// always nil; RuleExtractor degrades instead of failing.
func (r *RuleExtractor) Extract(_ context.Context, event calendar.Event) (Candidate, error) {
	title := r.filter.StripMarker(event.Title)
	segments := splitSegments(title)

	company, companyConf := r.extractCompany(segments, event)
	persons, personConf := r.extractPersons(segments, title, event)

	return Candidate{
		Company:           company,
		CompanyConfidence: companyConf,
		Persons:           persons,
		PersonConfidence:  personConf,
		Provenance:        ProvenanceRules,
	}, nil
}

// Available is always true: the rule extractor has no external setup.
func (r *RuleExtractor) Available() bool { return true }

func splitSegments(title string) []string {
	parts := titleDelimiters.Split(title, -1)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, " \t　")
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// extractCompany applies the three company heuristics in priority
// order and combines their weights.
func (r *RuleExtractor) extractCompany(segments []string, event calendar.Event) (string, float64) {
	type hit struct {
		name   string
		weight float64
	}
	var hits []hit

	// (a) suffix dictionary over title segments and description tokens.
	if name := findBySuffix(segments); name != "" {
		hits = append(hits, hit{name, weightSuffix})
	} else if name := findBySuffix(strings.Fields(event.Description)); name != "" {
		hits = append(hits, hit{name, weightSuffix})
	}

	// (b) attendee email-domain lookup.
	if name := r.findByDomain(event); name != "" {
		hits = append(hits, hit{name, weightDomain})
	}

	// (c) fuzzy match against the confirmed-company ledger.
	if name := r.findInLedger(segments); name != "" {
		hits = append(hits, hit{name, weightLedger})
	}

	// Fallback: first title segment that looks like a company.
	if len(hits) == 0 {
		if name := companyLikeHead(segments); name != "" {
			hits = append(hits, hit{name, weightTitleHead})
		}
	}

	if len(hits) == 0 {
		return "", 0
	}

	conf := hits[0].weight
	for _, h := range hits[1:] {
		if equalFold(h.name, hits[0].name) {
			conf += corroborationBonus
		}
	}
	if conf > maxRuleConfidence {
		conf = maxRuleConfidence
	}
	return hits[0].name, conf
}

func findBySuffix(tokens []string) string {
	for _, tok := range tokens {
		for _, suffix := range companySuffixes {
			if idx := strings.Index(tok, suffix); idx >= 0 {
				return strings.TrimSpace(tok[:idx+len(suffix)])
			}
		}
	}
	return ""
}

func (r *RuleExtractor) findByDomain(event calendar.Event) string {
	for _, a := range event.Attendees {
		email := a.Email
		if email == "" {
			continue
		}
		m := emailPattern.FindStringSubmatch(email)
		if m == nil {
			continue
		}
		if name, ok := r.domainMap[strings.ToLower(m[1])]; ok {
			return name
		}
	}
	return ""
}

func (r *RuleExtractor) findInLedger(segments []string) string {
	best := ""
	bestScore := ledgerMatchCutoff
	for _, seg := range segments {
		// Compare the segment and its space-separated tokens; titles
		// often glue particles onto the company name.
		candidates := append([]string{seg}, strings.Fields(seg)...)
		for _, cand := range candidates {
			for _, known := range r.ledger {
				score := smetrics.JaroWinkler(cand, known, 0.7, 4)
				if score >= bestScore {
					best = known
					bestScore = score
				}
			}
		}
	}
	return best
}

// companyLikeHead checks the first title segment for company-looking
// text without a legal suffix.
func companyLikeHead(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	head := segments[0]
	for _, term := range personNGTerms {
		if strings.Contains(head, term) {
			return ""
		}
	}
	for _, term := range genericCompanyTerms {
		if strings.Contains(head, term) {
			return head
		}
	}
	if katakanaHead.MatchString(head) || hiraganaHead.MatchString(head) {
		return head
	}
	return ""
}

// extractPersons collects person names from attendee display names and
// from title/text patterns, de-duplicated in encounter order.
func (r *RuleExtractor) extractPersons(segments []string, title string, event calendar.Event) ([]string, float64) {
	var persons []string
	seen := map[string]bool{}
	add := func(name string) {
		name = strings.Trim(name, " \t　")
		if name == "" || seen[name] || !isValidPersonName(name) {
			return
		}
		seen[name] = true
		persons = append(persons, name)
	}

	fromAttendees := false
	for _, a := range event.Attendees {
		if a.DisplayName != "" && isValidPersonName(a.DisplayName) {
			add(a.DisplayName)
			fromAttendees = true
		}
	}

	fromText := false
	textSources := append([]string{title}, segments...)
	textSources = append(textSources, event.Description)
	for _, text := range textSources {
		for _, m := range honorificName.FindAllString(text, -1) {
			add(m)
			fromText = true
		}
		for _, m := range kanaHonorific.FindAllString(text, -1) {
			add(m)
			fromText = true
		}
		for _, m := range spacedName.FindAllString(text, -1) {
			add(m)
			fromText = true
		}
	}

	if len(persons) == 0 {
		return nil, 0
	}

	conf := 0.0
	switch {
	case fromAttendees && fromText:
		conf = weightAttendees + corroborationBonus
	case fromAttendees:
		conf = weightAttendees
	case fromText:
		conf = weightTitleNames
	}
	if len(persons) > 1 {
		conf += multiPersonBonus
	}
	if conf > maxRuleConfidence {
		conf = maxRuleConfidence
	}
	return persons, conf
}

// isValidPersonName rejects company names, role words, email addresses
// and other strings that cannot be a person.
func isValidPersonName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	if strings.Contains(name, "@") {
		return false
	}
	for _, suffix := range companySuffixes {
		if strings.Contains(name, suffix) {
			return false
		}
	}
	for _, term := range personNGTerms {
		if strings.Contains(name, term) {
			return false
		}
	}
	if kanjiOnly.MatchString(name) || kanaOnly.MatchString(name) {
		return true
	}
	if honorificName.MatchString(name) || kanaHonorific.MatchString(name) || spacedName.MatchString(name) {
		return true
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(normalizeSpace(a), normalizeSpace(b))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "　", " ")), " ")
}

var _ Extractor = (*RuleExtractor)(nil)
