package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
)

func newTestRuleExtractor(t *testing.T) *RuleExtractor {
	t.Helper()
	filter, err := calendar.NewFilter(config.EventFilterConfig{MarkerPattern: `【B】`})
	require.NoError(t, err)
	return NewRuleExtractor(filter)
}

func TestRuleExtractor_CompanySuffix(t *testing.T) {
	r := newTestRuleExtractor(t)

	candidate, err := r.Extract(context.Background(), calendar.Event{
		ID:    "ev1",
		Title: "【B】ABC株式会社 / 田中様 / オンライン面談",
	})
	require.NoError(t, err)

	assert.Equal(t, "ABC株式会社", candidate.Company)
	assert.GreaterOrEqual(t, candidate.CompanyConfidence, 0.6)
	assert.Equal(t, []string{"田中様"}, candidate.Persons)
	assert.Equal(t, ProvenanceRules, candidate.Provenance)
}

func TestRuleExtractor_EnglishSuffix(t *testing.T) {
	r := newTestRuleExtractor(t)

	candidate, err := r.Extract(context.Background(), calendar.Event{
		Title: "【B】Acme Inc. kickoff",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc.", candidate.Company)
	assert.GreaterOrEqual(t, candidate.CompanyConfidence, 0.6)
}

func TestRuleExtractor_DomainLookup(t *testing.T) {
	r := newTestRuleExtractor(t)
	r.SetDomainMapping("example.co.jp", "Example株式会社")

	candidate, err := r.Extract(context.Background(), calendar.Event{
		Title: "【B】定例",
		Attendees: []calendar.Attendee{
			{Email: "sato@example.co.jp", DisplayName: "佐藤様"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Example株式会社", candidate.Company)
	assert.Equal(t, []string{"佐藤様"}, candidate.Persons)
}

func TestRuleExtractor_LedgerFuzzyMatch(t *testing.T) {
	r := newTestRuleExtractor(t)
	r.SetKnownCompanies([]string{"サンプル商事"})

	candidate, err := r.Extract(context.Background(), calendar.Event{
		Title: "【B】サンプル商事 打ち合わせ",
	})
	require.NoError(t, err)
	assert.Equal(t, "サンプル商事", candidate.Company)
	assert.Greater(t, candidate.CompanyConfidence, 0.0)
}

func TestRuleExtractor_NoHeuristicsFire(t *testing.T) {
	r := newTestRuleExtractor(t)

	candidate, err := r.Extract(context.Background(), calendar.Event{
		Title: "【B】1on1",
	})
	require.NoError(t, err)
	assert.Empty(t, candidate.Company)
	assert.Zero(t, candidate.CompanyConfidence)
	assert.Empty(t, candidate.Persons)
	assert.Zero(t, candidate.PersonConfidence)
}

func TestRuleExtractor_PersonHeuristics(t *testing.T) {
	r := newTestRuleExtractor(t)

	tests := []struct {
		name  string
		event calendar.Event
		want  []string
	}{
		{
			name:  "honorific in title",
			event: calendar.Event{Title: "【B】山田様との面談"},
			want:  []string{"山田様"},
		},
		{
			name:  "kana honorific",
			event: calendar.Event{Title: "【B】さとうさんと打合せ"},
			want:  []string{"さとうさん"},
		},
		{
			name: "attendee display names, deduplicated",
			event: calendar.Event{
				Title: "【B】鈴木様ミーティング",
				Attendees: []calendar.Attendee{
					{DisplayName: "鈴木様", Email: "suzuki@example.com"},
					{DisplayName: "", Email: "noreply@example.com"},
				},
			},
			want: []string{"鈴木様"},
		},
		{
			name: "role words and emails rejected",
			event: calendar.Event{
				Title: "【B】コーチング",
				Attendees: []calendar.Attendee{
					{DisplayName: "foo@bar.com"},
					{DisplayName: "セラピスト"},
				},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := r.Extract(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, candidate.Persons)
		})
	}
}

func TestRuleExtractor_CompanyNotAPerson(t *testing.T) {
	r := newTestRuleExtractor(t)

	candidate, err := r.Extract(context.Background(), calendar.Event{
		Title: "【B】ABC株式会社",
		Attendees: []calendar.Attendee{
			{DisplayName: "ABC株式会社"},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, candidate.Persons, "ABC株式会社")
}

func TestRuleExtractor_Deterministic(t *testing.T) {
	r := newTestRuleExtractor(t)
	event := calendar.Event{Title: "【B】ABC株式会社 / 田中様"}

	first, err := r.Extract(context.Background(), event)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := r.Extract(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
