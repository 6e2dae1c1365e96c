package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/meetsync/internal/audit"
	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/extraction"
	"github.com/fyrsmithlabs/meetsync/internal/normalize"
	"github.com/fyrsmithlabs/meetsync/internal/store"
	"github.com/fyrsmithlabs/meetsync/internal/syncer"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the extraction pipeline over built-in fixtures",
	Long: `Run the filter, rule extractor, merger, and normalizer over built-in
fixture events, then a full sync pass against an in-memory store.
No network access, nothing written to disk.`,
	RunE: runSelftest,
}

type selftestCase struct {
	name         string
	event        calendar.Event
	wantEligible bool
	wantCompany  string
	wantPersons  []string
}

func selftestCases() []selftestCase {
	return []selftestCase{
		{
			name: "marked title with suffix company",
			event: calendar.Event{
				ID:    "fixture-1",
				Title: "【B】ABC株式会社 / 田中様 / オンライン面談",
			},
			wantEligible: true,
			wantCompany:  "ABC株式会社",
			wantPersons:  []string{"田中"},
		},
		{
			name: "leading full-width space",
			event: calendar.Event{
				ID:    "fixture-2",
				Title: "　【B】ミーティング",
			},
			wantEligible: true,
		},
		{
			name: "unmarked title is ineligible",
			event: calendar.Event{
				ID:    "fixture-3",
				Title: "ABC株式会社 定例",
			},
			wantEligible: false,
		},
		{
			name: "enclosed company sign folds",
			event: calendar.Event{
				ID:    "fixture-4",
				Title: "【B】サンプル㈱ 打ち合わせ",
			},
			wantEligible: true,
			wantCompany:  "サンプル株式会社",
		},
	}
}

func runSelftest(_ *cobra.Command, _ []string) error {
	cfg := config.NewDefaultConfig()

	filter, err := calendar.NewFilter(cfg.EventFilter)
	if err != nil {
		return err
	}
	rules := extraction.NewRuleExtractor(filter)
	merger := extraction.NewMerger(cfg.Merge)
	normalizer := normalize.New()

	ctx := context.Background()
	failures := 0
	for _, tc := range selftestCases() {
		ok, detail := runSelftestCase(ctx, tc, filter, rules, merger, normalizer)
		mark := "ok"
		if !ok {
			mark = "FAIL"
			failures++
		}
		fmt.Printf("%-4s %s", mark, tc.name)
		if detail != "" {
			fmt.Printf(" (%s)", detail)
		}
		fmt.Println()
	}

	ok, detail := runEngineSelftest(ctx, cfg, filter, rules, merger, normalizer)
	mark := "ok"
	if !ok {
		mark = "FAIL"
		failures++
	}
	fmt.Printf("%-4s end-to-end sync", mark)
	if detail != "" {
		fmt.Printf(" (%s)", detail)
	}
	fmt.Println()

	if failures > 0 {
		return fmt.Errorf("selftest: %d case(s) failed", failures)
	}
	fmt.Println("selftest passed")
	return nil
}

// fixtureSource serves the built-in fixture events.
type fixtureSource struct {
	events []calendar.Event
}

func (s fixtureSource) FetchEvents(_ context.Context, _ calendar.Window) ([]calendar.Event, error) {
	return s.events, nil
}

// runEngineSelftest pushes the fixtures through a real sync engine
// backed by an in-memory store. Only fixture-1 carries both a company
// and a person, so exactly one record is created and the other two
// eligible fixtures are skipped for low confidence.
func runEngineSelftest(ctx context.Context, cfg *config.Config, filter *calendar.Filter, rules *extraction.RuleExtractor, merger *extraction.Merger, normalizer *normalize.Normalizer) (bool, string) {
	cfg.AI.Provider = "disabled"
	cfg.AI.ConfidenceThreshold = 0.3
	cfg.Store.Path = ":memory:"
	cfg.Logging.Level = zapcore.ErrorLevel

	logger, err := newLogger(cfg)
	if err != nil {
		return false, err.Error()
	}
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return false, err.Error()
	}
	defer st.Close()

	ai, err := extraction.NewAIExtractor(cfg.AI)
	if err != nil {
		return false, err.Error()
	}

	var events []calendar.Event
	for _, tc := range selftestCases() {
		events = append(events, tc.event)
	}

	engine, err := syncer.NewEngine(cfg, syncer.Deps{
		Source:     fixtureSource{events: events},
		Filter:     filter,
		Rules:      rules,
		AI:         ai,
		Merger:     merger,
		Normalizer: normalizer,
		Store:      st,
		Audit:      audit.NopLog{},
		Logger:     logger,
	})
	if err != nil {
		return false, err.Error()
	}

	window := calendar.WindowFromDays(time.Now(), 1, 1, cfg.Calendar.Location())
	run, err := engine.Sync(ctx, window, false)
	if err != nil {
		return false, err.Error()
	}
	if run.Created != 1 || run.Skipped != 2 || run.Failed != 0 {
		return false, fmt.Sprintf("created=%d skipped=%d failed=%d, want 1/2/0",
			run.Created, run.Skipped, run.Failed)
	}
	return true, ""
}

func runSelftestCase(ctx context.Context, tc selftestCase, filter *calendar.Filter, rules *extraction.RuleExtractor, merger *extraction.Merger, normalizer *normalize.Normalizer) (bool, string) {
	eligible := filter.Eligible(tc.event.Title)
	if eligible != tc.wantEligible {
		return false, fmt.Sprintf("eligible=%v want %v", eligible, tc.wantEligible)
	}
	if !eligible {
		return true, ""
	}

	ruleCand, err := rules.Extract(ctx, tc.event)
	if err != nil {
		return false, err.Error()
	}
	merged := normalizer.Apply(merger.Merge(ruleCand, extraction.Candidate{Provenance: extraction.ProvenanceAI}))

	if tc.wantCompany != "" && merged.Company != tc.wantCompany {
		return false, fmt.Sprintf("company=%q want %q", merged.Company, tc.wantCompany)
	}
	for _, want := range tc.wantPersons {
		found := false
		for _, got := range merged.Persons {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("persons=%v missing %q", merged.Persons, want)
		}
	}
	return true, ""
}
