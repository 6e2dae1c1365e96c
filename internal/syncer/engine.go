// Package syncer reconciles extracted calendar events against the
// booking record store for one time window.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/meetsync/internal/audit"
	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/extraction"
	"github.com/fyrsmithlabs/meetsync/internal/logging"
	"github.com/fyrsmithlabs/meetsync/internal/normalize"
	"github.com/fyrsmithlabs/meetsync/internal/store"
)

// Engine drives one sync run: fetch, filter, extract, merge,
// normalize, upsert, retire. Writes are idempotent upserts keyed by
// event ID, so a retried partial run converges.
type Engine struct {
	source     calendar.Source
	filter     *calendar.Filter
	rules      *extraction.RuleExtractor
	ai         extraction.Extractor
	merger     *extraction.Merger
	normalizer *normalize.Normalizer
	store      store.TabularStore
	audit      audit.Log
	logger     *logging.Logger

	loc         *time.Location
	threshold   float64
	maxInFlight int
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Source     calendar.Source
	Filter     *calendar.Filter
	Rules      *extraction.RuleExtractor
	AI         extraction.Extractor
	Merger     *extraction.Merger
	Normalizer *normalize.Normalizer
	Store      store.TabularStore
	Audit      audit.Log
	Logger     *logging.Logger
}

// NewEngine wires a sync engine from configuration and collaborators.
func NewEngine(cfg *config.Config, deps Deps) (*Engine, error) {
	maxInFlight := cfg.AI.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	loc := cfg.Calendar.Location()
	return &Engine{
		source:      deps.Source,
		filter:      deps.Filter,
		rules:       deps.Rules,
		ai:          deps.AI,
		merger:      deps.Merger,
		normalizer:  deps.Normalizer,
		store:       deps.Store,
		audit:       deps.Audit,
		logger:      deps.Logger.Named("syncer"),
		loc:         loc,
		threshold:   cfg.AI.ConfidenceThreshold,
		maxInFlight: maxInFlight,
	}, nil
}

// extracted pairs an eligible event with its fused extraction result.
type extracted struct {
	event  calendar.Event
	merged extraction.Merged
	aiErr  error
}

// Sync runs the reconciliation for one window. The returned SyncRun is
// finalized even when err is non-nil; committed writes stand.
func (e *Engine) Sync(ctx context.Context, window calendar.Window, dryRun bool) (*SyncRun, error) {
	run := newRun(window, dryRun)
	logger := e.logger.With(zap.String("run_id", run.ID), zap.Bool("dry_run", dryRun))
	logger.Info("sync started", zap.String("window", window.String()))

	e.seedLedger(ctx, logger)

	events, err := e.source.FetchEvents(ctx, window)
	if err != nil {
		return e.fail(run, fmt.Errorf("fetch events: %w", err))
	}

	seen := make(map[string]bool, len(events))
	var eligible, cancelled []calendar.Event
	for _, ev := range events {
		seen[ev.ID] = true
		if ev.Cancelled {
			// Cancelled events often arrive stripped of their title;
			// the record lookup decides whether they matter.
			cancelled = append(cancelled, ev)
			continue
		}
		if !e.filter.Eligible(ev.Title) {
			continue
		}
		eligible = append(eligible, ev)
	}
	logger.Info("events partitioned",
		zap.Int("fetched", len(events)),
		zap.Int("eligible", len(eligible)),
		zap.Int("cancelled", len(cancelled)))

	results, err := e.extractAll(ctx, eligible)
	if err != nil {
		return e.fail(run, err)
	}

	for _, res := range results {
		if err := e.applyEvent(ctx, run, res); err != nil {
			return e.fail(run, err)
		}
	}
	for _, ev := range cancelled {
		if err := e.applyCancellation(ctx, run, ev); err != nil {
			return e.fail(run, err)
		}
	}
	if err := e.retireMissing(ctx, run, seen); err != nil {
		return e.fail(run, err)
	}

	run.finish("")
	e.audit.Run(e.summary(run))
	logger.Info("sync finished",
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("retired", run.Retired),
		zap.Int("cancelled", run.Cancelled),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed))
	return run, nil
}

// seedLedger loads accepted company names from the store into the rule
// extractor's ledger and the normalizer's alias table. A read failure
// only costs extraction quality, never the run.
func (e *Engine) seedLedger(ctx context.Context, logger *logging.Logger) {
	names, err := e.store.CompanyNames(ctx)
	if err != nil {
		logger.Warn("company ledger seed failed", zap.Error(err))
		return
	}
	e.rules.SetKnownCompanies(names)
	e.normalizer.RegisterCanonical(names...)
}

// extractAll runs rule extraction inline and AI extraction with
// bounded concurrency, then merges and normalizes per event. AI
// failures degrade the single event; they never abort the run.
func (e *Engine) extractAll(ctx context.Context, events []calendar.Event) ([]extracted, error) {
	aiCands := make([]extraction.Candidate, len(events))
	aiErrs := make([]error, len(events))

	if e.ai.Available() {
		g := new(errgroup.Group)
		g.SetLimit(e.maxInFlight)
		for i, ev := range events {
			g.Go(func() error {
				aiCands[i], aiErrs[i] = e.ai.Extract(ctx, ev)
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]extracted, 0, len(events))
	for i, ev := range events {
		ruleCand, err := e.rules.Extract(ctx, ev)
		if err != nil {
			// The rule extractor is pure; treat a failure like an AI
			// abstention rather than dropping the event.
			ruleCand = extraction.Candidate{Provenance: extraction.ProvenanceRules}
		}
		aiCand := aiCands[i]
		if aiErrs[i] != nil {
			aiCand = extraction.Candidate{Provenance: extraction.ProvenanceAI}
		}
		merged := e.normalizer.Apply(e.merger.Merge(ruleCand, aiCand))
		results = append(results, extracted{event: ev, merged: merged, aiErr: aiErrs[i]})
	}
	return results, nil
}

// applyEvent upserts one extracted event. Store failures abort the
// run; everything else is a per-event outcome.
func (e *Engine) applyEvent(ctx context.Context, run *SyncRun, res extracted) error {
	ev, merged := res.event, res.merged

	if res.aiErr != nil {
		run.Failed++
		e.audit.Event(audit.Entry{
			RunID:      run.ID,
			EventID:    ev.ID,
			Title:      ev.Title,
			Outcome:    audit.OutcomeExtractionFailed,
			Confidence: merged.Confidence,
			DryRun:     run.DryRun,
			Detail:     res.aiErr.Error(),
		})
	}

	existing, err := e.store.Get(ctx, ev.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if merged.Confidence < e.threshold {
			run.Skipped++
			e.audit.Event(audit.Entry{
				RunID:         run.ID,
				EventID:       ev.ID,
				Title:         ev.Title,
				Outcome:       audit.OutcomeSkippedLowConfidence,
				Confidence:    merged.Confidence,
				LowConfidence: true,
				DryRun:        run.DryRun,
			})
			return nil
		}
		rec := e.buildRecord(run, ev, merged, store.StatusActive)
		if err := e.upsert(ctx, run, rec); err != nil {
			return err
		}
		run.Created++
		e.audit.Event(audit.Entry{
			RunID:      run.ID,
			EventID:    ev.ID,
			Title:      ev.Title,
			Outcome:    audit.OutcomeCreated,
			Confidence: merged.Confidence,
			DryRun:     run.DryRun,
		})
		return nil

	case err != nil:
		return fmt.Errorf("lookup booking record %s: %w", ev.ID, err)
	}

	// An existing record never regresses to absent on low confidence;
	// fields are overwritten and the audit entry carries the flag.
	status, terr := existing.Status.Transition(store.StatusActive)
	if terr != nil {
		status = existing.Status
	}
	rec := e.buildRecord(run, ev, merged, status)
	if err := e.upsert(ctx, run, rec); err != nil {
		return err
	}
	run.Updated++
	e.audit.Event(audit.Entry{
		RunID:         run.ID,
		EventID:       ev.ID,
		Title:         ev.Title,
		Outcome:       audit.OutcomeUpdated,
		Confidence:    merged.Confidence,
		LowConfidence: merged.Confidence < e.threshold,
		DryRun:        run.DryRun,
	})
	return nil
}

// applyCancellation moves an existing record to cancelled, keeping its
// last known derived fields. A cancelled event with no record is
// ignored.
func (e *Engine) applyCancellation(ctx context.Context, run *SyncRun, ev calendar.Event) error {
	existing, err := e.store.Get(ctx, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup booking record %s: %w", ev.ID, err)
	}

	status, terr := existing.Status.Transition(store.StatusCancelled)
	if terr != nil {
		// removed -> cancelled is not a legal move; leave the record.
		return nil
	}

	existing.Status = status
	existing.UpdatedAt = store.FormatTime(time.Now(), e.loc)
	existing.RunID = run.ID
	if err := e.upsert(ctx, run, existing); err != nil {
		return err
	}
	run.Cancelled++
	e.audit.Event(audit.Entry{
		RunID:      run.ID,
		EventID:    ev.ID,
		Title:      ev.Title,
		Outcome:    audit.OutcomeCancelled,
		Confidence: existing.ExtractedConfidence,
		DryRun:     run.DryRun,
	})
	return nil
}

// retireMissing marks active records absent from the fetched window as
// removed. Only records whose start time the window covers are
// candidates; a partial sync never spuriously retires the rest.
func (e *Engine) retireMissing(ctx context.Context, run *SyncRun, seen map[string]bool) error {
	actives, err := e.store.ScanActiveOutsideWindow(ctx, run.Window)
	if err != nil {
		return fmt.Errorf("scan active records: %w", err)
	}

	for _, rec := range actives {
		if seen[rec.EventID] {
			continue
		}
		rec.Status = store.StatusRemoved
		rec.UpdatedAt = store.FormatTime(time.Now(), e.loc)
		rec.RunID = run.ID
		if err := e.upsert(ctx, run, &rec); err != nil {
			return err
		}
		run.Retired++
		e.audit.Event(audit.Entry{
			RunID:      run.ID,
			EventID:    rec.EventID,
			Title:      rec.Title,
			Outcome:    audit.OutcomeRetired,
			Confidence: rec.ExtractedConfidence,
			DryRun:     run.DryRun,
		})
	}
	return nil
}

// upsert writes the record unless the run is a dry run.
func (e *Engine) upsert(ctx context.Context, run *SyncRun, rec *store.BookingRecord) error {
	if run.DryRun {
		return nil
	}
	return e.store.Upsert(ctx, rec)
}

func (e *Engine) buildRecord(run *SyncRun, ev calendar.Event, merged extraction.Merged, status store.Status) *store.BookingRecord {
	attendees := make(store.StringList, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		if a.Email != "" {
			attendees = append(attendees, a.Email)
		} else if a.DisplayName != "" {
			attendees = append(attendees, a.DisplayName)
		}
	}

	location := ev.Location
	if location == "" {
		location = ev.HTMLLink
	}

	return &store.BookingRecord{
		EventID:             ev.ID,
		Title:               ev.Title,
		CompanyName:         merged.Company,
		PersonNames:         store.StringList(merged.Persons),
		StartDatetime:       store.FormatTime(ev.Start, e.loc),
		EndDatetime:         store.FormatTime(ev.End, e.loc),
		Timezone:            ev.Timezone,
		Attendees:           attendees,
		Location:            location,
		SourceCalendar:      ev.SourceCalendar,
		ExtractedConfidence: merged.Confidence,
		Status:              status,
		UpdatedAt:           store.FormatTime(time.Now(), e.loc),
		RunID:               run.ID,
	}
}

func (e *Engine) fail(run *SyncRun, err error) (*SyncRun, error) {
	run.finish(err.Error())
	e.audit.Run(e.summary(run))
	e.logger.Error("sync failed",
		zap.String("run_id", run.ID),
		zap.Int("committed", run.Mutations()),
		zap.Error(err))
	return run, err
}

func (e *Engine) summary(run *SyncRun) audit.Summary {
	return audit.Summary{
		RunID:      run.ID,
		Window:     run.Window.String(),
		DryRun:     run.DryRun,
		Created:    run.Created,
		Updated:    run.Updated,
		Retired:    run.Retired,
		Cancelled:  run.Cancelled,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Completed:  run.Completed,
		FailReason: run.FailReason,
	}
}
