package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/meetsync/internal/audit"
	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/extraction"
	"github.com/fyrsmithlabs/meetsync/internal/normalize"
	"github.com/fyrsmithlabs/meetsync/internal/store"
	"github.com/fyrsmithlabs/meetsync/internal/syncer"
)

var (
	syncPastDays   int
	syncFutureDays int
	syncStartDate  string
	syncEndDate    string
	syncDryRun     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile calendar events into the booking store",
	Long: `Fetch events for the sync window, extract booking facts from marked
events, and upsert them into the booking record store.

Examples:
  # Sync the configured default window
  meetsync sync

  # Sync an explicit date range without writing
  meetsync sync --start-date 2026-08-01 --end-date 2026-09-30 --dry-run`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncPastDays, "past", 0, "days of past events to sync (defaults to config)")
	syncCmd.Flags().IntVar(&syncFutureDays, "future", 0, "days of future events to sync (defaults to config)")
	syncCmd.Flags().StringVar(&syncStartDate, "start-date", "", "window start date (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncEndDate, "end-date", "", "window end date (YYYY-MM-DD, inclusive)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "compute and report changes without writing")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	window, err := resolveWindow(cmd, cfg.Calendar.SyncWindowPastDays, cfg.Calendar.SyncWindowFutureDays, cfg.Calendar.Location())
	if err != nil {
		return err
	}

	source, err := calendar.NewGoogleSource(ctx, cfg.Calendar, logger)
	if err != nil {
		return err
	}
	filter, err := calendar.NewFilter(cfg.EventFilter)
	if err != nil {
		return err
	}
	ai, err := extraction.NewAIExtractor(cfg.AI)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	auditLog, err := audit.OpenJSONL(cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	engine, err := syncer.NewEngine(cfg, syncer.Deps{
		Source:     source,
		Filter:     filter,
		Rules:      extraction.NewRuleExtractor(filter),
		AI:         ai,
		Merger:     extraction.NewMerger(cfg.Merge),
		Normalizer: normalize.New(),
		Store:      st,
		Audit:      auditLog,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	run, runErr := engine.Sync(ctx, window, syncDryRun)
	printRun(run)
	if runErr != nil {
		return fmt.Errorf("sync aborted after %d committed records: %w", run.Mutations(), runErr)
	}
	return nil
}

// resolveWindow turns the date flags into a window. An explicit date
// range wins over the day counts; day counts default to the config.
func resolveWindow(cmd *cobra.Command, past, future int, loc *time.Location) (calendar.Window, error) {
	if syncStartDate != "" || syncEndDate != "" {
		if syncStartDate == "" || syncEndDate == "" {
			return calendar.Window{}, fmt.Errorf("--start-date and --end-date must be used together")
		}
		return calendar.WindowFromRange(syncStartDate, syncEndDate, loc)
	}

	if cmd.Flags().Changed("past") {
		past = syncPastDays
	}
	if cmd.Flags().Changed("future") {
		future = syncFutureDays
	}
	if past < 0 || future < 0 {
		return calendar.Window{}, fmt.Errorf("--past and --future must not be negative")
	}
	return calendar.WindowFromDays(time.Now(), past, future, loc), nil
}

func printRun(run *syncer.SyncRun) {
	mode := "sync"
	if run.DryRun {
		mode = "dry-run"
	}
	fmt.Printf("%s %s (%s)\n", mode, run.ID, run.Window.String())
	fmt.Printf("  created:   %d\n", run.Created)
	fmt.Printf("  updated:   %d\n", run.Updated)
	fmt.Printf("  retired:   %d\n", run.Retired)
	fmt.Printf("  cancelled: %d\n", run.Cancelled)
	fmt.Printf("  skipped:   %d\n", run.Skipped)
	fmt.Printf("  failed:    %d\n", run.Failed)
	if !run.Completed {
		fmt.Printf("  status:    FAILED (%s)\n", run.FailReason)
	}
}
