package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/meetsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show booking store record counts and the last run",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("calendar: %s (past %dd, future %dd, %s)\n",
		cfg.Calendar.CalendarID,
		cfg.Calendar.SyncWindowPastDays,
		cfg.Calendar.SyncWindowFutureDays,
		cfg.Calendar.Timezone)
	ai := cfg.AI.Provider
	if ai != "disabled" && cfg.AI.APIKey == "" {
		ai += " (missing API key)"
	}
	fmt.Printf("ai: %s\n", ai)
	fmt.Printf("store: %s\n", cfg.Store.Path)
	fmt.Printf("records: %d\n", stats.Total)
	for _, s := range []store.Status{store.StatusActive, store.StatusRemoved, store.StatusCancelled} {
		fmt.Printf("  %-9s %d\n", s.String()+":", stats.ByStatus[s])
	}
	if stats.LastRunID != "" {
		fmt.Printf("last run: %s at %s\n", stats.LastRunID, stats.LastUpdatedAt)
	} else {
		fmt.Println("last run: never")
	}
	return nil
}
