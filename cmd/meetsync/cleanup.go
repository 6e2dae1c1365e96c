package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/meetsync/internal/store"
)

var cleanupOlderThanDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old removed and cancelled records",
	Long: `Physically delete removed and cancelled records last updated more than
--older-than days ago. Active records are never deleted. Sync never
deletes records; this is the only operation that does.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupOlderThanDays, "older-than", 90, "age threshold in days")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	if cleanupOlderThanDays < 0 {
		return fmt.Errorf("--older-than must not be negative")
	}

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

	cutoff := time.Now().AddDate(0, 0, -cleanupOlderThanDays)
	deleted, err := st.Cleanup(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d record(s) older than %d days\n", deleted, cleanupOlderThanDays)
	return nil
}
