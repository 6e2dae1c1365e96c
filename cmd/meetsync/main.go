// Package main implements the meetsync CLI: calendar-to-store booking
// synchronization and the operations around it.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/logging"
)

var (
	// cfgFile is the optional YAML config path
	cfgFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meetsync",
	Short: "Sync marked calendar events into a booking record store",
	Long: `meetsync fetches calendar events carrying the configured title marker,
extracts company and person names with rule-based and AI extraction,
and reconciles the results into a local booking record store.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(selftestCmd)
}

// loadConfig merges defaults, the optional config file, and
// environment overrides.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFile(cfgFile)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(&cfg.Logging)
}
