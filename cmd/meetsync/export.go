package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/meetsync/internal/store"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export booking records as CSV or JSON",
	Long: `Export every booking record ordered by start time.

Examples:
  meetsync export --format csv --out bookings.csv
  meetsync export --format json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output path, - for stdout")
}

func runExport(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(exportFormat)
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown export format %q (want csv or json)", exportFormat)
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

	records, err := st.Export(cmd.Context())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if format == "json" {
		return writeJSON(w, records)
	}
	return writeCSV(w, records)
}

func writeJSON(w io.Writer, records []store.BookingRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

var csvHeader = []string{
	"event_id", "title", "company_name", "person_names",
	"start_datetime", "end_datetime", "timezone", "attendees",
	"location", "source_calendar", "extracted_confidence",
	"status", "updated_at", "run_id",
}

func writeCSV(w io.Writer, records []store.BookingRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.EventID,
			rec.Title,
			rec.CompanyName,
			joinList(rec.PersonNames),
			rec.StartDatetime,
			rec.EndDatetime,
			rec.Timezone,
			joinList(rec.Attendees),
			rec.Location,
			rec.SourceCalendar,
			strconv.FormatFloat(rec.ExtractedConfidence, 'f', -1, 64),
			rec.Status.String(),
			rec.UpdatedAt,
			rec.RunID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// joinList renders a JSON-array column as a semicolon-separated cell.
func joinList(l store.StringList) string {
	return strings.Join(l, "; ")
}
