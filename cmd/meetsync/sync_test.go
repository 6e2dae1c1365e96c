package main

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/meetsync/internal/store"
)

// newWindowCmd builds a disposable command bound to the sync flag
// variables so Changed() state does not leak between tests.
func newWindowCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sync"}
	cmd.Flags().IntVar(&syncPastDays, "past", 0, "")
	cmd.Flags().IntVar(&syncFutureDays, "future", 0, "")
	return cmd
}

func resetSyncFlags() {
	syncPastDays = 0
	syncFutureDays = 0
	syncStartDate = ""
	syncEndDate = ""
}

func TestResolveWindow_DateRange(t *testing.T) {
	defer resetSyncFlags()
	syncStartDate = "2026-08-01"
	syncEndDate = "2026-09-30"

	window, err := resolveWindow(newWindowCmd(), 7, 30, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), window.Start)
	// End date is inclusive, so the window runs to the next midnight.
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), window.End)
}

func TestResolveWindow_DateRangeRequiresBothFlags(t *testing.T) {
	defer resetSyncFlags()
	syncStartDate = "2026-08-01"

	_, err := resolveWindow(newWindowCmd(), 7, 30, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be used together")
}

func TestResolveWindow_DefaultsFromConfig(t *testing.T) {
	defer resetSyncFlags()

	before := time.Now().In(time.UTC)
	window, err := resolveWindow(newWindowCmd(), 7, 30, time.UTC)
	require.NoError(t, err)
	after := time.Now().In(time.UTC)

	assert.False(t, window.Start.Before(before.AddDate(0, 0, -7)))
	assert.False(t, window.Start.After(after.AddDate(0, 0, -7)))
	assert.False(t, window.End.Before(before.AddDate(0, 0, 30)))
	assert.False(t, window.End.After(after.AddDate(0, 0, 30)))
}

func TestResolveWindow_FlagsOverrideConfig(t *testing.T) {
	defer resetSyncFlags()

	cmd := newWindowCmd()
	require.NoError(t, cmd.Flags().Set("past", "1"))
	require.NoError(t, cmd.Flags().Set("future", "2"))

	window, err := resolveWindow(cmd, 7, 30, time.UTC)
	require.NoError(t, err)

	span := window.End.Sub(window.Start)
	assert.Equal(t, 3*24*time.Hour, span.Round(time.Hour))
}

func TestResolveWindow_RejectsNegativeDays(t *testing.T) {
	defer resetSyncFlags()

	cmd := newWindowCmd()
	require.NoError(t, cmd.Flags().Set("past", "-1"))

	_, err := resolveWindow(cmd, 7, 30, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func exportRecord() store.BookingRecord {
	return store.BookingRecord{
		EventID:             "ev-1",
		Title:               "ABC株式会社 / 田中様",
		CompanyName:         "ABC株式会社",
		PersonNames:         store.StringList{"田中", "佐藤"},
		StartDatetime:       "2026-09-01T10:00:00+09:00",
		EndDatetime:         "2026-09-01T11:00:00+09:00",
		Timezone:            "Asia/Tokyo",
		Attendees:           store.StringList{"tanaka@example.co.jp"},
		Location:            "オンライン",
		SourceCalendar:      "primary",
		ExtractedConfidence: 0.85,
		Status:              store.StatusActive,
		UpdatedAt:           "2026-08-31T12:00:00Z",
		RunID:               "run-1",
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, []store.BookingRecord{exportRecord()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, csvHeader, rows[0])
	row := rows[1]
	assert.Equal(t, "ev-1", row[0])
	assert.Equal(t, "ABC株式会社", row[2])
	assert.Equal(t, "田中; 佐藤", row[3])
	assert.Equal(t, "0.85", row[10])
	assert.Equal(t, "active", row[11])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []store.BookingRecord{exportRecord()}))

	out := buf.String()
	assert.Contains(t, out, `"event_id": "ev-1"`)
	assert.Contains(t, out, `"company_name": "ABC株式会社"`)
	assert.Contains(t, out, `"status": "active"`)
}
