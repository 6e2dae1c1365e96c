package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS booking_records (
	event_id             TEXT PRIMARY KEY,
	title                TEXT NOT NULL,
	company_name         TEXT NOT NULL DEFAULT '',
	person_names         TEXT NOT NULL DEFAULT '[]',
	start_datetime       TEXT NOT NULL,
	end_datetime         TEXT NOT NULL,
	timezone             TEXT NOT NULL DEFAULT '',
	attendees            TEXT NOT NULL DEFAULT '[]',
	location             TEXT NOT NULL DEFAULT '',
	source_calendar      TEXT NOT NULL DEFAULT '',
	extracted_confidence REAL NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT 'active',
	updated_at           TEXT NOT NULL,
	run_id               TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_booking_records_status ON booking_records(status);
`

// SQLiteStore implements TabularStore on a local SQLite database.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logging.Logger
}

var _ TabularStore = (*SQLiteStore)(nil)

// Open opens (creating if needed) the SQLite database at cfg.Path and
// applies the schema.
func Open(cfg config.StoreConfig, logger *logging.Logger) (*SQLiteStore, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc sqlite handles one writer; a single connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger.Named("store")}, nil
}

// Get returns the record for eventID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, eventID string) (*BookingRecord, error) {
	var rec BookingRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM booking_records WHERE event_id = ?`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking record: %w", err)
	}
	return &rec, nil
}

// Upsert creates or replaces the record keyed by its event ID.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *BookingRecord) error {
	if rec.EventID == "" {
		return &WriteError{Op: "upsert", Err: errors.New("empty event_id")}
	}
	if !rec.Status.Valid() {
		return &WriteError{Op: "upsert", Err: fmt.Errorf("invalid status %q", rec.Status)}
	}

	const query = `
	INSERT INTO booking_records (
		event_id, title, company_name, person_names,
		start_datetime, end_datetime, timezone, attendees,
		location, source_calendar, extracted_confidence,
		status, updated_at, run_id
	) VALUES (
		:event_id, :title, :company_name, :person_names,
		:start_datetime, :end_datetime, :timezone, :attendees,
		:location, :source_calendar, :extracted_confidence,
		:status, :updated_at, :run_id
	)
	ON CONFLICT(event_id) DO UPDATE SET
		title = excluded.title,
		company_name = excluded.company_name,
		person_names = excluded.person_names,
		start_datetime = excluded.start_datetime,
		end_datetime = excluded.end_datetime,
		timezone = excluded.timezone,
		attendees = excluded.attendees,
		location = excluded.location,
		source_calendar = excluded.source_calendar,
		extracted_confidence = excluded.extracted_confidence,
		status = excluded.status,
		updated_at = excluded.updated_at,
		run_id = excluded.run_id`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return &WriteError{Op: "upsert", Err: err}
	}
	return nil
}

// ScanActiveOutsideWindow returns active records whose start time the
// window covers.
func (s *SQLiteStore) ScanActiveOutsideWindow(ctx context.Context, window calendar.Window) ([]BookingRecord, error) {
	var rows []BookingRecord
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM booking_records WHERE status = ? ORDER BY start_datetime`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("scan active records: %w", err)
	}

	// Offsets can differ between rows, so the coverage check parses
	// instead of comparing text.
	var out []BookingRecord
	for _, rec := range rows {
		start, err := rec.StartTime()
		if err != nil {
			s.logger.Warn("skipping record with unparsable start_datetime",
				zap.String("event_id", rec.EventID),
				zap.String("start_datetime", rec.StartDatetime))
			continue
		}
		if window.Covers(start) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CompanyNames returns the distinct non-empty company names of active
// records.
func (s *SQLiteStore) CompanyNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT DISTINCT company_name FROM booking_records
		 WHERE status = ? AND company_name != '' ORDER BY company_name`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list company names: %w", err)
	}
	return names, nil
}

// Cleanup deletes removed and cancelled records last updated before
// the cutoff and returns the number deleted.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := olderThan.UTC().Format(TimeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM booking_records
		 WHERE status IN (?, ?) AND datetime(updated_at) < datetime(?)`,
		StatusRemoved, StatusCancelled, cutoff)
	if err != nil {
		return 0, &WriteError{Op: "cleanup", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	s.logger.Info("cleanup complete", zap.Int64("deleted", n))
	return int(n), nil
}

// Export returns every record ordered by start time.
func (s *SQLiteStore) Export(ctx context.Context) ([]BookingRecord, error) {
	var rows []BookingRecord
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM booking_records ORDER BY start_datetime, event_id`)
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	return rows, nil
}

// Stats summarizes record counts and the most recent run.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[Status]int{}}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM booking_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	var last struct {
		RunID     sql.NullString `db:"run_id"`
		UpdatedAt sql.NullString `db:"updated_at"`
	}
	err = s.db.GetContext(ctx, &last,
		`SELECT run_id, updated_at FROM booking_records ORDER BY datetime(updated_at) DESC LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last run lookup: %w", err)
	}
	stats.LastRunID = last.RunID.String
	stats.LastUpdatedAt = last.UpdatedAt.String

	return stats, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
