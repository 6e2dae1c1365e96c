// Package audit appends structured per-event outcomes and per-run
// summaries to a JSONL file. An audit write failure never fails the
// sync; it is logged and the pipeline moves on.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/meetsync/internal/config"
	"github.com/fyrsmithlabs/meetsync/internal/logging"
)

// Outcome classifies what the sync engine did with one event.
type Outcome string

const (
	OutcomeCreated              Outcome = "created"
	OutcomeUpdated              Outcome = "updated"
	OutcomeRetired              Outcome = "retired"
	OutcomeCancelled            Outcome = "cancelled"
	OutcomeSkippedLowConfidence Outcome = "skipped-low-confidence"
	OutcomeExtractionFailed     Outcome = "extraction-failed"
)

// Entry is one per-event audit record.
type Entry struct {
	Kind          string  `json:"kind"`
	Timestamp     string  `json:"timestamp"`
	RunID         string  `json:"run_id"`
	EventID       string  `json:"event_id"`
	Title         string  `json:"title,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
	DryRun        bool    `json:"dry_run,omitempty"`
	Detail        string  `json:"detail,omitempty"`
}

// Summary is the one per-run audit record.
type Summary struct {
	Kind       string `json:"kind"`
	Timestamp  string `json:"timestamp"`
	RunID      string `json:"run_id"`
	Window     string `json:"window"`
	DryRun     bool   `json:"dry_run"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Retired    int    `json:"retired"`
	Cancelled  int    `json:"cancelled"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Completed  bool   `json:"completed"`
	FailReason string `json:"fail_reason,omitempty"`
}

// Log is the append-only audit sink consumed by the sync engine.
type Log interface {
	Event(e Entry)
	Run(s Summary)
	Close() error
}

// JSONLLog appends one JSON object per line to a file.
type JSONLLog struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	logger *logging.Logger
}

var _ Log = (*JSONLLog)(nil)

// OpenJSONL opens (creating if needed) the audit file in append mode.
func OpenJSONL(cfg config.AuditConfig, logger *logging.Logger) (*JSONLLog, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLLog{f: f, enc: json.NewEncoder(f), logger: logger.Named("audit")}, nil
}

// Event appends a per-event record.
func (l *JSONLLog) Event(e Entry) {
	e.Kind = "event"
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	l.append(e)
}

// Run appends the per-run summary.
func (l *JSONLLog) Run(s Summary) {
	s.Kind = "run_summary"
	if s.Timestamp == "" {
		s.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	l.append(s)
}

func (l *JSONLLog) append(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(v); err != nil {
		l.logger.Warn("audit write failed", zap.Error(err))
	}
}

// Close flushes and closes the underlying file.
func (l *JSONLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// NopLog discards everything. Used by self-test runs that must not
// touch state on disk.
type NopLog struct{}

var _ Log = NopLog{}

func (NopLog) Event(Entry)  {}
func (NopLog) Run(Summary)  {}
func (NopLog) Close() error { return nil }
