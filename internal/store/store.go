// Package store persists operation results. The results table is
// append-only: a row is written once when an operation reaches a terminal
// state and is never updated, so certificate generation always reads the
// same evidence the orchestrator produced.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/zenithax-cc/taotie/pkg/utils"
)

// ErrPersistence marks a failed append. The result is held in memory and
// retried on the next append or an explicit Flush; it is never dropped.
var ErrPersistence = errors.New("result persistence failed")

type Kind string

const (
	KindSmartQuery  Kind = "SmartQuery"
	KindSurfaceTest Kind = "SurfaceTest"
	KindStressTest  Kind = "StressTest"
	KindSecureErase Kind = "SecureErase"
	KindLegacyWipe  Kind = "LegacyWipe"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSmartQuery, KindSurfaceTest, KindStressTest, KindSecureErase, KindLegacyWipe:
		return true
	}
	return false
}

type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFailed  Outcome = "Failed"
	OutcomeAborted Outcome = "Aborted"
)

// OperationResult is the immutable record of one completed or failed run.
type OperationResult struct {
	ID        string            `json:"id"`
	DeviceID  string            `json:"device_id"`
	Kind      Kind              `json:"kind"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Outcome   Outcome           `json:"outcome"`
	Metrics   map[string]string `json:"metrics,omitempty"`
	Command   string            `json:"command,omitempty"`
	RawLog    string            `json:"raw_log,omitempty"`
	Error     string            `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
    id          TEXT PRIMARY KEY,
    device_id   TEXT NOT NULL,
    kind        TEXT NOT NULL,
    started_at  TEXT NOT NULL,
    ended_at    TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    metrics     TEXT,
    command     TEXT,
    raw_log     TEXT,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_results_device ON results(device_id, ended_at);
`

// Store serializes appends from concurrent orchestrators onto one SQLite
// database.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending []*OperationResult
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init results schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records a result. On persistence failure the result is queued in
// memory and ErrPersistence is returned; queued results are retried before
// the next append.
func (s *Store) Append(res *OperationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()

	if err := s.insert(res); err != nil {
		s.pending = append(s.pending, res)
		slog.Error("holding result in memory", "result", res.ID, "device", res.DeviceID, "err", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return nil
}

// Flush retries any results held in memory from earlier failed appends.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := s.flushLocked()
	if len(s.pending) > 0 {
		return fmt.Errorf("%w: %d results still held: %v",
			ErrPersistence, len(s.pending), utils.CombineErrors(errs))
	}
	return nil
}

// Pending reports how many results are held in memory awaiting retry.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) flushLocked() []error {
	if len(s.pending) == 0 {
		return nil
	}

	var errs []error
	remaining := s.pending[:0]
	for _, res := range s.pending {
		if err := s.insert(res); err != nil {
			errs = append(errs, err)
			remaining = append(remaining, res)
		}
	}
	s.pending = remaining
	return errs
}

func (s *Store) insert(res *OperationResult) error {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO results (id, device_id, kind, started_at, ended_at, outcome, metrics, command, raw_log, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.DeviceID, string(res.Kind),
		res.StartedAt.Format(time.RFC3339), res.EndedAt.Format(time.RFC3339),
		string(res.Outcome), string(metrics), res.Command, res.RawLog, res.Error,
	)
	return err
}

// ByDevice returns all results for a device in completion order.
func (s *Store) ByDevice(deviceID string) ([]*OperationResult, error) {
	rows, err := s.db.Query(
		`SELECT id, device_id, kind, started_at, ended_at, outcome, metrics, command, raw_log, error
		 FROM results WHERE device_id = ? ORDER BY ended_at, id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query results for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var results []*OperationResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// Latest returns the most recent result for a device, nil when none exists.
func (s *Store) Latest(deviceID string) (*OperationResult, error) {
	results, err := s.ByDevice(deviceID)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[len(results)-1], nil
}

func scanResult(rows *sql.Rows) (*OperationResult, error) {
	var res OperationResult
	var kind, outcome, started, ended string
	var metrics, command, rawLog, errText sql.NullString

	if err := rows.Scan(&res.ID, &res.DeviceID, &kind, &started, &ended,
		&outcome, &metrics, &command, &rawLog, &errText); err != nil {
		return nil, fmt.Errorf("scan result row: %w", err)
	}

	res.Kind = Kind(kind)
	res.Outcome = Outcome(outcome)
	res.Command = command.String
	res.RawLog = rawLog.String
	res.Error = errText.String

	var err error
	if res.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if res.EndedAt, err = time.Parse(time.RFC3339, ended); err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}

	if metrics.Valid && metrics.String != "" && metrics.String != "null" {
		if err := json.Unmarshal([]byte(metrics.String), &res.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}

	return &res, nil
}
