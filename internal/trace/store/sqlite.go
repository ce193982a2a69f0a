package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-file Trace Recorder backend: the same two tables
// (traces, with fewer indexed columns, and trace_sequences) and
// transactional sequence-assignment discipline as MySQLStore
// (internal/trace/store/mysql.go), traded for zero external setup -- the
// operator-facing counterpart to the teacher's SQLiteStore
// (graph/store/sqlite.go) for running the Trace Recorder standalone.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (use ":memory:" for tests) and creates the
// required tables if they don't already exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace sqlite store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("trace sqlite store: wal mode: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS traces (
			trace_id         TEXT PRIMARY KEY,
			flow_id          TEXT NOT NULL,
			runner_id        TEXT NOT NULL UNIQUE,
			current_sequence INTEGER NOT NULL,
			record           TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_traces_flow_id ON traces (flow_id, current_sequence);
		CREATE TABLE IF NOT EXISTS trace_sequences (
			flow_id TEXT PRIMARY KEY,
			value   INTEGER NOT NULL DEFAULT 0
		);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("trace sqlite store: create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NextSequence atomically increments and returns flow_id's sequence
// counter inside a transaction. SQLite's single-writer model makes this
// trivially linearizable within one process (spec.md §9).
func (s *SQLiteStore) NextSequence(ctx context.Context, flowID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("trace sqlite store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trace_sequences (flow_id, value) VALUES (?, 0)
		 ON CONFLICT(flow_id) DO NOTHING`, flowID,
	); err != nil {
		return 0, fmt.Errorf("trace sqlite store: seed sequence: %w", err)
	}

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM trace_sequences WHERE flow_id = ?`, flowID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("trace sqlite store: read sequence: %w", err)
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE trace_sequences SET value = ? WHERE flow_id = ?`, next, flowID,
	); err != nil {
		return 0, fmt.Errorf("trace sqlite store: update sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("trace sqlite store: commit sequence: %w", err)
	}
	return next, nil
}

// Save inserts rec as a new row.
func (s *SQLiteStore) Save(ctx context.Context, rec flowtypes.TraceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trace sqlite store: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, flow_id, runner_id, current_sequence, record)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.TraceID, rec.FlowID, rec.RunnerID, rec.CurrentSequence, raw,
	)
	if err != nil {
		return fmt.Errorf("trace sqlite store: save: %w", err)
	}
	return nil
}

// GetByRunnerID returns the record for runnerID, or ErrNotFound.
func (s *SQLiteStore) GetByRunnerID(ctx context.Context, runnerID string) (flowtypes.TraceRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM traces WHERE runner_id = ?`, runnerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return flowtypes.TraceRecord{}, ErrNotFound
	}
	if err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace sqlite store: get by runner_id: %w", err)
	}
	var rec flowtypes.TraceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace sqlite store: decode: %w", err)
	}
	return rec, nil
}

// GetByFlowID returns every record for flowID, ordered by current_sequence.
func (s *SQLiteStore) GetByFlowID(ctx context.Context, flowID string) ([]flowtypes.TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM traces WHERE flow_id = ? ORDER BY current_sequence ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("trace sqlite store: get by flow_id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []flowtypes.TraceRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("trace sqlite store: scan: %w", err)
		}
		var rec flowtypes.TraceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("trace sqlite store: decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
