package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-file FCB queue backend: zero external
// dependencies, WAL mode for concurrent reads. It plays the dev/test role
// the teacher's SQLiteStore plays for workflow state (graph/store/sqlite.go)
// -- one operator-facing alternative to the MongoStore for running the Flow
// Executor without standing up MongoDB.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (use ":memory:" for tests) and creates the
// flows table if it doesn't already exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("fcb sqlite store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fcb sqlite store: wal mode: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS flows (
			flow_id TEXT PRIMARY KEY,
			state   TEXT NOT NULL
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fcb sqlite store: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the flow document by flow_id (idempotent).
func (s *SQLiteStore) Save(ctx context.Context, flowID string, state flowtypes.FlowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("fcb sqlite store: marshal %q: %w", flowID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flows (flow_id, state) VALUES (?, ?)
		 ON CONFLICT(flow_id) DO UPDATE SET state = excluded.state`,
		flowID, raw,
	)
	if err != nil {
		return fmt.Errorf("fcb sqlite store: save %q: %w", flowID, err)
	}
	return nil
}

// Load returns the persisted document for flow_id, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, flowID string) (flowtypes.FlowState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM flows WHERE flow_id = ?`, flowID).Scan(&raw)
	if err == sql.ErrNoRows {
		return flowtypes.FlowState{}, ErrNotFound
	}
	if err != nil {
		return flowtypes.FlowState{}, fmt.Errorf("fcb sqlite store: load %q: %w", flowID, err)
	}
	var state flowtypes.FlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return flowtypes.FlowState{}, fmt.Errorf("fcb sqlite store: decode %q: %w", flowID, err)
	}
	return state, nil
}

// LoadAll returns every persisted flow document, for recovery on boot.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]flowtypes.FlowState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM flows`)
	if err != nil {
		return nil, fmt.Errorf("fcb sqlite store: load all: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []flowtypes.FlowState
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("fcb sqlite store: scan: %w", err)
		}
		var state flowtypes.FlowState
		if err := json.Unmarshal(raw, &state); err != nil {
			continue // per-document decode failures are skipped, not fatal to recovery
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// Delete removes the flow document, e.g. when the flow reaches STOP.
func (s *SQLiteStore) Delete(ctx context.Context, flowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE flow_id = ?`, flowID)
	if err != nil {
		return fmt.Errorf("fcb sqlite store: delete %q: %w", flowID, err)
	}
	return nil
}
