package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the production Trace Recorder backend: one row per trace
// plus a sequences table used to hand out each flow's current_sequence
// atomically across multiple Trace Recorder instances.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens dsn, verifies connectivity, and creates the required
// tables if they don't already exist.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("trace mysql store: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("trace mysql store: ping: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	tracesTable := `
		CREATE TABLE IF NOT EXISTS traces (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			trace_id VARCHAR(255) NOT NULL UNIQUE,
			flow_id VARCHAR(255) NOT NULL,
			flow_lvl INT NOT NULL,
			node_name VARCHAR(255) NOT NULL,
			runner_id VARCHAR(255) NOT NULL UNIQUE,
			record JSON NOT NULL,
			current_sequence BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_flow_id (flow_id, current_sequence)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := s.db.ExecContext(ctx, tracesTable); err != nil {
		return fmt.Errorf("trace mysql store: create traces table: %w", err)
	}

	sequencesTable := `
		CREATE TABLE IF NOT EXISTS trace_sequences (
			flow_id VARCHAR(255) NOT NULL PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := s.db.ExecContext(ctx, sequencesTable); err != nil {
		return fmt.Errorf("trace mysql store: create sequences table: %w", err)
	}
	return nil
}

// NextSequence atomically increments and returns flow_id's sequence
// counter inside a transaction, so concurrent Trace Recorder instances
// never hand out the same number twice.
func (s *MySQLStore) NextSequence(ctx context.Context, flowID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("trace mysql store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trace_sequences (flow_id, value) VALUES (?, 0) ON DUPLICATE KEY UPDATE value = value`,
		flowID,
	); err != nil {
		return 0, fmt.Errorf("trace mysql store: seed sequence: %w", err)
	}

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM trace_sequences WHERE flow_id = ? FOR UPDATE`, flowID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("trace mysql store: lock sequence: %w", err)
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE trace_sequences SET value = ? WHERE flow_id = ?`, next, flowID,
	); err != nil {
		return 0, fmt.Errorf("trace mysql store: update sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("trace mysql store: commit sequence: %w", err)
	}
	return next, nil
}

// Save inserts rec as a new row.
func (s *MySQLStore) Save(ctx context.Context, rec flowtypes.TraceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("trace mysql store: marshal: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, flow_id, flow_lvl, node_name, runner_id, record, current_sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, rec.FlowID, rec.FlowLvl, rec.NodeName, rec.RunnerID, raw, rec.CurrentSequence,
	)
	if err != nil {
		return fmt.Errorf("trace mysql store: save: %w", err)
	}
	return nil
}

// GetByRunnerID returns the record for runnerID, or ErrNotFound.
func (s *MySQLStore) GetByRunnerID(ctx context.Context, runnerID string) (flowtypes.TraceRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM traces WHERE runner_id = ?`, runnerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return flowtypes.TraceRecord{}, ErrNotFound
	}
	if err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace mysql store: get by runner_id: %w", err)
	}
	var rec flowtypes.TraceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace mysql store: decode: %w", err)
	}
	return rec, nil
}

// GetByFlowID returns every record for flowID, ordered by current_sequence.
func (s *MySQLStore) GetByFlowID(ctx context.Context, flowID string) ([]flowtypes.TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM traces WHERE flow_id = ? ORDER BY current_sequence ASC`, flowID)
	if err != nil {
		return nil, fmt.Errorf("trace mysql store: get by flow_id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []flowtypes.TraceRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("trace mysql store: scan: %w", err)
		}
		var rec flowtypes.TraceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("trace mysql store: decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
