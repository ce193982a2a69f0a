package store

import (
	"context"
	"sync"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// MemStore is an in-memory Trace Recorder backend, for tests and
// single-process dev mode. A per-flow mutex-guarded counter makes
// NextSequence atomic without needing a database round trip.
type MemStore struct {
	mu        sync.Mutex
	sequences map[string]int64
	byRunner  map[string]flowtypes.TraceRecord
	byFlow    map[string][]flowtypes.TraceRecord
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		sequences: make(map[string]int64),
		byRunner:  make(map[string]flowtypes.TraceRecord),
		byFlow:    make(map[string][]flowtypes.TraceRecord),
	}
}

// NextSequence returns the next sequence number for flowID, starting at 1.
func (m *MemStore) NextSequence(_ context.Context, flowID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[flowID]++
	return m.sequences[flowID], nil
}

// Save records rec, indexed by both its runner_id and flow_id.
func (m *MemStore) Save(_ context.Context, rec flowtypes.TraceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRunner[rec.RunnerID] = rec
	m.byFlow[rec.FlowID] = append(m.byFlow[rec.FlowID], rec)
	return nil
}

// GetByRunnerID returns the record for runnerID, or ErrNotFound.
func (m *MemStore) GetByRunnerID(_ context.Context, runnerID string) (flowtypes.TraceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byRunner[runnerID]
	if !ok {
		return flowtypes.TraceRecord{}, ErrNotFound
	}
	return rec, nil
}

// GetByFlowID returns every record for flowID in the order they were saved.
func (m *MemStore) GetByFlowID(_ context.Context, flowID string) ([]flowtypes.TraceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]flowtypes.TraceRecord(nil), m.byFlow[flowID]...), nil
}
