package store

import (
	"context"
	"sync"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// MemStore is an in-memory FCB queue backend. It mirrors the teacher's
// MemStore (graph/store/memory.go): thread-safe, single-process, used for
// tests and for the executor's standalone/dev mode.
type MemStore struct {
	mu    sync.RWMutex
	flows map[string]flowtypes.FlowState
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{flows: make(map[string]flowtypes.FlowState)}
}

// Save upserts the flow document by flow_id.
func (m *MemStore) Save(_ context.Context, flowID string, state flowtypes.FlowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[flowID] = state
	return nil
}

// Load returns the persisted document for flow_id, or ErrNotFound.
func (m *MemStore) Load(_ context.Context, flowID string) (flowtypes.FlowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.flows[flowID]
	if !ok {
		return flowtypes.FlowState{}, ErrNotFound
	}
	return state, nil
}

// LoadAll returns every persisted flow document, for recovery on boot.
func (m *MemStore) LoadAll(_ context.Context) ([]flowtypes.FlowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]flowtypes.FlowState, 0, len(m.flows))
	for _, state := range m.flows {
		out = append(out, state)
	}
	return out, nil
}

// Delete removes the flow document, e.g. when the flow reaches STOP.
func (m *MemStore) Delete(_ context.Context, flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowID)
	return nil
}
