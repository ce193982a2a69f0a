// Package store provides the Trace Recorder's persistence backends.
package store

import (
	"context"
	"errors"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// ErrNotFound is returned when a lookup names a trace_id, runner_id, or
// flow_id this store has no record of.
var ErrNotFound = errors.New("trace store: not found")

// Store persists TraceRecords and assigns each flow its own monotonically
// increasing current_sequence, per spec.md §4.6. NextSequence must be
// atomic even with multiple Trace Recorder instances sharing one store.
type Store interface {
	NextSequence(ctx context.Context, flowID string) (int64, error)
	Save(ctx context.Context, rec flowtypes.TraceRecord) error
	GetByRunnerID(ctx context.Context, runnerID string) (flowtypes.TraceRecord, error)
	GetByFlowID(ctx context.Context, flowID string) ([]flowtypes.TraceRecord, error)
}
