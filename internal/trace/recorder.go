// Package trace implements the Trace Recorder: durable, ordered storage of
// every node execution, keyed by flow_id and annotated with a per-flow
// monotonic current_sequence (spec.md §4.6).
package trace

import (
	"context"
	"fmt"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/trace/store"
	"github.com/google/uuid"
)

// Recorder assigns each incoming trace its flow's next sequence number and
// persists it.
type Recorder struct {
	store store.Store
}

// NewRecorder builds a Recorder over the given backend.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// SaveTrace assigns rec its flow's current_sequence and persists it. It
// implements fcb.Tracer's contract as consumed via the Trace Recorder's
// HTTP endpoint.
func (r *Recorder) SaveTrace(ctx context.Context, rec flowtypes.TraceRecord) (flowtypes.TraceRecord, error) {
	if rec.TraceID == "" {
		rec.TraceID = uuid.NewString()
	}

	seq, err := r.store.NextSequence(ctx, rec.FlowID)
	if err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace: assign sequence: %w", err)
	}
	rec.CurrentSequence = seq

	if err := r.store.Save(ctx, rec); err != nil {
		return flowtypes.TraceRecord{}, fmt.Errorf("trace: save: %w", err)
	}
	return rec, nil
}

// GetByRunnerID returns the single trace for a given runner_id.
func (r *Recorder) GetByRunnerID(ctx context.Context, runnerID string) (flowtypes.TraceRecord, error) {
	return r.store.GetByRunnerID(ctx, runnerID)
}

// GetByFlowID returns every trace recorded for a flow, in execution order.
func (r *Recorder) GetByFlowID(ctx context.Context, flowID string) ([]flowtypes.TraceRecord, error) {
	return r.store.GetByFlowID(ctx, flowID)
}
