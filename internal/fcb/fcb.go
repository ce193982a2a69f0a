// Package fcb implements the Flow Control Block engine: the per-flow state
// machine that advances a flow one node at a time, driving the
// dispatch-await-hook loop described in spec.md §4.1, and checkpointing
// state durably after each step.
//
// The shape follows the teacher's graph.Engine/graph.Checkpoint pair
// (graph/engine.go, graph/checkpoint.go): an Options-configured driver
// holding a store and an emitter. Unlike the teacher, FCB state is fixed
// (not a generic S) and there is exactly one step in flight per FCB, so
// there is no reducer/merge stage -- pointer advance is a straight
// pop-from-queue.
package fcb

import (
	"context"
	"sync"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/obslog"
)

// Dispatcher is the synchronous façade the FCB uses to run one node. It is
// implemented by the Node Runner HTTP client (see internal/executor).
type Dispatcher interface {
	RunNode(ctx context.Context, nodeName, code string, inputs map[string]interface{}) (flowtypes.NodeExecutionData, error)
}

// Tracer persists one trace record per step. Implemented by the Trace
// Recorder HTTP client.
type Tracer interface {
	SaveTrace(ctx context.Context, flowID string, flowLvl int, rec flowtypes.TraceRecord) error
}

// CheckpointFunc durably upserts the FCB's current flow state, keyed by
// flow_id. Must be idempotent.
type CheckpointFunc func(ctx context.Context, flowID string, state flowtypes.FlowState) error

// StopFunc deletes the FCB's durable document. Called when a flow reaches a
// pointer with no successors, or is explicitly stopped.
type StopFunc func(ctx context.Context, flowID string) error

// FCB drives one flow from its current pointer to completion, pause, or
// stop, emitting a trace record for every step it runs.
type FCB struct {
	mu sync.Mutex

	flowID        string
	flow          flowtypes.Flow
	pendingQueue  []flowtypes.PendingItem
	status        string

	dispatcher Dispatcher
	tracer     Tracer
	checkpoint CheckpointFunc
	stop       StopFunc
	emitter    obslog.Emitter

	// submit enqueues this FCB's next step onto the shared worker pool.
	// Set by the Queue that owns this FCB; nil is valid for FCBs driven
	// directly in tests (Step is then called by hand).
	submit func(f *FCB)
}

// New constructs an FCB in the QUEUED state for the given flow.
func New(flowID string, flow flowtypes.Flow, dispatcher Dispatcher, tracer Tracer, checkpoint CheckpointFunc, stop StopFunc, emitter obslog.Emitter) *FCB {
	return &FCB{
		flowID:     flowID,
		flow:       flow,
		status:     flowtypes.StatusQueued,
		dispatcher: dispatcher,
		tracer:     tracer,
		checkpoint: checkpoint,
		stop:       stop,
		emitter:    emitter,
	}
}

// FlowID returns the FCB's identity.
func (f *FCB) FlowID() string { return f.flowID }

// Status returns the FCB's current state under lock.
func (f *FCB) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// setSubmit wires the FCB to the shared worker pool. Internal to the Queue.
func (f *FCB) setSubmit(submit func(f *FCB)) {
	f.submit = submit
}

// Start transitions QUEUED or PAUSE into START and submits one step. From
// any other status it is a no-op (spec.md §4.1 state table).
func (f *FCB) Start(ctx context.Context) {
	f.mu.Lock()
	switch f.status {
	case flowtypes.StatusQueued, flowtypes.StatusPause:
		f.status = flowtypes.StatusStart
	default:
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.submitStep()
}

// Pause transitions START into PAUSE. A step already in flight runs to
// completion and checkpoints; step 7 of the algorithm becomes a no-op
// because it observes status != START.
func (f *FCB) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == flowtypes.StatusStart {
		f.status = flowtypes.StatusPause
	}
}

// Resume transitions PAUSE back to START and submits one new step.
// Resuming a non-paused FCB (including STOP, per spec.md §9) is a no-op.
func (f *FCB) Resume(ctx context.Context) {
	f.mu.Lock()
	if f.status != flowtypes.StatusPause {
		f.mu.Unlock()
		return
	}
	f.status = flowtypes.StatusStart
	f.mu.Unlock()
	f.submitStep()
}

// Stop forces the FCB to STOP. An in-flight dispatch is not cancelled; when
// it returns, Step records its trace, then sees STOP and neither
// checkpoints nor submits a further step.
func (f *FCB) Stop(ctx context.Context) {
	f.mu.Lock()
	f.status = flowtypes.StatusStop
	f.mu.Unlock()
	if f.stop != nil {
		_ = f.stop(ctx, f.flowID)
	}
}

func (f *FCB) submitStep() {
	if f.submit != nil {
		f.submit(f)
		return
	}
	// No worker pool wired: run synchronously (used by direct tests).
	f.Step(context.Background())
}

// GetSaveState returns the durable snapshot of this FCB: the flow
// definition, pointer, and status. pending_queue is intentionally excluded
// -- see spec.md §9's design note on why it is always rebuildable.
func (f *FCB) GetSaveState() flowtypes.FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return flowtypes.FlowState{
		FlowID: f.flowID,
		Flow:   f.flow,
		Status: f.status,
	}
}

// LoadFromSaveState restores an FCB from a previously persisted FlowState.
// Recovery always resumes at QUEUED per spec.md §4.1's recovery contract,
// regardless of the persisted Status value.
func LoadFromSaveState(state flowtypes.FlowState, dispatcher Dispatcher, tracer Tracer, checkpoint CheckpointFunc, stop StopFunc, emitter obslog.Emitter) *FCB {
	f := New(state.FlowID, state.Flow, dispatcher, tracer, checkpoint, stop, emitter)
	f.status = flowtypes.StatusQueued
	return f
}

// Step runs exactly one invocation of the FCB's step algorithm
// (spec.md §4.1 "_run_node"): dispatch, trace, enqueue successors, advance
// the pointer, checkpoint, and -- if still START -- submit the next step.
func (f *FCB) Step(ctx context.Context) {
	f.mu.Lock()
	if f.status != flowtypes.StatusStart {
		f.mu.Unlock()
		return
	}
	curr := f.flow.CurrNode
	inp := f.flow.CurrInp
	f.mu.Unlock()

	if curr == "" {
		f.mu.Lock()
		f.status = flowtypes.StatusStop
		f.mu.Unlock()
		f.finish(ctx)
		return
	}

	f.mu.Lock()
	node := f.flow.Nodes[curr]
	f.mu.Unlock()

	f.emit(obslog.Event{FlowID: f.flowID, NodeName: node.Name, Msg: "step_start"})

	result, err := f.dispatcher.RunNode(ctx, node.Name, node.Code, inp)
	if err != nil {
		result = flowtypes.NodeExecutionData{
			Status: "failed",
			Inputs: inp,
			Outputs: flowtypes.Outputs{
				Status:  "error",
				Message: err.Error(),
			},
		}
	}

	rec := flowtypes.TraceRecord{
		FlowID:   f.flowID,
		FlowLvl:  node.FlowLvl,
		NodeName: node.Name,
		Code:     node.Code,
		Status:   result.Status,
		Inputs:   result.Inputs,
		Logs:     result.Logs,
		Outputs:  result.Outputs,
	}
	if traceErr := f.tracer.SaveTrace(ctx, f.flowID, node.FlowLvl, rec); traceErr != nil {
		f.emit(obslog.Event{FlowID: f.flowID, NodeName: node.Name, Msg: "trace_save_failed", Meta: map[string]interface{}{"error": traceErr.Error()}})
	}

	failed := result.Status == "failed" || result.Outputs.Status == "error"

	f.mu.Lock()
	if f.status == flowtypes.StatusStop {
		// Stopped while the dispatch was in flight: the durable document is
		// already deleted, so the result is not checkpointed or advanced.
		f.mu.Unlock()
		return
	}
	if failed {
		f.status = flowtypes.StatusStop
		f.mu.Unlock()
		f.emit(obslog.Event{FlowID: f.flowID, NodeName: node.Name, Msg: "step_failed", Meta: map[string]interface{}{"message": result.Outputs.Message}})
		f.finish(ctx)
		return
	}

	unknown := ""
	for _, name := range result.Outputs.Nodes {
		if _, ok := f.flow.Nodes[name]; !ok {
			unknown = name
			break
		}
		f.pendingQueue = append(f.pendingQueue, flowtypes.PendingItem{NodeName: name, Inputs: result.Outputs.Outputs})
	}
	if unknown != "" {
		f.status = flowtypes.StatusStop
		f.mu.Unlock()
		f.emit(obslog.Event{FlowID: f.flowID, NodeName: unknown, Msg: "unknown_successor", Meta: map[string]interface{}{"error": ErrUnknownSuccessor.Error()}})
		f.finish(ctx)
		return
	}

	if len(f.pendingQueue) == 0 {
		f.status = flowtypes.StatusStop
		f.flow.CurrNode = ""
		f.mu.Unlock()
		f.finish(ctx)
		return
	}

	next := f.pendingQueue[0]
	f.pendingQueue = f.pendingQueue[1:]
	f.flow.CurrNode = next.NodeName
	f.flow.CurrInp = next.Inputs
	state := flowtypes.FlowState{FlowID: f.flowID, Flow: f.flow, Status: f.status}
	stillRunning := f.status == flowtypes.StatusStart
	f.mu.Unlock()

	if f.checkpoint != nil {
		if err := f.checkpoint(ctx, f.flowID, state); err != nil {
			f.emit(obslog.Event{FlowID: f.flowID, NodeName: node.Name, Msg: "checkpoint_failed", Meta: map[string]interface{}{"error": err.Error()}})
		}
	}

	if stillRunning {
		f.submitStep()
	}
}

// finish transitions a terminal FCB out of the queue and deletes its
// durable document.
func (f *FCB) finish(ctx context.Context) {
	if f.stop != nil {
		if err := f.stop(ctx, f.flowID); err != nil {
			f.emit(obslog.Event{FlowID: f.flowID, Msg: "finish_delete_failed", Meta: map[string]interface{}{"error": err.Error()}})
		}
	}
}

func (f *FCB) emit(event obslog.Event) {
	if f.emitter != nil {
		f.emitter.Emit(event)
	}
}
