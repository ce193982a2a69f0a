package fcb

import (
	"context"
	"sync"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	mu       sync.Mutex
	byName   map[string]flowtypes.NodeExecutionData
	byNameEr map[string]error
	calls    []string
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{byName: make(map[string]flowtypes.NodeExecutionData), byNameEr: make(map[string]error)}
}

func (s *stubDispatcher) RunNode(_ context.Context, nodeName, _ string, inputs map[string]interface{}) (flowtypes.NodeExecutionData, error) {
	s.mu.Lock()
	s.calls = append(s.calls, nodeName)
	s.mu.Unlock()
	if err, ok := s.byNameEr[nodeName]; ok {
		return flowtypes.NodeExecutionData{}, err
	}
	data := s.byName[nodeName]
	if data.Inputs == nil {
		data.Inputs = inputs
	}
	return data, nil
}

type stubTracer struct {
	mu   sync.Mutex
	recs []flowtypes.TraceRecord
}

func (s *stubTracer) SaveTrace(_ context.Context, flowID string, flowLvl int, rec flowtypes.TraceRecord) error {
	rec.FlowID = flowID
	rec.FlowLvl = flowLvl
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *stubTracer) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.NodeName
	}
	return out
}

func twoNodeFlow() flowtypes.Flow {
	return flowtypes.Flow{
		Nodes: map[string]flowtypes.Node{
			"start": {Name: "start", Code: "c1"},
			"n1":    {Name: "n1", Code: "c2"},
		},
		CurrNode: "start",
		CurrInp:  map[string]interface{}{"a": 1, "b": 2},
	}
}

func TestFCB_LinearFlow_RunsToStop(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.byName["start"] = flowtypes.NodeExecutionData{
		Status:  "done",
		Outputs: flowtypes.Outputs{Nodes: []string{"n1"}, Outputs: map[string]interface{}{"out": 3}},
	}
	dispatcher.byName["n1"] = flowtypes.NodeExecutionData{
		Status:  "done",
		Outputs: flowtypes.Outputs{Nodes: nil},
	}
	tracer := &stubTracer{}

	var saved flowtypes.FlowState
	checkpoint := func(_ context.Context, _ string, state flowtypes.FlowState) error {
		saved = state
		return nil
	}
	stopped := false
	stop := func(_ context.Context, _ string) error {
		stopped = true
		return nil
	}

	f := New("flow-1", twoNodeFlow(), dispatcher, tracer, checkpoint, stop, nil)
	f.Start(context.Background())

	assert.Equal(t, flowtypes.StatusStop, f.Status())
	assert.True(t, stopped)
	assert.Equal(t, []string{"start", "n1"}, tracer.names())
	assert.Equal(t, flowtypes.StatusStart, saved.Status, "the checkpoint taken mid-flow should reflect the in-progress status")
}

func TestFCB_UnknownSuccessor_Stops(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.byName["start"] = flowtypes.NodeExecutionData{
		Status:  "done",
		Outputs: flowtypes.Outputs{Nodes: []string{"does-not-exist"}},
	}
	tracer := &stubTracer{}
	stopped := false
	stop := func(_ context.Context, _ string) error {
		stopped = true
		return nil
	}

	f := New("flow-2", twoNodeFlow(), dispatcher, tracer, nil, stop, nil)
	f.Start(context.Background())

	assert.Equal(t, flowtypes.StatusStop, f.Status())
	assert.True(t, stopped)
}

func TestFCB_DispatchFailure_Stops(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.byNameEr["start"] = ErrDispatchFailed
	tracer := &stubTracer{}

	f := New("flow-3", twoNodeFlow(), dispatcher, tracer, nil, func(context.Context, string) error { return nil }, nil)
	f.Start(context.Background())

	assert.Equal(t, flowtypes.StatusStop, f.Status())
	require.Len(t, tracer.recs, 1)
	assert.Equal(t, "error", tracer.recs[0].Outputs.Status)
}

func TestFCB_PauseStopsBeforeNextStep(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.byName["start"] = flowtypes.NodeExecutionData{
		Status:  "done",
		Outputs: flowtypes.Outputs{Nodes: []string{"n1"}},
	}
	tracer := &stubTracer{}

	var submitted []string
	f := New("flow-4", twoNodeFlow(), dispatcher, tracer, nil, func(context.Context, string) error { return nil }, nil)
	f.setSubmit(func(fcb *FCB) {
		submitted = append(submitted, fcb.flowID)
		// Simulate the flow being paused the instant Start submits its
		// step, before the worker pool ever runs it.
		fcb.Pause()
	})

	f.Start(context.Background())

	assert.Equal(t, flowtypes.StatusPause, f.Status())
	assert.Equal(t, []string{"flow-4"}, submitted)
}

func TestFCB_ResumeOnNonPaused_NoOp(t *testing.T) {
	dispatcher := newStubDispatcher()
	tracer := &stubTracer{}
	f := New("flow-5", twoNodeFlow(), dispatcher, tracer, nil, nil, nil)

	f.Resume(context.Background())

	assert.Equal(t, flowtypes.StatusQueued, f.Status())
	assert.Empty(t, dispatcher.calls)
}

func TestLoadFromSaveState_AlwaysQueued(t *testing.T) {
	state := flowtypes.FlowState{FlowID: "flow-6", Flow: twoNodeFlow(), Status: flowtypes.StatusStop}
	f := LoadFromSaveState(state, newStubDispatcher(), &stubTracer{}, nil, nil, nil)

	assert.Equal(t, flowtypes.StatusQueued, f.Status())
}
