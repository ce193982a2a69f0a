package fcb

import (
	"context"
	"testing"
	"time"

	"github.com/flowkit-run/flowkit/internal/fcb/store"
	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestQueue_Add_PersistsAndRunsToCompletion(t *testing.T) {
	memStore := store.NewMemStore()
	dispatcher := newStubDispatcher()
	dispatcher.byName["start"] = flowtypes.NodeExecutionData{Status: "done", Outputs: flowtypes.Outputs{Nodes: []string{"n1"}}}
	dispatcher.byName["n1"] = flowtypes.NodeExecutionData{Status: "done"}
	tracer := &stubTracer{}

	q := NewQueue(memStore, dispatcher, tracer, nil, 4)

	flowID, err := q.Add(context.Background(), twoNodeFlow())
	require.NoError(t, err)

	_, err = memStore.Load(context.Background(), flowID)
	require.NoError(t, err, "adding a flow must checkpoint it before returning")

	require.NoError(t, q.Start(context.Background(), flowID))

	waitUntil(t, time.Second, func() bool {
		return len(tracer.names()) == 2
	})
	q.CleanUp()

	_, err = memStore.Load(context.Background(), flowID)
	assert.ErrorIs(t, err, store.ErrNotFound, "a completed flow's document must be deleted")
}

func TestQueue_UnknownFlow_Errors(t *testing.T) {
	q := NewQueue(store.NewMemStore(), newStubDispatcher(), &stubTracer{}, nil, 4)

	assert.ErrorIs(t, q.Pause("nope"), ErrUnknownFlow)
	assert.ErrorIs(t, q.Resume(context.Background(), "nope"), ErrUnknownFlow)
	assert.ErrorIs(t, q.Stop(context.Background(), "nope"), ErrUnknownFlow)
	assert.ErrorIs(t, q.Start(context.Background(), "nope"), ErrUnknownFlow)
}

func TestQueue_RecoverFromStorage_ResumesPersistedFlows(t *testing.T) {
	memStore := store.NewMemStore()
	flowID := "recovered-flow"
	require.NoError(t, memStore.Save(context.Background(), flowID, flowtypes.FlowState{
		FlowID: flowID,
		Flow:   twoNodeFlow(),
		Status: flowtypes.StatusPause,
	}))

	dispatcher := newStubDispatcher()
	dispatcher.byName["start"] = flowtypes.NodeExecutionData{Status: "done", Outputs: flowtypes.Outputs{Nodes: []string{"n1"}}}
	dispatcher.byName["n1"] = flowtypes.NodeExecutionData{Status: "done"}
	tracer := &stubTracer{}

	q := NewQueue(memStore, dispatcher, tracer, nil, 4)
	require.NoError(t, q.RecoverFromStorage(context.Background()))

	waitUntil(t, time.Second, func() bool {
		return len(tracer.names()) == 2
	})
	q.CleanUp()
}
