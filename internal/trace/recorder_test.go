package trace

import (
	"context"
	"sync"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/trace/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SaveTrace_AssignsMonotonicSequence(t *testing.T) {
	r := NewRecorder(store.NewMemStore())
	ctx := context.Background()

	first, err := r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "f1", NodeName: "start", RunnerID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.CurrentSequence)
	assert.NotEmpty(t, first.TraceID)

	second, err := r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "f1", NodeName: "n1", RunnerID: "r2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.CurrentSequence)

	other, err := r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "f2", NodeName: "start", RunnerID: "r3"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.CurrentSequence, "sequences are tracked independently per flow")
}

func TestRecorder_GetByRunnerIDAndFlowID(t *testing.T) {
	r := NewRecorder(store.NewMemStore())
	ctx := context.Background()

	_, err := r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "f1", NodeName: "start", RunnerID: "r1"})
	require.NoError(t, err)
	_, err = r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "f1", NodeName: "n1", RunnerID: "r2"})
	require.NoError(t, err)

	byRunner, err := r.GetByRunnerID(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "n1", byRunner.NodeName)

	byFlow, err := r.GetByFlowID(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, byFlow, 2)
	assert.Equal(t, []int64{1, 2}, []int64{byFlow[0].CurrentSequence, byFlow[1].CurrentSequence})
}

func TestRecorder_GetByRunnerID_NotFound(t *testing.T) {
	r := NewRecorder(store.NewMemStore())
	_, err := r.GetByRunnerID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecorder_NextSequence_ConcurrentIsUnique(t *testing.T) {
	r := NewRecorder(store.NewMemStore())
	ctx := context.Background()

	const n = 50
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.SaveTrace(ctx, flowtypes.TraceRecord{FlowID: "concurrent", NodeName: "n"})
			require.NoError(t, err)
			seen <- rec.CurrentSequence
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for seq := range seen {
		assert.False(t, unique[seq], "sequence %d assigned twice", seq)
		unique[seq] = true
	}
	assert.Len(t, unique, n)
}
