package store

import (
	"context"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_NextSequenceIsDenseAndIncreasing(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		seq, err := s.NextSequence(ctx, "flow-1")
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}

	// A different flow's counter starts independently at 1.
	seq, err := s.NextSequence(ctx, "flow-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	seq, err := s.NextSequence(ctx, "flow-1")
	require.NoError(t, err)

	rec := flowtypes.TraceRecord{
		TraceID:         "t1",
		FlowID:          "flow-1",
		RunnerID:        "r1",
		NodeName:        "start",
		CurrentSequence: seq,
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.GetByRunnerID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.GetByRunnerID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetByFlowIDOrdersBySequence(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, name := range []string{"start", "n1", "n2"} {
		seq, err := s.NextSequence(ctx, "flow-1")
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, flowtypes.TraceRecord{
			TraceID: name, FlowID: "flow-1", RunnerID: name, NodeName: name, CurrentSequence: seq,
		}))
	}

	recs, err := s.GetByFlowID(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"start", "n1", "n2"}, []string{recs[0].NodeName, recs[1].NodeName, recs[2].NodeName})
}
