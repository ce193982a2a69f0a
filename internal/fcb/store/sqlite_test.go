package store

import (
	"context"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SaveLoadDelete(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	state := flowtypes.FlowState{
		FlowID: "f1",
		Status: flowtypes.StatusStart,
		Flow: flowtypes.Flow{
			Nodes:    map[string]flowtypes.Node{"n1": {Name: "n1", Code: "ZWNobyBoaQ=="}},
			CurrNode: "n1",
			CurrInp:  map[string]interface{}{"a": float64(1)},
		},
	}

	require.NoError(t, s.Save(ctx, "f1", state))

	got, err := s.Load(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, "f1"))
	_, err = s.Load(ctx, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SaveUpserts(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "f1", flowtypes.FlowState{FlowID: "f1", Status: flowtypes.StatusStart}))
	require.NoError(t, s.Save(ctx, "f1", flowtypes.FlowState{FlowID: "f1", Status: flowtypes.StatusPause}))

	got, err := s.Load(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, flowtypes.StatusPause, got.Status)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_LoadUnknown(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
