package store

import (
	"context"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_SaveLoadDelete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	state := flowtypes.FlowState{FlowID: "f1", Status: flowtypes.StatusStart}

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

func TestMemStore_LoadUnknown(t *testing.T) {
	s := NewMemStore()
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
