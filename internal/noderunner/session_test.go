package noderunner

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, expirySeconds int) (*Session, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewSession(mr.Addr(), expirySeconds), mr
}

func TestSession_AddAndGetByID(t *testing.T) {
	s, _ := newTestSession(t, 10)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "npu-1", "http://npu1:9000"))

	got, err := s.GetByID(ctx, "npu-1")
	require.NoError(t, err)
	assert.Equal(t, "http://npu1:9000", got.Address)
	assert.Equal(t, "alive", got.Status)
}

func TestSession_Add_Duplicate(t *testing.T) {
	s, _ := newTestSession(t, 10)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "npu-1", "http://npu1:9000"))
	err := s.Add(ctx, "npu-1", "http://npu1:9000")
	assert.ErrorIs(t, err, ErrNpuExists)
}

func TestSession_UpdateMetrics_Unknown(t *testing.T) {
	s, _ := newTestSession(t, 10)
	err := s.UpdateMetrics(context.Background(), "nope", flowtypes.NpuMetrics{})
	assert.ErrorIs(t, err, ErrNpuUnknown)
}

func TestSession_UpdateMetrics_RefreshesLastSeen(t *testing.T) {
	s, _ := newTestSession(t, 10)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "npu-1", "http://npu1:9000"))
	added, err := s.GetByID(ctx, "npu-1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateMetrics(ctx, "npu-1", flowtypes.NpuMetrics{QueuedTasks: 3}))

	got, err := s.GetByID(ctx, "npu-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Metrics.QueuedTasks)
	assert.True(t, got.LastSeen.After(added.LastSeen))
}

func TestSession_GetAll_ListsEverything(t *testing.T) {
	s, _ := newTestSession(t, 10)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "npu-1", "http://a"))
	require.NoError(t, s.Add(ctx, "npu-2", "http://b"))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSession_Sweeper_RemovesExpired(t *testing.T) {
	s, _ := newTestSession(t, 1)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "npu-1", "http://a"))

	// Backdate last_seen well past the expiry window instead of sleeping
	// in real time.
	stale := flowtypes.NpuStatus{ID: "npu-1", Address: "http://a", Status: "alive", LastSeen: time.Now().Add(-5 * time.Second)}
	require.NoError(t, s.write(ctx, stale))

	s.sweepOnce(ctx)

	_, err := s.GetByID(ctx, "npu-1")
	assert.ErrorIs(t, err, ErrNpuUnknown)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
