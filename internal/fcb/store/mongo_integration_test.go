package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/require"
)

// TestMongoStoreIntegration exercises MongoStore against a real MongoDB
// instance.
//
// export TEST_MONGO_URI="mongodb://localhost:27017"
// go test -v -run TestMongoStoreIntegration ./internal/fcb/store
func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("skipping mongo integration test: set TEST_MONGO_URI to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewMongoStore(ctx, uri, "flowkit_test", "fcb_queue_test")
	require.NoError(t, err)
	defer s.Close(ctx)

	flowID := "mongo-it-flow"
	state := flowtypes.FlowState{FlowID: flowID, Status: flowtypes.StatusStart}

	require.NoError(t, s.Save(ctx, flowID, state))

	got, err := s.Load(ctx, flowID)
	require.NoError(t, err)
	require.Equal(t, state.Status, got.Status)

	require.NoError(t, s.Delete(ctx, flowID))
	_, err = s.Load(ctx, flowID)
	require.ErrorIs(t, err, ErrNotFound)
}
