package store

import (
	"context"
	"os"
	"testing"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/stretchr/testify/require"
)

// TestMySQLStoreIntegration exercises MySQLStore against a real MySQL
// database.
//
// export TEST_TRACE_MYSQL_DSN="user:password@tcp(localhost:3306)/flowkit_test"
// go test -v -run TestMySQLStoreIntegration ./internal/trace/store
func TestMySQLStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_TRACE_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping mysql integration test: set TEST_TRACE_MYSQL_DSN to run")
	}

	s, err := NewMySQLStore(dsn)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	flowID := "mysql-it-flow"

	seq, err := s.NextSequence(ctx, flowID)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	rec := flowtypes.TraceRecord{
		TraceID: "trace-1", FlowID: flowID, NodeName: "start", RunnerID: "runner-1", CurrentSequence: seq,
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.GetByRunnerID(ctx, "runner-1")
	require.NoError(t, err)
	require.Equal(t, "start", got.NodeName)

	byFlow, err := s.GetByFlowID(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, byFlow, 1)
}
