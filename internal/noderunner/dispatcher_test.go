package noderunner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullEmitter struct{}

func (nullEmitter) Emit(obslog.Event)           {}
func (nullEmitter) Flush(context.Context) error { return nil }

func newTestDispatcher(t *testing.T, npuAddr string) *Dispatcher {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	session := NewSession(mr.Addr(), 30)
	require.NoError(t, session.Add(context.Background(), "npu-1", npuAddr))

	scheduler := NewScheduler(session)
	secrets := NewSecretResolver("http://unused")
	return NewDispatcher(scheduler, secrets, "http://self", nullEmitter{})
}

func TestDispatcher_HandleResult_UnknownRunnerID(t *testing.T) {
	d := newTestDispatcher(t, "http://unused")
	err := d.HandleResult("nope", flowtypes.Outputs{Status: "DONE"})
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestDispatcher_HandleLog_UnknownRunnerID(t *testing.T) {
	d := newTestDispatcher(t, "http://unused")
	err := d.HandleLog("nope", "a log line")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

// TestDispatcher_RunNode_CompletesOnResultCallback drives RunNode against a
// fake NPU that immediately calls back to the dispatcher's own HTTP server
// with a terminal result, verifying the inflight channel unblocks RunNode
// with the delivered outputs.
func TestDispatcher_RunNode_CompletesOnResultCallback(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	session := NewSession(mr.Addr(), 30)
	scheduler := NewScheduler(session)
	secrets := NewSecretResolver("http://unused")

	var d *Dispatcher
	npu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run-node" {
			// The dispatcher's reachability probe.
			w.WriteHeader(http.StatusOK)
			return
		}
		var req runNodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusOK)

		payload, _ := json.Marshal(flowtypes.Outputs{Status: "DONE", Message: "ok"})
		resp, err := http.Post(req.ResultURL, "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
	}))
	defer npu.Close()

	require.NoError(t, session.Add(context.Background(), "npu-1", npu.URL))

	d = NewDispatcher(scheduler, secrets, "http://self", nullEmitter{})
	server := NewServer(session, d)
	relay := httptest.NewServer(server.Router())
	defer relay.Close()
	d.selfURL = relay.URL

	data, err := d.RunNode(context.Background(), "n1", "echo hi", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "DONE", data.Outputs.Status)
}
