// Package npu implements the NPU Worker: the process that actually
// executes one node's code and reports the result back to the Node Runner
// that dispatched it (spec.md §4.7, an opaque collaborator beyond its wire
// contract).
package npu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/google/uuid"
)

// metricsPollInterval matches spec.md §4.7's ~7s heartbeat cadence.
const metricsPollInterval = 7 * time.Second

// Worker is one NPU: it registers with a Node Runner, accepts /run-node
// jobs, and reports results, logs, and periodic metrics back.
type Worker struct {
	id             string
	selfAddr       string
	nodeRunnerAddr string
	sandbox        Sandbox
	client         *http.Client
	emitter        obslog.Emitter
	startedAt      time.Time

	queuedTasks     int64
	successfulTasks int64
	failedTasks     int64
}

// NewWorker builds a Worker with a freshly assigned id.
func NewWorker(selfAddr, nodeRunnerAddr string, sandbox Sandbox, emitter obslog.Emitter) *Worker {
	return &Worker{
		id:             uuid.NewString(),
		selfAddr:       selfAddr,
		nodeRunnerAddr: nodeRunnerAddr,
		sandbox:        sandbox,
		client:         &http.Client{Timeout: 10 * time.Second},
		emitter:        emitter,
		startedAt:      time.Now(),
	}
}

// ID returns this worker's identity.
func (w *Worker) ID() string { return w.id }

// Register posts this worker's address to the Node Runner's NPU registry.
func (w *Worker) Register(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"id": w.id, "address": w.selfAddr})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.nodeRunnerAddr+"/npu/add", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("npu: register: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("npu: register: status %d", resp.StatusCode)
	}
	return nil
}

// RunHeartbeat posts metrics to the Node Runner every metricsPollInterval
// until ctx is cancelled.
func (w *Worker) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.postMetrics(ctx)
		}
	}
}

func (w *Worker) postMetrics(ctx context.Context) {
	metrics := flowtypes.NpuMetrics{
		Uptime:          time.Since(w.startedAt).Seconds(),
		SuccessfulTasks: atomic.LoadInt64(&w.successfulTasks),
		FailedTasks:     atomic.LoadInt64(&w.failedTasks),
		QueuedTasks:     atomic.LoadInt64(&w.queuedTasks),
	}
	body, _ := json.Marshal(metrics)
	poolURL := fmt.Sprintf("%s/npu/pool/%s", w.nodeRunnerAddr, w.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, poolURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.emit(obslog.Event{Msg: "heartbeat_failed", Meta: map[string]interface{}{"error": err.Error()}})
		return
	}
	resp.Body.Close()
}

// Dispatch runs one job asynchronously: Execute via the sandbox, stream
// logs, then post the terminal result.
func (w *Worker) Dispatch(runnerID, nodeName, code string, inputs map[string]interface{}, resultURL, logURL string) {
	atomic.AddInt64(&w.queuedTasks, 1)
	defer atomic.AddInt64(&w.queuedTasks, -1)

	ctx := context.Background()
	outputs, logs, err := w.sandbox.Execute(ctx, code, inputs)
	for _, line := range logs {
		w.postLog(ctx, logURL, line)
	}

	if err != nil {
		atomic.AddInt64(&w.failedTasks, 1)
		outputs = flowtypes.Outputs{Status: "ERROR", Message: err.Error()}
	} else {
		atomic.AddInt64(&w.successfulTasks, 1)
		if outputs.Status == "" {
			outputs.Status = "DONE"
		}
	}

	w.postResult(ctx, resultURL, outputs)
}

func (w *Worker) postLog(ctx context.Context, logURL, line string) {
	u, err := url.Parse(logURL)
	if err != nil {
		return
	}
	q := u.Query()
	q.Set("log", line)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (w *Worker) postResult(ctx context.Context, resultURL string, outputs flowtypes.Outputs) {
	body, err := json.Marshal(outputs)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resultURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.emit(obslog.Event{Msg: "result_post_failed", Meta: map[string]interface{}{"error": err.Error()}})
		return
	}
	resp.Body.Close()
}

func (w *Worker) emit(event obslog.Event) {
	if w.emitter != nil {
		w.emitter.Emit(event)
	}
}
