package noderunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/google/uuid"
)

// dispatchTimeout bounds how long a Node Runner waits for an NPU's
// result/log callbacks before failing the dispatch.
const dispatchTimeout = 30 * time.Second

// probeTimeout bounds the best-effort reachability check performed before
// handing a task to an NPU.
const probeTimeout = 5 * time.Second

// inflight is the one-shot completion primitive for a single dispatched
// task: the goroutine blocked in RunNode receives exactly one value (or
// the dispatch times out), replacing the polled-sleep loop the original
// implementation used (spec.md §9).
type inflight struct {
	record flowtypes.TaskRecord
	done   chan flowtypes.NodeExecutionData
	once   sync.Once
}

func (t *inflight) complete(data flowtypes.NodeExecutionData) {
	t.once.Do(func() { t.done <- data })
}

// runNodeRequest is the wire body posted to an NPU's /run-node endpoint.
type runNodeRequest struct {
	RunnerID string                 `json:"runner_id"`
	NodeName string                 `json:"node_name"`
	Code     string                 `json:"code"`
	Inputs   map[string]interface{} `json:"inputs"`
	ResultURL string                `json:"result_url"`
	LogURL    string                `json:"log_url"`
}

// Dispatcher is the Node Runner's core: it resolves secrets, picks an NPU,
// and drives one node execution to completion, presenting a synchronous
// RunNode call to the FCB even though the actual work happens over async
// HTTP callbacks (spec.md §4.3).
type Dispatcher struct {
	mu       sync.Mutex
	tasks    map[string]*inflight
	scheduler *Scheduler
	secrets  *SecretResolver
	selfURL  string
	client   *http.Client
	emitter  obslog.Emitter
}

// NewDispatcher builds a Dispatcher. selfURL is this Node Runner's own
// externally-reachable base URL, used to build the result/log callback
// URLs handed to the NPU.
func NewDispatcher(scheduler *Scheduler, secrets *SecretResolver, selfURL string, emitter obslog.Emitter) *Dispatcher {
	return &Dispatcher{
		tasks:     make(map[string]*inflight),
		scheduler: scheduler,
		secrets:   secrets,
		selfURL:   selfURL,
		client:    &http.Client{Timeout: probeTimeout},
		emitter:   emitter,
	}
}

// RunNode implements fcb.Dispatcher: it resolves secrets in code, selects
// an NPU, dispatches, and blocks until the result callback arrives or
// dispatchTimeout elapses.
func (d *Dispatcher) RunNode(ctx context.Context, nodeName, code string, inputs map[string]interface{}) (flowtypes.NodeExecutionData, error) {
	resolvedCode, err := d.secrets.Resolve(code)
	if err != nil {
		return flowtypes.NodeExecutionData{}, err
	}

	npu, err := d.scheduler.GetNextNpu(ctx)
	if err != nil {
		return flowtypes.NodeExecutionData{}, err
	}

	runnerID := uuid.NewString()
	task := &inflight{
		record: flowtypes.TaskRecord{
			RunnerID: runnerID,
			NodeName: nodeName,
			Code:     resolvedCode,
			Inputs:   inputs,
			Status:   flowtypes.TaskQueued,
		},
		done: make(chan flowtypes.NodeExecutionData, 1),
	}
	d.mu.Lock()
	d.tasks[runnerID] = task
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.tasks, runnerID)
		d.mu.Unlock()
	}()

	d.probe(npu.Address)

	if err := d.send(ctx, npu.Address, runnerID, nodeName, resolvedCode, inputs); err != nil {
		return flowtypes.NodeExecutionData{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	d.emitter.Emit(obslog.Event{FlowID: "", NodeName: nodeName, RunnerID: runnerID, Msg: "dispatched to npu", Meta: map[string]interface{}{"npu_id": npu.ID}})

	select {
	case data := <-task.done:
		return data, nil
	case <-time.After(dispatchTimeout):
		return flowtypes.NodeExecutionData{}, fmt.Errorf("%w: runner_id %s timed out after %s", ErrDispatchFailed, runnerID, dispatchTimeout)
	case <-ctx.Done():
		return flowtypes.NodeExecutionData{}, ctx.Err()
	}
}

// probe performs a best-effort, non-fatal reachability check of an NPU
// before dispatch; its failure is ignored and never blocks the dispatch
// itself, since the NPU may simply be slow to answer a bare GET.
func (d *Dispatcher) probe(address string) {
	resp, err := d.client.Get(address + "/health")
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (d *Dispatcher) send(ctx context.Context, address, runnerID, nodeName, code string, inputs map[string]interface{}) error {
	body := runNodeRequest{
		RunnerID:  runnerID,
		NodeName:  nodeName,
		Code:      code,
		Inputs:    inputs,
		ResultURL: fmt.Sprintf("%s/npu/result/%s", d.selfURL, runnerID),
		LogURL:    fmt.Sprintf("%s/npu/log/%s", d.selfURL, runnerID),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address+"/run-node", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("npu returned status %d", resp.StatusCode)
	}
	return nil
}

// HandleResult is the result callback (/npu/result/{runner_id}).
func (d *Dispatcher) HandleResult(runnerID string, outputs flowtypes.Outputs) error {
	d.mu.Lock()
	task, ok := d.tasks[runnerID]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownTask
	}

	data := flowtypes.NodeExecutionData{
		Status:  outputs.Status,
		Inputs:  task.record.Inputs,
		Logs:    task.record.Logs,
		Outputs: outputs,
	}
	task.complete(data)
	return nil
}

// HandleLog is the log callback (/npu/log/{runner_id}): NPUs post each
// output line as its own callback, ahead of the final result, instead of
// batching them into it.
func (d *Dispatcher) HandleLog(runnerID, line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[runnerID]
	if !ok {
		return ErrUnknownTask
	}
	task.record.Logs = append(task.record.Logs, line)
	return nil
}
