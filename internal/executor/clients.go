// Package executor implements the Flow Executor process: the HTTP front
// door to the FCB queue, plus the HTTP clients that let an FCB's Dispatcher
// and Tracer interfaces reach the Node Runner and Trace Recorder over the
// network (spec.md §4.2, §6.1).
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// NodeRunnerClient implements fcb.Dispatcher against a remote Node Runner's
// /nodes/add-node endpoint.
type NodeRunnerClient struct {
	baseURL string
	client  *http.Client
}

// NewNodeRunnerClient builds a client pointed at baseURL. The HTTP client
// carries no timeout of its own: the Node Runner itself enforces the 30s
// NPU dispatch deadline, and the request context carries any deadline the
// caller wants on top of that.
func NewNodeRunnerClient(baseURL string) *NodeRunnerClient {
	return &NodeRunnerClient{baseURL: baseURL, client: &http.Client{}}
}

type addNodeRequest struct {
	NodeName string                 `json:"node_name"`
	Code     string                 `json:"code"`
	Inputs   map[string]interface{} `json:"inputs"`
}

// RunNode implements fcb.Dispatcher.
func (c *NodeRunnerClient) RunNode(ctx context.Context, nodeName, code string, inputs map[string]interface{}) (flowtypes.NodeExecutionData, error) {
	raw, err := json.Marshal(addNodeRequest{NodeName: nodeName, Code: code, Inputs: inputs})
	if err != nil {
		return flowtypes.NodeExecutionData{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/nodes/add-node", bytes.NewReader(raw))
	if err != nil {
		return flowtypes.NodeExecutionData{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return flowtypes.NodeExecutionData{}, fmt.Errorf("node runner unreachable: %w", err)
	}
	defer resp.Body.Close()

	var data flowtypes.NodeExecutionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return flowtypes.NodeExecutionData{}, fmt.Errorf("node runner: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return data, fmt.Errorf("node runner: status %d", resp.StatusCode)
	}
	return data, nil
}

// TraceRecorderClient implements fcb.Tracer against a remote Trace
// Recorder's /trace endpoint.
type TraceRecorderClient struct {
	baseURL string
	client  *http.Client
}

// NewTraceRecorderClient builds a client pointed at baseURL, with the 10s
// POST timeout spec.md §5 calls for.
func NewTraceRecorderClient(baseURL string) *TraceRecorderClient {
	return &TraceRecorderClient{baseURL: baseURL, client: &http.Client{Timeout: 10 * time.Second}}
}

// SaveTrace implements fcb.Tracer.
func (c *TraceRecorderClient) SaveTrace(ctx context.Context, flowID string, flowLvl int, rec flowtypes.TraceRecord) error {
	rec.FlowID = flowID
	rec.FlowLvl = flowLvl

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trace", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("trace recorder unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("trace recorder: status %d", resp.StatusCode)
	}
	return nil
}
