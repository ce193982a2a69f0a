// Package flowtypes defines the wire-level data model shared by every
// FlowKit process: the Flow Executor, Node Runner, NPU Worker, Trace
// Recorder, and Secret Manager all exchange these types over HTTP as JSON.
package flowtypes

import "time"

// Node is an immutable unit of a Flow: a name unique within the flow, an
// opaque base64-encoded source blob, and its nesting depth for tracing.
type Node struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	FlowLvl int    `json:"flow_lvl"`
}

// Flow is a named collection of Nodes plus a pointer identifying the next
// node to execute and the inputs it should receive. A zero-value CurrNode
// means the flow has completed.
type Flow struct {
	Nodes    map[string]Node        `json:"nodes"`
	CurrNode string                 `json:"curr_node"`
	CurrInp  map[string]interface{} `json:"curr_inp_data"`
}

// Done reports whether the flow's pointer has been exhausted.
func (f Flow) Done() bool {
	return f.CurrNode == ""
}

// Outputs is the payload a node execution produces: the names of successor
// nodes to enqueue, the data to pass them, and a terminal status/message.
type Outputs struct {
	Nodes   []string               `json:"nodes"`
	Outputs map[string]interface{} `json:"outputs"`
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
}

// NodeExecutionData is what the Node Runner hands back to the FCB after a
// synchronous dispatch completes (successfully or not).
type NodeExecutionData struct {
	Status  string                 `json:"status"`
	Inputs  map[string]interface{} `json:"inputs"`
	Logs    []string               `json:"logs"`
	Outputs Outputs                `json:"outputs"`
}

// Task status values for TaskRecord.Status.
const (
	TaskQueued  = "QUEUED"
	TaskRunning = "RUNNING"
	TaskDone    = "DONE"
	TaskError   = "ERROR"
)

// TaskRecord is the in-flight record the Node Runner keeps for one
// dispatched node execution, keyed by RunnerID.
type TaskRecord struct {
	RunnerID string                 `json:"runner_id"`
	NodeName string                 `json:"node_name"`
	Code     string                 `json:"code"`
	Inputs   map[string]interface{} `json:"inputs"`
	Status   string                 `json:"status"`
	Logs     []string               `json:"logs"`
	Outputs  Outputs                `json:"outputs"`
}

// NpuMetrics are the advisory metrics an NPU heartbeats to the Node Runner.
type NpuMetrics struct {
	Uptime          float64 `json:"uptime"`
	SuccessfulTasks int64   `json:"successful_tasks"`
	FailedTasks     int64   `json:"failed_tasks"`
	QueuedTasks     int64   `json:"queued_tasks"`
}

// NpuStatus is one entry in the Node Runner's NPU session registry.
type NpuStatus struct {
	ID       string     `json:"id"`
	Address  string     `json:"address"`
	Status   string     `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
	Metrics  NpuMetrics `json:"metrics"`
}

// Expired reports whether this NPU has not been heard from within ttl of now.
func (s NpuStatus) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastSeen) > ttl
}

// TraceRecord is one persisted record of a node execution, annotated with a
// per-flow monotonically increasing sequence number.
type TraceRecord struct {
	TraceID         string                 `json:"trace_id"`
	FlowID          string                 `json:"flow_id"`
	FlowLvl         int                    `json:"flow_lvl"`
	NodeName        string                 `json:"node_name"`
	RunnerID        string                 `json:"runner_id"`
	Code            string                 `json:"code"`
	Status          string                 `json:"status"`
	Inputs          map[string]interface{} `json:"inputs"`
	Logs            []string               `json:"logs"`
	Outputs         Outputs                `json:"outputs"`
	CurrentSequence int64                  `json:"current_sequence"`
}

// FCB status values.
const (
	StatusQueued = "QUEUED"
	StatusStart  = "START"
	StatusPause  = "PAUSE"
	StatusStop   = "STOP"
)

// PendingItem is one entry of an FCB's pending_queue: a successor node and
// the inputs it should be invoked with.
type PendingItem struct {
	NodeName string                 `json:"node_name"`
	Inputs   map[string]interface{} `json:"inputs"`
}

// FlowState is the durable shape persisted per flow_id by the FCB queue
// store: the flow definition, pointer, and status. pending_queue is
// intentionally not part of the durable document — see SPEC_FULL.md's design
// notes on why it is safe to omit (it is always rebuildable from the next
// step's outputs).
type FlowState struct {
	FlowID string `json:"flow_id"`
	Flow   Flow   `json:"flow"`
	Status string `json:"status"`
}
