package fcb

import "errors"

// ErrUnknownSuccessor is reported in the step's "unknown_successor" event
// when a node's Outputs.Nodes names a successor that does not exist in the
// flow's node map.
var ErrUnknownSuccessor = errors.New("fcb: unknown successor node")

// ErrFlowTerminal names the condition of an FCB whose status is already
// STOP. FCB operations on such an FCB are no-ops and return no error.
var ErrFlowTerminal = errors.New("fcb: flow is already stopped")

// ErrUnknownFlow is returned when an operation names a flow_id the queue
// has no record of.
var ErrUnknownFlow = errors.New("fcb: unknown flow_id")

// ErrDispatchFailed identifies a failed node dispatch. Step does not wrap
// or return Dispatcher errors: it records them as a failed step whose
// Outputs.Message carries the error text.
var ErrDispatchFailed = errors.New("fcb: node dispatch failed")
