// Package store provides durable backends for the FCB queue: one document
// per flow, keyed by flow_id, holding the flow definition, pointer, and
// status (spec.md §4.2, §6.6).
package store

import "errors"

// ErrNotFound is returned when a requested flow_id has no persisted
// document.
var ErrNotFound = errors.New("fcb store: flow_id not found")
