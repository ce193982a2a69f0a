// Package noderunner implements the Node Runner: the NPU session registry,
// scheduler, dispatcher, and secret-resolving preprocessor described in
// spec.md §4.3-§4.5.
package noderunner

import "errors"

// ErrNpuExists is returned by Session.Add when id is already registered.
var ErrNpuExists = errors.New("noderunner: npu already registered")

// ErrNpuUnknown is returned by Session.UpdateMetrics / GetByID for an
// unregistered or expired NPU id.
var ErrNpuUnknown = errors.New("noderunner: unknown npu id")

// ErrNoNpuAvailable is returned by the Scheduler when the NPU pool is
// empty.
var ErrNoNpuAvailable = errors.New("noderunner: no npu available")

// ErrUnknownTask is returned when a result/log callback names a runner_id
// the in-flight table has no record of.
var ErrUnknownTask = errors.New("noderunner: unknown runner_id")

// ErrSecretResolution is returned when a secret placeholder cannot be
// resolved: a non-200 response, a missing value field, or an empty value.
var ErrSecretResolution = errors.New("noderunner: secret resolution failed")

// ErrDispatchFailed is returned when an NPU cannot be reached or a
// dispatch times out waiting for its result callback.
var ErrDispatchFailed = errors.New("noderunner: node dispatch failed")
