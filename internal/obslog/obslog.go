// Package obslog provides FlowKit's ambient logging and step-level
// observability event bus.
//
// Two concerns live here deliberately: structured operational logging (via
// logrus, for "what is this process doing") and an Emitter bus adapted from
// the teacher's graph/emit package (for "what happened to this flow step",
// the substrate the trace recorder and OpenTelemetry spans are built on).
package obslog

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process-wide structured logger. component names the
// process ("flowexecutor", "noderunner", "npuworker", "tracerecorder",
// "secretmanager") and is attached to every entry so multi-process logs can
// be told apart once aggregated.
func NewLogger(component string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	return l.WithField("component", component)
}

// Event is one observability occurrence during flow execution: a step
// starting, completing, failing, or an FCB transitioning state. It mirrors
// the teacher's emit.Event, generalized from a single-process run to a
// distributed flow keyed by FlowID.
type Event struct {
	FlowID   string
	NodeName string
	RunnerID string
	Msg      string
	Meta     map[string]interface{}
}

// Emitter receives Events. Implementations must not block the caller for
// long and must not panic.
type Emitter interface {
	Emit(event Event)
	Flush(ctx context.Context) error
}

// LogrusEmitter implements Emitter by writing one structured log line per
// event, adapting the teacher's LogEmitter to logrus fields instead of a
// hand-formatted writer.
type LogrusEmitter struct {
	log *logrus.Entry
}

// NewLogrusEmitter wraps an existing logger as an Emitter.
func NewLogrusEmitter(log *logrus.Entry) *LogrusEmitter {
	return &LogrusEmitter{log: log}
}

// Emit writes the event as a structured log entry.
func (e *LogrusEmitter) Emit(event Event) {
	fields := logrus.Fields{
		"flow_id":   event.FlowID,
		"node_name": event.NodeName,
	}
	if event.RunnerID != "" {
		fields["runner_id"] = event.RunnerID
	}
	for k, v := range event.Meta {
		fields[k] = v
	}
	e.log.WithFields(fields).Info(event.Msg)
}

// Flush is a no-op: logrus writes synchronously to its output.
func (e *LogrusEmitter) Flush(_ context.Context) error {
	return nil
}

// MultiEmitter fans one Event out to every wrapped Emitter, in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter builds a MultiEmitter over the given emitters.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit forwards event to every wrapped Emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// Flush flushes every wrapped Emitter, returning the first error.
func (m *MultiEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
