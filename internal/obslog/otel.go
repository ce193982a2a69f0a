package obslog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating an OpenTelemetry span per
// event, adapted from the teacher's graph/emit.OTelEmitter: span name is the
// event's Msg, attributes carry flow_id/node_name/runner_id plus Meta, and
// the span is marked errored if Meta["error"] is set.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter builds an OTelEmitter from a tracer, e.g.
// otel.Tracer("flowkit/executor").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span representing the event. FlowKit's
// steps are not themselves long-lived spans from the emitter's point of
// view -- the Dispatcher and FCB record start/end as separate events -- so
// each Emit call is a point-in-time span rather than a started/stopped pair.
func (e *OTelEmitter) Emit(event Event) {
	_, span := e.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("flow_id", event.FlowID),
		attribute.String("node_name", event.NodeName),
	)
	if event.RunnerID != "" {
		span.SetAttributes(attribute.String("runner_id", event.RunnerID))
	}
	for k, v := range event.Meta {
		span.SetAttributes(attribute.String(k, toString(v)))
	}
	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, toString(errVal))
	}
}

// Flush is a no-op; the configured TracerProvider owns batching/export.
func (e *OTelEmitter) Flush(_ context.Context) error {
	return nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
