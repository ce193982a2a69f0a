package obslog

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SetupTracing installs a process-wide TracerProvider and returns an
// Emitter that records one span per Event plus a shutdown func to flush and
// stop the provider. Adapted from the teacher's OTel emitter pairing with
// an SDK-backed provider the way firebase-genkit's core/tracing package
// wires `sdktrace.NewTracerProvider` behind `otel.SetTracerProvider` --
// FlowKit registers no exporter or span processor, so spans are sampled
// but dropped when they end.
func SetupTracing(serviceName string) (Emitter, func(context.Context) error) {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(provider)

	tracer := provider.Tracer(serviceName)
	return NewOTelEmitter(tracer), provider.Shutdown
}
