// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup registers a sampling tracer provider when enabled. Finished spans are
// written to the debug log; there is no remote exporter. The returned
// shutdown function must be called on exit.
func Setup(enabled bool, serviceName string) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}

	tp := NewProvider(serviceName, logProcessor{})
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}

// NewProvider builds a provider that always samples and hands finished spans
// to processor.
func NewProvider(serviceName string, processor sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(processor),
	)
}

type logProcessor struct{}

func (logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	fields := log.Fields{
		"trace_id": s.SpanContext().TraceID().String(),
		"span_id":  s.SpanContext().SpanID().String(),
		"duration": s.EndTime().Sub(s.StartTime()).Round(time.Microsecond).String(),
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	entry := log.WithFields(fields)
	if s.Status().Code == codes.Error {
		entry.WithField("error", s.Status().Description).Debug("span " + s.Name())
		return
	}
	entry.Debug("span " + s.Name())
}

func (logProcessor) Shutdown(context.Context) error { return nil }

func (logProcessor) ForceFlush(context.Context) error { return nil }
