package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ngwarden"

// Tracing installs the process tracer provider and shuts it down on stop.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

func NewTracing(disabled bool) *Tracing {
	if disabled {
		return &Tracing{}
	}
	return &Tracing{provider: sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))}
}

func (t *Tracing) Start(_ context.Context) error {
	if t.provider != nil {
		otel.SetTracerProvider(t.provider)
	}
	return nil
}

func (t *Tracing) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
