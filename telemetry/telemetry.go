// Package telemetry wires structured logging (zerolog) and tracing/metrics
// (OpenTelemetry). The logger travels on context.Context (WithLogger/Log);
// StartSpan and Meter use the global OpenTelemetry tracer and meter
// providers.
package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const loggerKey ctxKey = iota

// Tracer is the package-wide tracer name used across run/step/tool spans.
const Tracer = "github.com/agentmesh/runtime"

// NewLogger builds a zerolog.Logger writing structured JSON to stderr,
// matching the teacher pack's CLI-agent logging convention.
func NewLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// Log returns the logger attached to ctx, or a disabled logger if none was
// attached — callers never need a nil check.
func Log(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return log
	}
	return zerolog.Nop()
}

// StartSpan starts a span on the package tracer, a thin helper so call
// sites read as `ctx, span := telemetry.StartSpan(ctx, "loop.step")`.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(Tracer).Start(ctx, name, opts...)
}

// Meter returns the package-wide meter for recording iteration counters and
// tool latency histograms.
func Meter() metric.Meter {
	return otel.Meter(Tracer)
}
