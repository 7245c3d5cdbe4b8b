package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	correlationKey
)

// correlation groups the identifiers that tie log lines of one request together.
type correlation struct {
	requestID string
	traceID   string
	spanID    string
}

func correlationFrom(ctx context.Context) correlation {
	if ctx == nil {
		return correlation{}
	}
	c, _ := ctx.Value(correlationKey).(correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*correlation)) context.Context {
	c := correlationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey, c)
}

// WithLogger stores logger on ctx. A nil logger leaves ctx unchanged.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger, or slog.Default when none is set.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// WithRequestID records the id assigned to the inbound request.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

func RequestIDFromContext(ctx context.Context) string { return correlationFrom(ctx).requestID }

// WithTraceID records the trace that spans opened on ctx join.
func WithTraceID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return withCorrelation(ctx, func(c *correlation) { c.traceID = id })
}

func TraceIDFromContext(ctx context.Context) string { return correlationFrom(ctx).traceID }

// WithSpanID records the innermost open span.
func WithSpanID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return withCorrelation(ctx, func(c *correlation) { c.spanID = id })
}

func SpanIDFromContext(ctx context.Context) string { return correlationFrom(ctx).spanID }
