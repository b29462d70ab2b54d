// Package logging builds the service's zap loggers and carries request-scoped
// loggers through context.
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger on stdout tagged with the service, environment and
// version. level accepts zap level names; an empty level means info.
func New(service, env, version, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	cfg.InitialFields = map[string]any{
		"service": service,
		"env":     env,
		"version": version,
	}

	return cfg.Build()
}

func Must(service, env, version, level string) *zap.Logger {
	logger, err := New(service, env, version, level)
	if err != nil {
		panic(err)
	}
	return logger
}

type ctxKey struct{}

func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or fallback when none was
// attached. The result carries trace_id and span_id when ctx holds a sampled span.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := fallback
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		logger = l
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
