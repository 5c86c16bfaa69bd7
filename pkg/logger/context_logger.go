package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
	viewKey      ctxKey = "view"
)

// WithRequestID stores a request id in ctx for later log enrichment.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithUserID stores the signed-in user id in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithView tags ctx with the name of the list view issuing requests.
func WithView(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, viewKey, name)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger *zap.SugaredLogger
}

// NewContextLogger creates a new context logger
func NewContextLogger(logger *zap.SugaredLogger) *ContextLogger {
	if logger == nil {
		logger = Nop()
	}
	return &ContextLogger{
		logger: logger,
	}
}

// WithContext adds context fields to logger
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.SugaredLogger {
	fields := []zapcore.Field{}

	for _, key := range []ctxKey{requestIDKey, userIDKey, viewKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}

	if len(fields) == 0 {
		return cl.logger
	}

	return cl.logger.Desugar().With(fields...).Sugar()
}

// LogRequest logs an outbound backend call with context
func (cl *ContextLogger) LogRequest(ctx context.Context, method, path string, statusCode int, durationMs int64) {
	cl.WithContext(ctx).Debugw("backend_request",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", durationMs,
	)
}

// LogStatusRequest logs an inbound status surface request with context
func (cl *ContextLogger) LogStatusRequest(ctx context.Context, method, route string, statusCode int, durationMs int64) {
	cl.WithContext(ctx).Debugw("status_request",
		"method", method,
		"route", route,
		"status_code", statusCode,
		"duration_ms", durationMs,
	)
}
