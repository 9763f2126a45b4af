package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// LoggerKey carries the request-scoped logger.
	LoggerKey contextKey = "logger"
	// RequestIDKey carries the request correlation ID.
	RequestIDKey contextKey = "request_id"
	// TenantCodeKey carries the resolved tenant code.
	TenantCodeKey contextKey = "tenant_code"
	// UserIDKey carries the authenticated user ID.
	UserIDKey contextKey = "user_id"
)

// WithContext attaches the logger to the context.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the attached logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// tag stores value under key and returns a context carrying a logger
// enriched with the matching field.
func tag(ctx context.Context, logger *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, key, value)
	enriched := logger.With(zap.String(string(key), value))
	return WithContext(ctx, enriched), enriched
}

// WithRequestID tags the context and logger with the request ID.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return tag(ctx, logger, RequestIDKey, requestID)
}

// WithTenantCode tags the context and logger with the tenant code.
func WithTenantCode(ctx context.Context, logger *zap.Logger, tenantCode string) (context.Context, *zap.Logger) {
	return tag(ctx, logger, TenantCodeKey, tenantCode)
}

// WithUserID tags the context and logger with the user ID.
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	return tag(ctx, logger, UserIDKey, userID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetRequestID returns the request ID, or "".
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetTenantCode returns the resolved tenant code, or "".
func GetTenantCode(ctx context.Context) string {
	return stringValue(ctx, TenantCodeKey)
}

// GetUserID returns the authenticated user ID, or "".
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// ContextLogger logs with automatic context correlation. Every entry
// carries trace_id, span_id, request_id, tenant_code, and user_id when
// present in the context.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger over the logger attached to ctx.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger returns a ContextLogger over the given logger instead of
// the one attached to ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

// With returns a child ContextLogger carrying extra fields.
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

func (cl *ContextLogger) enriched() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}

	if spanCtx := trace.SpanFromContext(cl.ctx).SpanContext(); spanCtx.IsValid() {
		l = l.With(
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	for _, key := range []contextKey{RequestIDKey, TenantCodeKey, UserIDKey} {
		if v := stringValue(cl.ctx, key); v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

// Debug logs at debug level.
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.enriched().Debug(msg, fields...)
}

// Info logs at info level.
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.enriched().Info(msg, fields...)
}

// Warn logs at warn level.
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.enriched().Warn(msg, fields...)
}

// Error logs at error level.
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.enriched().Error(msg, fields...)
}

// Fatal logs at fatal level and exits.
func (cl *ContextLogger) Fatal(msg string, fields ...zap.Field) {
	cl.enriched().Fatal(msg, fields...)
}

// Zap returns the underlying logger enriched with context fields.
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enriched()
}
