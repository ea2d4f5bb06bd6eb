package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tessergrc/authcore/pkg/contextkeys"
)

// Logger is the interface for audit logging. Record must never block
// the caller's response path and must never return an error to it;
// persistence failures are the implementation's problem to surface
// through fallback logging.
type Logger interface {
	Record(ctx context.Context, event *Event)

	// Close flushes buffered events. Safe to call once at shutdown.
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op
// logger if none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards everything. Used in tests and when auditing is
// disabled by configuration.
type NopLogger struct{}

func (NopLogger) Record(context.Context, *Event) {}
func (NopLogger) Close() error                   { return nil }

// NewEvent fills the fields every event shares, pulling the request
// ID from context when the middleware put one there.
func NewEvent(ctx context.Context, eventType EventType, severity Severity) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}
