package audit

import (
	"context"
	"sync"

	"github.com/tessergrc/authcore/pkg/observability"
)

const defaultBufferSize = 1024

// Sink persists events. Implementations do not need to be safe for
// concurrent use; AsyncLogger serializes writes through one consumer.
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
}

// AsyncLogger decouples event recording from persistence. Record
// enqueues and returns immediately; a single consumer goroutine
// drains the buffer into the sink. When the buffer is full or the
// sink fails the event is written to the fallback application log
// instead, never surfaced to the request path.
type AsyncLogger struct {
	events   chan *Event
	sink     Sink
	fallback *observability.Logger
	metrics  *observability.Metrics

	// mu orders Record against Close: Close flips closed under the
	// write lock, so a Record holding the read lock either completed
	// its send before the shutdown sentinel is enqueued or observes
	// closed and falls back. No event can land behind the sentinel.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// AsyncOption configures an AsyncLogger.
type AsyncOption func(*AsyncLogger)

// WithBufferSize overrides the event buffer capacity.
func WithBufferSize(n int) AsyncOption {
	return func(l *AsyncLogger) { l.events = make(chan *Event, n) }
}

// WithAuditMetrics attaches event and drop counters.
func WithAuditMetrics(m *observability.Metrics) AsyncOption {
	return func(l *AsyncLogger) { l.metrics = m }
}

// NewAsyncLogger starts the consumer goroutine.
func NewAsyncLogger(sink Sink, fallback *observability.Logger, opts ...AsyncOption) *AsyncLogger {
	l := &AsyncLogger{
		events:   make(chan *Event, defaultBufferSize),
		sink:     sink,
		fallback: fallback,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.consume()
	return l
}

// Record enqueues the event without blocking. Events arriving after
// Close, or while the buffer is full, go to the fallback log.
func (l *AsyncLogger) Record(_ context.Context, event *Event) {
	if l.metrics != nil {
		l.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logFallback(event, "audit logger closed")
		return
	}
	select {
	case l.events <- event:
	default:
		l.logFallback(event, "audit buffer full")
	}
}

func (l *AsyncLogger) consume() {
	for event := range l.events {
		if event == nil {
			// shutdown sentinel, queued after everything to drain
			break
		}
		// Persistence uses its own context: the originating request
		// has usually completed by the time we get here.
		if err := l.sink.Write(context.Background(), event); err != nil {
			l.fallback.WithError(err).WithField("event_type", string(event.EventType)).
				Error("audit sink write failed")
			l.logFallback(event, "audit sink write failed")
		}
	}
	close(l.done)
}

func (l *AsyncLogger) logFallback(event *Event, reason string) {
	if l.metrics != nil {
		l.metrics.AuditDroppedTotal.Inc()
	}
	fields := map[string]interface{}{
		"audit_fallback": reason,
		"event_id":       event.ID.String(),
		"event_type":     string(event.EventType),
		"severity":       string(event.Severity),
		"message":        event.Message,
	}
	if event.TenantID != nil {
		fields["tenant_id"] = event.TenantID.String()
	}
	if event.UserID != nil {
		fields["user_id"] = event.UserID.String()
	}
	l.fallback.WithFields(fields).Warn("audit event not persisted")
}

// Close stops accepting events, drains the buffer and closes the
// sink.
func (l *AsyncLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.events <- nil
	<-l.done
	return l.sink.Close()
}
