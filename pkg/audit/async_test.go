package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessergrc/authcore/pkg/observability"
)

type memorySink struct {
	mu      sync.Mutex
	events  []*Event
	err     error
	block   chan struct{}
	closed  bool
}

func (s *memorySink) Write(_ context.Context, event *Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newEvent(eventType EventType) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  SeverityInfo,
	}
}

func TestAsyncLoggerDeliversToSink(t *testing.T) {
	sink := &memorySink{}
	logger := NewAsyncLogger(sink, testFallbackLogger(nil))

	logger.Record(context.Background(), newEvent(EventTypeAuthSuccess))
	logger.Record(context.Background(), newEvent(EventTypeAuthFailure))
	require.NoError(t, logger.Close())

	assert.Equal(t, 2, sink.count())
	assert.True(t, sink.closed)
}

func TestAsyncLoggerCloseDrainsBuffer(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	logger := NewAsyncLogger(sink, testFallbackLogger(nil))

	for i := 0; i < 10; i++ {
		logger.Record(context.Background(), newEvent(EventTypeQuotaExceeded))
	}
	close(sink.block)
	require.NoError(t, logger.Close())

	assert.Equal(t, 10, sink.count())
}

func TestAsyncLoggerFullBufferFallsBack(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{block: make(chan struct{})}
	logger := NewAsyncLogger(sink, testFallbackLogger(&buf), WithBufferSize(1))

	// First event occupies the consumer, second fills the buffer, the
	// rest must fall back without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			logger.Record(context.Background(), newEvent(EventTypeAuthFailure))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(sink.block)
	require.NoError(t, logger.Close())
	assert.Contains(t, buf.String(), "audit event not persisted")
}

func TestAsyncLoggerSinkFailureFallsBack(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{err: errors.New("disk full")}
	logger := NewAsyncLogger(sink, testFallbackLogger(&buf))

	logger.Record(context.Background(), newEvent(EventTypeCrossTenantAttempt))
	require.NoError(t, logger.Close())

	assert.Contains(t, buf.String(), "audit sink write failed")
	assert.Contains(t, buf.String(), "audit event not persisted")
}

func TestAsyncLoggerRecordAfterClose(t *testing.T) {
	var buf bytes.Buffer
	sink := &memorySink{}
	logger := NewAsyncLogger(sink, testFallbackLogger(&buf))
	require.NoError(t, logger.Close())

	logger.Record(context.Background(), newEvent(EventTypeAuthSuccess))
	assert.Contains(t, buf.String(), "audit event not persisted")
	assert.Equal(t, 0, sink.count())
}

func TestAsyncLoggerConcurrentRecordAndCloseLosesNothing(t *testing.T) {
	const writers = 8
	const perWriter = 50

	var buf safeBuffer
	sink := &memorySink{}
	logger := NewAsyncLogger(sink, observability.NewLogger(observability.DebugLevel, &buf))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perWriter; j++ {
				logger.Record(context.Background(), newEvent(EventTypeAuthSuccess))
			}
		}()
	}

	close(start)
	require.NoError(t, logger.Close())
	wg.Wait()

	// Every event either reached the sink or was fallback-logged;
	// a send racing Close must not vanish behind the shutdown.
	dropped := bytes.Count(buf.bytes(), []byte("audit event not persisted"))
	assert.Equal(t, writers*perWriter, sink.count()+dropped)
}

type safeBuffer struct {
	mu sync.Mutex
	bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

func (b *safeBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Bytes()
}

func testFallbackLogger(buf *bytes.Buffer) *observability.Logger {
	if buf == nil {
		buf = &bytes.Buffer{}
	}
	return observability.NewLogger(observability.DebugLevel, buf)
}
