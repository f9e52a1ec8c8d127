package audit

import (
	"context"
	"sync"
	"time"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// AsyncSink forwards events to a slower sink from a single goroutine, preserving order
type AsyncSink struct {
	inner   Sink
	events  chan model.AuditEvent
	done    chan struct{}
	closeMu sync.Once
	timeout time.Duration
}

// NewAsyncSink wraps inner with a buffer of the given size
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 1024
	}
	s := &AsyncSink{
		inner:   inner,
		events:  make(chan model.AuditEvent, buffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go s.loop()
	return s
}

// Name reports the wrapped sink
func (s *AsyncSink) Name() string {
	return "async(" + s.inner.Name() + ")"
}

// Write enqueues the event; a full buffer drops it with a warning
func (s *AsyncSink) Write(ctx context.Context, event *model.AuditEvent) error {
	select {
	case s.events <- *event:
	default:
		logger.WarnCtx(ctx, "audit sink %s buffer full, dropping event %d (%s)", s.inner.Name(), event.Seq, event.Type)
	}
	return nil
}

// Close flushes pending events and stops the forwarding goroutine
func (s *AsyncSink) Close() {
	s.closeMu.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for event := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.inner.Write(ctx, &event); err != nil {
			logger.Warnf("audit sink %s failed for event %d: %v", s.inner.Name(), event.Seq, err)
		}
		cancel()
	}
}
