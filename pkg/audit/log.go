// Package audit is the append-only event log every pool component writes to.
//
// Record is synchronous and totally ordered: events receive a monotonically
// increasing sequence number and reach every sink and subscriber in that order.
// Sinks that talk to the network should be wrapped in an AsyncSink so a slow
// backend never stalls a state transition.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// Sink receives every recorded event
type Sink interface {
	Name() string
	Write(ctx context.Context, event *model.AuditEvent) error
}

// Filter selects events from the in-memory log
type Filter struct {
	TaskID     string
	TerminalID string
	Types      []model.EventType
	Since      time.Time
	Limit      int // most recent N after filtering, 0 = all
}

// Match reports whether e passes the filter
func (f Filter) Match(e *model.AuditEvent) bool {
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.TerminalID != "" && e.TerminalID != f.TerminalID {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
	return true
}

// Log append-only audit log, safe for concurrent writers
type Log struct {
	mu          sync.Mutex
	events      []*model.AuditEvent
	seq         int64
	maxRetained int
	sinks       []Sink
	subs        map[int]chan model.AuditEvent
	nextSub     int
	now         func() time.Time
}

// Option configures a Log
type Option func(*Log)

// WithMaxRetained bounds the in-memory window; older entries remain in sinks only
func WithMaxRetained(n int) Option {
	return func(l *Log) { l.maxRetained = n }
}

// WithSinks registers sinks at construction
func WithSinks(sinks ...Sink) Option {
	return func(l *Log) { l.sinks = append(l.sinks, sinks...) }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an audit log
func New(opts ...Option) *Log {
	l := &Log{
		subs: make(map[int]chan model.AuditEvent),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddSink registers a sink for subsequent events
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Record appends an event, stamping id, sequence, time and default severity
func (l *Log) Record(ctx context.Context, event model.AuditEvent) model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	event.Seq = l.seq
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = l.now()
	}
	if event.Severity == "" {
		event.Severity = DefaultSeverity(event.Type)
	}

	stored := event
	l.events = append(l.events, &stored)
	if l.maxRetained > 0 && len(l.events) > l.maxRetained {
		trim := len(l.events) - l.maxRetained
		copy(l.events, l.events[trim:])
		for i := len(l.events) - trim; i < len(l.events); i++ {
			l.events[i] = nil
		}
		l.events = l.events[:len(l.events)-trim]
	}

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, &stored); err != nil {
			logger.WarnCtx(ctx, "audit sink %s failed for event %s: %v", sink.Name(), stored.Type, err)
		}
	}

	for id, ch := range l.subs {
		select {
		case ch <- stored:
		default:
			logger.WarnCtx(ctx, "audit subscriber %d is slow, dropping event %d", id, stored.Seq)
		}
	}

	return stored
}

// Emit is a convenience wrapper around Record
func (l *Log) Emit(ctx context.Context, typ model.EventType, taskID, terminalID, message string, fields map[string]interface{}) model.AuditEvent {
	return l.Record(ctx, model.AuditEvent{
		Type:       typ,
		TaskID:     taskID,
		TerminalID: terminalID,
		Message:    message,
		Fields:     fields,
	})
}

// Events returns retained events matching f in sequence order
func (l *Log) Events(f Filter) []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.AuditEvent, 0)
	for _, e := range l.events {
		if f.Match(e) {
			out = append(out, *e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len number of retained events
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Subscribe streams events recorded after the call. Slow subscribers drop events
// rather than block writers. The returned cancel func closes the channel.
func (l *Log) Subscribe(bufSize int) (<-chan model.AuditEvent, func()) {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan model.AuditEvent, bufSize)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// DefaultSeverity maps event types to a severity
func DefaultSeverity(t model.EventType) model.Severity {
	switch t {
	case model.EventTaskEscalated, model.EventPoolUnstable, model.EventTerminalDead:
		return model.SeverityError
	case model.EventTaskFailed, model.EventTerminalDegraded, model.EventAPISuspended,
		model.EventPermissionDenied, model.EventTerminalReplaced:
		return model.SeverityWarn
	}
	return model.SeverityInfo
}
