package health

import (
	"context"
	"sync"
	"time"

	"termpool/pkg/logger"
)

// Checker performs one health check of a terminal. The implementation owns
// locking so checks never overlap task execution on the same terminal.
type Checker interface {
	CheckTerminal(ctx context.Context, terminalID string)
}

// Monitor runs one independent probe loop per watched terminal
type Monitor struct {
	checker  Checker
	interval time.Duration

	mu      sync.Mutex
	loops   map[string]context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewMonitor creates a monitor probing every interval
func NewMonitor(checker Checker, interval time.Duration) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: interval,
		loops:    make(map[string]context.CancelFunc),
	}
}

// Watch starts the probe loop for terminalID; watching twice is a no-op
func (m *Monitor) Watch(ctx context.Context, terminalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if _, ok := m.loops[terminalID]; ok {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.loops[terminalID] = cancel
	m.wg.Add(1)
	go m.run(loopCtx, terminalID)
}

// Unwatch stops the probe loop for terminalID
func (m *Monitor) Unwatch(terminalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.loops[terminalID]; ok {
		cancel()
		delete(m.loops, terminalID)
	}
}

// Watching number of active probe loops
func (m *Monitor) Watching() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// Stop cancels every loop and waits for in-flight checks to return
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	for id, cancel := range m.loops {
		cancel()
		delete(m.loops, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, terminalID string) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	logger.DebugCtx(ctx, "health loop started for terminal %s", terminalID)
	for {
		select {
		case <-ctx.Done():
			logger.DebugCtx(ctx, "health loop stopped for terminal %s", terminalID)
			return
		case <-ticker.C:
			m.checker.CheckTerminal(ctx, terminalID)
		}
	}
}
