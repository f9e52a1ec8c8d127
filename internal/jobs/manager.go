// Package jobs runs the pool's periodic housekeeping.
package jobs

import (
	"context"
	"sync"
	"time"

	"termpool/pkg/logger"
)

// Job periodic background task
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob runs on interval boundaries (every full minute, hour, ...)
// instead of immediately at start
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// Manager owns the goroutines of registered jobs
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool
	runs    map[string]int

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to parent
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]int),
	}
}

// Register adds a job; jobs registered after Start are ignored
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		logger.WarnCtx(m.ctx, "job %s registered after start, ignored", job.Name())
		return
	}
	m.jobs = append(m.jobs, job)
}

// Jobs names of registered jobs
func (m *Manager) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for _, j := range m.jobs {
		names = append(names, j.Name())
	}
	return names
}

// Runs how many times the named job has run
func (m *Manager) Runs(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[name]
}

// Start launches one goroutine per job
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.loop(job)
	}
}

// Stop cancels every job and waits for running ones to return
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) loop(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	if aligned, ok := job.(AlignedJob); ok && aligned.AlignToInterval() {
		now := time.Now()
		next := now.Truncate(interval).Add(interval)
		logger.DebugCtx(m.ctx, "job %s first run at %s", job.Name(), next.Format("15:04:05"))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	m.execute(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.execute(job)
		}
	}
}

func (m *Manager) execute(job Job) {
	err := job.Run(m.ctx)

	m.mu.Lock()
	m.runs[job.Name()]++
	m.mu.Unlock()

	if err != nil && m.ctx.Err() == nil {
		logger.WarnCtx(m.ctx, "background job %s failed: %v", job.Name(), err)
	}
}
