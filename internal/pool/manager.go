// Package pool is the terminal pool manager: it owns the terminal and task
// registries, drains the queue onto idle terminals, and drives repair,
// reassignment and escalation.
//
// All registry mutation happens under Manager.mu. Each terminal additionally
// has an operation lock held for the whole of a task execution or a
// health-check/repair pass, so the two never overlap on one terminal.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"termpool/internal/model"
	"termpool/pkg/audit"
	"termpool/pkg/capacity"
	"termpool/pkg/config"
	"termpool/pkg/constants"
	"termpool/pkg/escalation"
	"termpool/pkg/health"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
	"termpool/pkg/notification"
	"termpool/pkg/queue"
	"termpool/pkg/repair"
	"termpool/pkg/transfer"
)

// slot registry entry for one active terminal
type slot struct {
	term   *model.Terminal
	handle *interfaces.TerminalHandle
	op     sync.Mutex
	busy   bool      // executing, health-checking or repairing; guarded by Manager.mu
	run    *runState // current execution; guarded by Manager.mu
}

// runState bookkeeping for the task currently executing on a slot
type runState struct {
	taskID          string
	cancel          context.CancelFunc
	cancelRequested bool
	cancelCh        chan struct{}
	cancelTimer     *time.Timer
}

// Manager terminal pool manager
type Manager struct {
	cfg        *config.Config
	adapter    interfaces.WorkerAdapter
	sizer      *capacity.Sizer
	queue      *queue.TaskQueue
	transfer   *transfer.Service
	engine     *repair.Engine
	detector   *repair.InstabilityDetector
	escalation *escalation.Handler
	notifier   notification.Notifier
	audit      *audit.Log
	monitor    *health.Monitor

	mu         sync.Mutex
	slots      map[string]*slot
	order      []string // active terminal ids in creation order
	retired    map[string]*model.Terminal
	tasks      map[string]*model.Task
	targetSize int
	running    bool
	launching  int  // launches in flight, counted toward the target
	refilling  bool // a refill goroutine is running

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	notifyWG sync.WaitGroup // instability alert deliveries

	newID func() string
	now   func() time.Time
}

// NewManager creates a pool manager. Nothing is launched until Start.
func NewManager(cfg *config.Config, adapter interfaces.WorkerAdapter, auditLog *audit.Log, notifier notification.Notifier) *Manager {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	if auditLog == nil {
		auditLog = audit.New()
	}
	m := &Manager{
		cfg:        cfg,
		adapter:    adapter,
		queue:      queue.New(cfg.Queue.Capacity),
		transfer:   transfer.NewService(),
		engine:     repair.NewEngine(adapter, cfg.Repair),
		detector:   repair.NewInstabilityDetector(cfg.Repair.InstabilityWindow, cfg.Repair.InstabilityThreshold),
		escalation: escalation.NewHandler(notifier, cfg.Notification.Timeout),
		notifier:   notifier,
		audit:      auditLog,
		slots:      make(map[string]*slot),
		retired:    make(map[string]*model.Terminal),
		tasks:      make(map[string]*model.Task),
		wake:       make(chan struct{}, 1),
		newID:      func() string { return "term-" + uuid.NewString()[:8] },
		now:        time.Now,
	}
	m.monitor = health.NewMonitor(m, cfg.Pool.HealthInterval)
	return m
}

// SetSizer sets the resource sizer used at start and on resize
func (m *Manager) SetSizer(s *capacity.Sizer) {
	m.sizer = s
}

// SetIDGenerator overrides terminal id generation
func (m *Manager) SetIDGenerator(fn func() string) {
	m.newID = fn
}

// SetEscalationRecorder persists diagnoses
func (m *Manager) SetEscalationRecorder(r escalation.Recorder) {
	m.escalation.SetRecorder(r)
}

// Audit returns the audit log
func (m *Manager) Audit() *audit.Log {
	return m.audit
}

// Start computes the target size and launches the terminals concurrently
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("pool already started")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true
	m.mu.Unlock()

	size := m.initialSize()
	m.mu.Lock()
	m.targetSize = size
	m.mu.Unlock()

	logger.InfoCtx(ctx, "starting terminal pool with %d terminals", size)
	if err := m.launchTerminals(ctx, size); err != nil {
		m.Stop(ctx)
		return err
	}

	m.wg.Add(1)
	go m.loop()
	return nil
}

func (m *Manager) initialSize() int {
	if m.cfg.Pool.Size > 0 {
		return m.cfg.Pool.Size
	}
	if m.sizer != nil {
		return m.sizer.TargetSize()
	}
	return m.cfg.Pool.FallbackSize
}

// launchTerminals starts n terminals in parallel
func (m *Manager) launchTerminals(ctx context.Context, n int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := m.addTerminal(gctx, "")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to launch terminals: %w", err)
	}
	return nil
}

// addTerminal launches a process and registers it as a HEALTHY terminal
func (m *Manager) addTerminal(ctx context.Context, replacesID string) (*model.Terminal, error) {
	m.mu.Lock()
	m.launching++
	m.mu.Unlock()

	handle, err := m.engine.Launch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.launching--
	if err != nil {
		return nil, err
	}
	if !m.running {
		_ = m.adapter.Kill(context.Background(), handle)
		return nil, ErrPoolStopped
	}

	now := m.now()
	term := &model.Terminal{
		ID:          m.newID(),
		State:       constants.TerminalStateHealthy,
		CreatedAt:   now,
		LastProbeAt: now,
		ReplacesID:  replacesID,
		HandleRef:   handle.Ref,
	}
	m.slots[term.ID] = &slot{term: term, handle: handle}
	m.order = append(m.order, term.ID)
	m.monitor.Watch(m.ctx, term.ID)

	fields := map[string]interface{}{"handle": handle.Ref}
	if replacesID != "" {
		fields["replaces"] = replacesID
	}
	m.emit(model.EventTerminalCreated, "", term.ID, "terminal created", fields)
	m.signal()
	return term.Clone(), nil
}

// Stop cancels in-flight work, stops health loops and kills every terminal
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.monitor.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.cfg.Pool.ShutdownTimeout):
		logger.WarnCtx(ctx, "pool shutdown timed out waiting for executions")
	}

	m.mu.Lock()
	handles := make([]*interfaces.TerminalHandle, 0, len(m.slots))
	for _, s := range m.slots {
		handles = append(handles, s.handle)
	}
	m.mu.Unlock()

	for _, h := range handles {
		if err := m.adapter.Kill(ctx, h); err != nil {
			logger.WarnCtx(ctx, "failed to kill terminal process %s: %v", h.Ref, err)
		}
	}
	m.escalation.Wait()
	m.notifyWG.Wait()
	logger.InfoCtx(ctx, "terminal pool stopped")
}

// loop drains the queue on every wake-up and on the drain interval
func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Pool.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
			m.refill()
		}
		m.Drain()
	}
}

// refill launches terminals when the active count fell below the target,
// which happens when a replacement launch ran out of retries
func (m *Manager) refill() {
	m.mu.Lock()
	missing := m.targetSize - m.activeCountLocked() - m.launching
	if !m.running || m.refilling || missing <= 0 {
		m.mu.Unlock()
		return
	}
	m.refilling = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.refilling = false
			m.mu.Unlock()
		}()
		logger.WarnCtx(m.ctx, "pool below target size, launching %d terminals", missing)
		if err := m.launchTerminals(m.ctx, missing); err != nil {
			logger.ErrorCtx(m.ctx, "failed to refill pool: %v", err)
		}
	}()
}

// signal wakes the drain loop without blocking
func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// emit records an audit event; callers hold m.mu so events follow transition order
func (m *Manager) emit(typ model.EventType, taskID, terminalID, msg string, fields map[string]interface{}) {
	ctx := context.Background()
	if taskID != "" {
		ctx = logger.WithTraceID(ctx, taskID)
	}
	m.audit.Emit(ctx, typ, taskID, terminalID, msg, fields)
}

// Terminals returns copies of active terminals in creation order
func (m *Manager) Terminals() []*model.Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Terminal, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.slots[id].term.Clone())
	}
	return out
}

// Terminal returns a copy of an active or retired terminal
func (m *Manager) Terminal(id string) (*model.Terminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok {
		return s.term.Clone(), nil
	}
	if t, ok := m.retired[id]; ok {
		return t.Clone(), nil
	}
	return nil, ErrTerminalNotFound
}

// RetiredTerminals returns copies of every retired terminal
func (m *Manager) RetiredTerminals() []*model.Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Terminal, 0, len(m.retired))
	for _, t := range m.retired {
		out = append(out, t.Clone())
	}
	return out
}

// TargetSize current target terminal count
func (m *Manager) TargetSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetSize
}
