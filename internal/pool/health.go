package pool

import (
	"context"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/health"
	"termpool/pkg/logger"
	"termpool/pkg/repair"
)

// CheckTerminal probes id once and climbs the repair ladder when the probe
// leaves it DEGRADED. Terminals that are executing or already under repair are
// skipped: a hung run is bounded by the task timeout instead.
func (m *Manager) CheckTerminal(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.slots[id]
	if !ok || !m.running || s.busy {
		m.mu.Unlock()
		return
	}
	if !s.op.TryLock() {
		m.mu.Unlock()
		return
	}
	s.busy = true
	handle := s.handle
	m.mu.Unlock()
	defer s.op.Unlock()

	status := health.Probe(ctx, m.adapter, handle, m.cfg.Pool.ProbeTimeout)

	m.mu.Lock()
	prev := s.term.State
	state := health.ApplyProbe(s.term, status, m.now())
	switch {
	case prev == constants.TerminalStateHealthy && state == constants.TerminalStateDegraded:
		m.emit(model.EventTerminalDegraded, "", id, "terminal degraded", map[string]interface{}{
			"level":  s.term.RepairLevel.String(),
			"reason": "probe unresponsive",
		})
	case prev == constants.TerminalStateDegraded && state == constants.TerminalStateHealthy:
		m.emit(model.EventTerminalRepaired, "", id, "terminal answered probe", nil)
	}
	if state != constants.TerminalStateDegraded {
		s.busy = false
		m.signal()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.repairSlot(ctx, s)
}

// RepairTerminal runs the repair ladder on id now, starting at its current
// level. A HEALTHY terminal is returned unchanged. When the ladder ends in a
// replacement the retired terminal is returned.
func (m *Manager) RepairTerminal(ctx context.Context, id string) (*model.Terminal, error) {
	m.mu.Lock()
	s, ok := m.slots[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrTerminalNotFound
	}
	if s.busy || !s.op.TryLock() {
		m.mu.Unlock()
		return nil, ErrTerminalBusy
	}
	if s.term.State == constants.TerminalStateHealthy {
		t := s.term.Clone()
		s.op.Unlock()
		m.mu.Unlock()
		return t, nil
	}
	s.busy = true
	m.mu.Unlock()
	defer s.op.Unlock()

	logger.InfoCtx(ctx, "manual repair requested for terminal %s", id)
	m.repairSlot(m.ctx, s)
	return m.Terminal(id)
}

// repairSlot climbs the ladder for a DEGRADED terminal. The caller holds
// s.op and has marked s busy; on return s is HEALTHY and free, or retired and
// replaced by a new terminal.
func (m *Manager) repairSlot(ctx context.Context, s *slot) {
	m.mu.Lock()
	from := s.term.RepairLevel
	handle := s.handle
	id := s.term.ID
	m.mu.Unlock()

	m.engine.Ladder(ctx, handle, from, func(r repair.Result) {
		m.mu.Lock()
		defer m.mu.Unlock()

		state := health.ApplyRepair(s.term, r.Level, r.Success, m.now())
		s.term.HandleRef = handle.Ref
		fields := map[string]interface{}{
			"level":    r.Level.String(),
			"duration": r.Duration.String(),
		}
		if r.Err != nil {
			fields["error"] = r.Err.Error()
		}
		switch state {
		case constants.TerminalStateHealthy:
			m.emit(model.EventTerminalRepaired, "", id, "terminal repaired", fields)
		case constants.TerminalStateDead:
			m.emit(model.EventTerminalDead, "", id, "repair ladder exhausted", fields)
		default:
			fields["next_level"] = s.term.RepairLevel.String()
			m.emit(model.EventTerminalDegraded, "", id, "repair level failed", fields)
		}
	})

	m.mu.Lock()
	state := s.term.State
	if state != constants.TerminalStateDead {
		// healthy again, or the ladder was interrupted by shutdown
		s.busy = false
		m.signal()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.recordKill(id)
	m.replace(ctx, s)
}

// recordKill feeds the instability detector and raises the alert it returns
func (m *Manager) recordKill(id string) {
	alert := m.detector.Record(id)
	if alert == nil {
		return
	}

	m.mu.Lock()
	m.emit(model.EventPoolUnstable, "", id, "repeated terminal kills", map[string]interface{}{
		"count":     alert.Count,
		"window":    alert.Window.String(),
		"terminals": alert.TerminalIDs,
	})
	m.mu.Unlock()

	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Notification.Timeout)
		defer cancel()
		if err := m.notifier.NotifyInstability(ctx, alert); err != nil {
			logger.Errorf("instability alert delivery failed: %v", err)
		}
	}()
}

// replace retires a DEAD terminal for good and launches a terminal with a
// new id in its place. The old id is retired even if the launch fails; the
// drain loop then refills the pool up to its target.
func (m *Manager) replace(ctx context.Context, s *slot) {
	m.mu.Lock()
	old := s.term.ID
	s.term.State = constants.TerminalStateReplacing
	m.mu.Unlock()

	term, err := m.addTerminal(ctx, old)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to replace terminal %s: %v", old, err)
	} else {
		m.emit(model.EventTerminalReplaced, "", old, "terminal replaced", map[string]interface{}{
			"replacement": term.ID,
		})
	}
	s.busy = false
	m.retireLocked(s, "replaced", false)
	m.signal()
}
