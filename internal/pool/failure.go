package pool

import (
	"context"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/health"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
)

// endAttemptLocked closes the current attempt with outcome; requires m.mu
func (m *Manager) endAttemptLocked(task *model.Task, outcome constants.AttemptOutcome, errMsg string, res *interfaces.ExecutionResult) {
	a := task.LastAttempt()
	if a == nil || a.Ended() {
		return
	}
	now := m.now()
	a.EndedAt = &now
	a.Outcome = outcome
	a.Error = errMsg
	if step := res.LastCompletedStep(); step != "" {
		a.LastCompletedStep = step
	}
}

// completeLocked records a successful run; requires m.mu
func (m *Manager) completeLocked(s *slot, task *model.Task, res *interfaces.ExecutionResult) {
	m.endAttemptLocked(task, constants.AttemptOutcomeCompleted, "", res)

	now := m.now()
	task.Status = constants.TaskStatusCompleted
	task.Output = res.Output
	task.Error = ""
	task.UpdatedAt = now
	task.CompletedAt = &now
	task.Snapshot = nil
	m.transfer.Discard(task.ID)

	m.emit(model.EventTaskCompleted, task.ID, s.term.ID, "task completed", map[string]interface{}{
		"attempts": len(task.Attempts),
	})
	m.releaseLocked(s)
}

// cancelledLocked moves task to CANCELLED and drops its context; requires m.mu
func (m *Manager) cancelledLocked(task *model.Task, msg string) {
	now := m.now()
	task.Status = constants.TaskStatusCancelled
	task.SuspendReason = ""
	task.UpdatedAt = now
	task.CompletedAt = &now
	task.Snapshot = nil
	m.transfer.Discard(task.ID)

	terminalID := ""
	if a := task.LastAttempt(); a != nil {
		terminalID = a.TerminalID
	}
	m.emit(model.EventTaskCancelled, task.ID, terminalID, msg, nil)
}

// failLocked runs the failure path for the current attempt of task on s:
// the attempt is closed, context is captured for the next terminal, and the
// task is either requeued or escalated. With faulty set the terminal is
// marked DEGRADED and kept busy for the repair that follows; otherwise it
// is released. Requires m.mu.
func (m *Manager) failLocked(s *slot, task *model.Task, outcome constants.AttemptOutcome, errMsg string, res *interfaces.ExecutionResult, faulty bool) {
	m.endAttemptLocked(task, outcome, errMsg, res)

	task.Status = constants.TaskStatusFailed
	task.Error = errMsg
	task.UpdatedAt = m.now()
	m.emit(model.EventTaskFailed, task.ID, s.term.ID, "attempt failed", map[string]interface{}{
		"attempt": len(task.Attempts),
		"outcome": string(outcome),
		"error":   errMsg,
	})

	snap := m.transfer.Capture(task, s.term.ID, string(outcome), res)
	task.Snapshot = snap
	m.emit(model.EventContextTransferred, task.ID, s.term.ID, "execution context captured", map[string]interface{}{
		"completed_steps": len(snap.CompletedSteps),
		"pending_steps":   len(snap.PendingSteps),
	})

	if task.AttemptsRemaining() {
		m.requeueLocked(task, s.term.ID)
	} else {
		m.escalateLocked(task)
	}

	if faulty {
		m.detachLocked(s)
		m.degradeLocked(s, errMsg)
		return
	}
	m.releaseLocked(s)
}

func (m *Manager) requeueLocked(task *model.Task, fromTerminal string) {
	if err := m.queue.Requeue(task); err != nil {
		logger.ErrorCtx(logger.WithTraceID(context.Background(), task.ID), "failed to requeue task: %v", err)
		m.escalateLocked(task)
		return
	}
	task.Status = constants.TaskStatusQueued
	task.Requeued = true
	task.UpdatedAt = m.now()
	m.emit(model.EventTaskRequeued, task.ID, fromTerminal, "task requeued", map[string]interface{}{
		"attempts_used": len(task.Attempts),
		"max_attempts":  task.MaxAttempts,
	})
	m.signal()
}

// escalateLocked hands task to the escalation handler; requires m.mu
func (m *Manager) escalateLocked(task *model.Task) {
	ctx := logger.WithTraceID(context.Background(), task.ID)
	d, _ := m.escalation.Escalate(ctx, task)

	now := m.now()
	task.Status = constants.TaskStatusEscalated
	task.Diagnosis = d
	task.UpdatedAt = now
	task.CompletedAt = &now
	task.Snapshot = nil
	m.transfer.Discard(task.ID)

	terminalID := ""
	if a := task.LastAttempt(); a != nil {
		terminalID = a.TerminalID
	}
	m.emit(model.EventTaskEscalated, task.ID, terminalID, "task escalated", map[string]interface{}{
		"category":    string(d.Category),
		"remediation": d.Remediation,
		"attempts":    len(task.Attempts),
	})
}

// abortLocked ends the task's attempt because the pool is shutting down;
// the task is not requeued or escalated. Requires m.mu.
func (m *Manager) abortLocked(s *slot, task *model.Task) {
	m.endAttemptLocked(task, constants.AttemptOutcomeFailed, "pool stopped", nil)
	task.Status = constants.TaskStatusFailed
	task.Error = "pool stopped"
	task.SuspendReason = ""
	task.UpdatedAt = m.now()
	m.emit(model.EventTaskFailed, task.ID, s.term.ID, "attempt aborted by shutdown", map[string]interface{}{
		"attempt": len(task.Attempts),
	})
	m.detachLocked(s)
	s.busy = false
}

// degradeLocked marks s unresponsive after a fault seen during execution; requires m.mu
func (m *Manager) degradeLocked(s *slot, reason string) {
	prev := s.term.State
	if health.ApplyProbe(s.term, health.StatusUnresponsive, m.now()) == constants.TerminalStateDegraded &&
		prev != constants.TerminalStateDegraded {
		m.emit(model.EventTerminalDegraded, "", s.term.ID, "terminal degraded", map[string]interface{}{
			"level":  s.term.RepairLevel.String(),
			"reason": reason,
		})
	}
}

// detachLocked clears the run bookkeeping of s without freeing it; requires m.mu
func (m *Manager) detachLocked(s *slot) {
	if s.run != nil && s.run.cancelTimer != nil {
		s.run.cancelTimer.Stop()
	}
	s.run = nil
	s.term.CurrentTaskID = ""
}

// releaseLocked frees s for dispatch, retiring it instead when the pool is
// above its target size; requires m.mu
func (m *Manager) releaseLocked(s *slot) {
	m.detachLocked(s)
	s.busy = false
	if m.running && m.activeCountLocked() > m.targetSize && s.term.Idle() {
		m.retireLocked(s, "pool shrink", true)
		return
	}
	m.signal()
}

// activeCountLocked terminals counting toward the target size; a terminal
// being replaced is already covered by its replacement. Requires m.mu.
func (m *Manager) activeCountLocked() int {
	n := 0
	for _, s := range m.slots {
		switch s.term.State {
		case constants.TerminalStateDead, constants.TerminalStateReplacing:
		default:
			n++
		}
	}
	return n
}

// retireLocked removes s from the active registry, killing its process in
// the background when kill is set; requires m.mu
func (m *Manager) retireLocked(s *slot, reason string, kill bool) {
	s.term.State = constants.TerminalStateRetired
	s.term.CurrentTaskID = ""
	id := s.term.ID
	m.retired[id] = s.term
	delete(m.slots, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.monitor.Unwatch(id)
	m.emit(model.EventTerminalRetired, "", id, "terminal retired", map[string]interface{}{
		"reason": reason,
	})

	if !kill {
		return
	}
	handle := s.handle
	go func() {
		if err := m.adapter.Kill(context.Background(), handle); err != nil {
			logger.Warnf("failed to kill retired terminal %s: %v", id, err)
		}
	}()
}
