package pool

import (
	"time"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

type assignment struct {
	slot   *slot
	taskID string
}

// Drain assigns queued tasks to idle HEALTHY terminals, one task per terminal,
// walking terminals in creation order
func (m *Manager) Drain() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}

	now := m.now()
	var assigned []assignment
	for _, id := range m.order {
		s := m.slots[id]
		if !m.available(s) {
			continue
		}
		task, ok := m.queue.DequeueMatch(func(t *model.Task) bool {
			return m.eligible(t, s, now)
		})
		if !ok {
			continue
		}
		m.assignLocked(s, task, now)
		assigned = append(assigned, assignment{slot: s, taskID: task.ID})
	}

	for _, a := range assigned {
		m.wg.Add(1)
		go m.execute(a.slot, a.taskID)
	}
	m.mu.Unlock()
}

// available reports whether s may take a new task; requires m.mu
func (m *Manager) available(s *slot) bool {
	return s.term.Idle() && !s.busy
}

// eligible decides whether task may run on s now; requires m.mu.
//
// A task avoids the terminal its previous attempt ran on whenever a healthy
// alternative exists. The final attempt may reuse it as soon as no
// alternative is idle; earlier attempts may reuse it only when it is the
// only healthy terminal left and the reassignment grace has passed.
func (m *Manager) eligible(task *model.Task, s *slot, now time.Time) bool {
	last := task.LastAttempt()
	if last == nil || last.TerminalID != s.term.ID {
		return true
	}

	idleAlt, healthyAlt := false, false
	for _, id := range m.order {
		other := m.slots[id]
		if other == s || other.term.State != constants.TerminalStateHealthy {
			continue
		}
		healthyAlt = true
		if m.available(other) {
			idleAlt = true
		}
	}

	if idleAlt {
		return false
	}
	if task.NextAttemptIsFinal() {
		return true
	}
	if healthyAlt {
		return false
	}
	ended := last.StartedAt
	if last.EndedAt != nil {
		ended = *last.EndedAt
	}
	return now.Sub(ended) >= m.cfg.Pool.ReassignGrace
}

// assignLocked moves task to ASSIGNED on s and opens a new attempt; requires m.mu
func (m *Manager) assignLocked(s *slot, task *model.Task, now time.Time) {
	prev := task.LastAttempt()

	task.Status = constants.TaskStatusAssigned
	task.UpdatedAt = now
	task.Attempts = append(task.Attempts, model.Attempt{
		TerminalID: s.term.ID,
		StartedAt:  now,
		Outcome:    constants.AttemptOutcomeRunning,
	})
	s.term.CurrentTaskID = task.ID
	s.busy = true

	m.emit(model.EventTaskAssigned, task.ID, s.term.ID, "task assigned", map[string]interface{}{
		"attempt": len(task.Attempts),
	})
	if prev != nil {
		m.emit(model.EventTaskReassigned, task.ID, s.term.ID, "task reassigned", map[string]interface{}{
			"from":        prev.TerminalID,
			"to":          s.term.ID,
			"attempt":     len(task.Attempts),
			"resume_from": prev.LastCompletedStep,
		})
	}
}
