package pool

import (
	"termpool/internal/model"
	"termpool/pkg/constants"
)

// Metrics derives pool metrics from the registries
func (m *Manager) Metrics() *model.PoolMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm := &model.PoolMetrics{
		CollectedAt:      m.now(),
		TargetSize:       m.targetSize,
		Terminals:        len(m.slots),
		TerminalsByState: make(map[string]int),
		QueueDepth:       m.queue.Len(),
		QueueCapacity:    m.queue.Capacity(),
		RetiredTerminals: len(m.retired),
		TasksByStatus:    make(map[string]int),
	}
	for _, s := range m.slots {
		pm.TerminalsByState[s.term.State.String()]++
		if m.available(s) {
			pm.IdleTerminals++
		}
	}
	for _, t := range m.tasks {
		pm.TasksByStatus[t.Status.String()]++
		switch t.Status {
		case constants.TaskStatusAssigned, constants.TaskStatusRunning:
			pm.ActiveTasks++
		case constants.TaskStatusSuspended:
			pm.ActiveTasks++
			pm.SuspendedTasks++
		case constants.TaskStatusCompleted:
			pm.CompletedTasks++
		case constants.TaskStatusEscalated:
			pm.EscalatedTasks++
		case constants.TaskStatusCancelled:
			pm.CancelledTasks++
		}
	}
	return pm
}
