package pool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
)

// Submit validates req, applies defaults and enqueues the task. A full queue
// is reported as *queue.QueueFullError and nothing is registered.
func (m *Manager) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Task, error) {
	if req == nil || req.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidTask)
	}
	if req.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidTask)
	}

	timeout := m.cfg.Task.DefaultTimeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: bad timeout %q", ErrInvalidTask, req.Timeout)
		}
		timeout = d
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = m.cfg.Task.DefaultMaxAttempts
	}

	now := m.now()
	task := &model.Task{
		ID:          uuid.NewString(),
		Payload:     req.Payload,
		Priority:    req.Priority,
		MaxAttempts: maxAttempts,
		Timeout:     timeout,
		Status:      constants.TaskStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, ErrPoolStopped
	}
	if err := m.queue.Enqueue(task); err != nil {
		return nil, err
	}
	m.tasks[task.ID] = task
	m.emit(model.EventTaskQueued, task.ID, "", "task queued", map[string]interface{}{
		"priority":     task.Priority,
		"max_attempts": task.MaxAttempts,
		"timeout":      task.Timeout.String(),
	})
	m.signal()

	logger.InfoCtx(logger.WithTraceID(ctx, task.ID), "task submitted, priority=%d", task.Priority)
	return task.Clone(), nil
}

// Task returns a copy of the task
func (m *Manager) Task(id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Tasks returns copies of every task with status (all when empty), oldest first
func (m *Manager) Tasks(status constants.TaskStatus) []*model.Task {
	m.mu.Lock()
	out := make([]*model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if status == "" || t.Status == status {
			out = append(out, t.Clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cancel cancels a task.
//
//	QUEUED              removed from the queue, CANCELLED immediately
//	ASSIGNED            CANCELLED before the run starts
//	RUNNING, SUSPENDED  the terminal is asked to stop; the task becomes
//	                    CANCELLED once it answers. A terminal that does not
//	                    answer within the task timeout is sent to repair.
//
// Finished tasks return ErrNotCancellable.
func (m *Manager) Cancel(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	switch task.Status {
	case constants.TaskStatusQueued:
		m.queue.Remove(id)
		m.cancelledLocked(task, "cancelled while queued")

	case constants.TaskStatusAssigned:
		// execute sees the status and releases the terminal
		m.cancelledLocked(task, "cancelled before start")

	case constants.TaskStatusRunning, constants.TaskStatusSuspended:
		a := task.LastAttempt()
		s, ok := m.slots[a.TerminalID]
		if !ok || s.run == nil || s.run.taskID != id {
			return nil, fmt.Errorf("%w: no active run for task %s", ErrNotCancellable, id)
		}
		run := s.run
		if run.cancelRequested {
			return task.Clone(), nil
		}
		run.cancelRequested = true
		close(run.cancelCh)
		run.cancelTimer = time.AfterFunc(task.Timeout, func() {
			m.mu.Lock()
			stop := run.cancel
			m.mu.Unlock()
			if stop != nil {
				stop()
			}
		})

		if task.Status == constants.TaskStatusRunning {
			handle := s.handle
			go func() {
				sendCtx, cancel := context.WithTimeout(context.Background(), m.cfg.Pool.ProbeTimeout)
				defer cancel()
				if err := m.adapter.Send(sendCtx, handle, interfaces.SignalCancel); err != nil {
					logger.WarnCtx(logger.WithTraceID(ctx, id), "failed to deliver cancel signal: %v", err)
				}
			}()
		}
		logger.InfoCtx(logger.WithTraceID(ctx, id), "cancellation requested on terminal %s", a.TerminalID)

	default:
		return nil, ErrNotCancellable
	}
	return task.Clone(), nil
}

// PruneFinished forgets finished tasks that completed before now-olderThan
// and returns how many were removed
func (m *Manager) PruneFinished(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-olderThan)
	removed := 0
	for id, t := range m.tasks {
		if !t.Status.IsTerminal() || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}
