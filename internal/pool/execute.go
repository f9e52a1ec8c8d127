package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
	"termpool/pkg/transfer"
)

// step what the execution loop does after handling a run result
type step int

const (
	stepDone   step = iota // terminal released, execution over
	stepRerun              // run again within the same attempt
	stepRepair             // attempt failed on a faulty terminal, climb the ladder
)

// execute owns s for the whole attempt: it holds the terminal's operation lock
// so health checks and repairs cannot interleave with the run
func (m *Manager) execute(s *slot, taskID string) {
	defer m.wg.Done()
	s.op.Lock()
	defer s.op.Unlock()

	ctx := logger.WithTraceID(m.ctx, taskID)
	prompts := 0
	started := false

	for {
		m.mu.Lock()
		task, ok := m.tasks[taskID]
		if !ok {
			m.releaseLocked(s)
			m.mu.Unlock()
			return
		}
		if task.Status == constants.TaskStatusCancelled {
			m.endAttemptLocked(task, constants.AttemptOutcomeCancelled, "cancelled before start", nil)
			m.releaseLocked(s)
			m.mu.Unlock()
			return
		}
		if m.ctx.Err() != nil {
			m.abortLocked(s, task)
			m.mu.Unlock()
			return
		}
		if s.run != nil && s.run.cancelRequested {
			m.endAttemptLocked(task, constants.AttemptOutcomeCancelled, "", nil)
			m.cancelledLocked(task, "cancelled while running")
			m.releaseLocked(s)
			m.mu.Unlock()
			return
		}

		now := m.now()
		attempt := task.LastAttempt()
		remaining := task.Timeout - activeElapsed(attempt, now)
		if remaining <= 0 {
			remaining = time.Nanosecond
		}
		runCtx, cancel := context.WithTimeout(ctx, remaining)

		if s.run == nil {
			s.run = &runState{taskID: taskID, cancelCh: make(chan struct{})}
		}
		s.run.cancel = cancel
		task.Status = constants.TaskStatusRunning
		task.UpdatedAt = now
		if !started {
			started = true
			m.emit(model.EventTaskStarted, task.ID, s.term.ID, "task started", map[string]interface{}{
				"attempt": len(task.Attempts),
			})
		}
		req := &interfaces.ExecutionRequest{
			TaskID:     task.ID,
			TerminalID: s.term.ID,
			Attempt:    len(task.Attempts),
			Payload:    task.Payload,
		}
		if snap, ok := m.transfer.Latest(task.ID); ok {
			req.Snapshot = snap
			req.Resume = transfer.Replay(snap)
		}
		handle := s.handle
		m.mu.Unlock()

		res, err := m.adapter.Run(runCtx, handle, req)
		runErr := runCtx.Err()
		cancel()

		switch m.handleResult(ctx, s, taskID, res, err, runErr, &prompts) {
		case stepRerun:
			continue
		case stepRepair:
			m.repairSlot(ctx, s)
		}
		return
	}
}

// activeElapsed attempt time excluding rate-limit suspensions
func activeElapsed(a *model.Attempt, now time.Time) time.Duration {
	if a == nil {
		return 0
	}
	return now.Sub(a.StartedAt) - a.SuspendedFor
}

func (m *Manager) handleResult(ctx context.Context, s *slot, taskID string, res *interfaces.ExecutionResult, err, runErr error, prompts *int) step {
	m.mu.Lock()
	task := m.tasks[taskID]
	run := s.run
	cancelRequested := run != nil && run.cancelRequested

	switch {
	case err == nil && res != nil && res.Event == interfaces.ExecutionCompleted:
		m.completeLocked(s, task, res)
		m.mu.Unlock()
		return stepDone

	case cancelRequested:
		defer m.mu.Unlock()
		if err != nil {
			// the terminal ignored the cancel signal for the whole task timeout
			m.endAttemptLocked(task, constants.AttemptOutcomeFailed, "no response to cancellation", res)
			m.cancelledLocked(task, "cancelled, terminal unresponsive")
			m.detachLocked(s)
			m.degradeLocked(s, "unresponsive to cancellation")
			return stepRepair
		}
		m.endAttemptLocked(task, constants.AttemptOutcomeCancelled, "", res)
		m.cancelledLocked(task, "cancelled while running")
		m.releaseLocked(s)
		return stepDone

	case m.ctx.Err() != nil:
		m.abortLocked(s, task)
		m.mu.Unlock()
		return stepDone

	case err != nil:
		defer m.mu.Unlock()
		if errors.Is(runErr, context.DeadlineExceeded) {
			m.failLocked(s, task, constants.AttemptOutcomeTimeout, fmt.Sprintf("task timed out after %s", task.Timeout), res, true)
		} else {
			m.failLocked(s, task, constants.AttemptOutcomeFault, err.Error(), res, true)
		}
		return stepRepair

	case res == nil:
		defer m.mu.Unlock()
		m.failLocked(s, task, constants.AttemptOutcomeFault, "adapter returned no result", nil, true)
		return stepRepair
	}

	switch res.Event {
	case interfaces.ExecutionRateLimited:
		m.mu.Unlock()
		return m.suspend(ctx, s, taskID, res)

	case interfaces.ExecutionPermissionPrompt:
		if m.cfg.Task.PermissionAutoAccept && *prompts < m.cfg.Task.MaxPermissionPrompts {
			*prompts++
			handle := s.handle
			m.emit(model.EventPermissionAccepted, task.ID, s.term.ID, "permission prompt auto-accepted", map[string]interface{}{
				"prompt": res.Prompt,
				"count":  *prompts,
			})
			m.mu.Unlock()

			if err := m.adapter.Send(ctx, handle, interfaces.SignalAcceptPermission); err != nil {
				m.mu.Lock()
				defer m.mu.Unlock()
				m.failLocked(s, task, constants.AttemptOutcomeFault, fmt.Sprintf("failed to accept permission prompt: %v", err), res, true)
				return stepRepair
			}
			return stepRerun
		}

		defer m.mu.Unlock()
		reason := "auto-accept disabled"
		if m.cfg.Task.PermissionAutoAccept {
			reason = fmt.Sprintf("more than %d prompts in one attempt", m.cfg.Task.MaxPermissionPrompts)
		}
		m.emit(model.EventPermissionDenied, task.ID, s.term.ID, "permission prompt denied", map[string]interface{}{
			"prompt": res.Prompt,
			"reason": reason,
		})
		m.failLocked(s, task, constants.AttemptOutcomeFailed, fmt.Sprintf("permission prompt not accepted (%s): %s", reason, res.Prompt), res, false)
		return stepDone

	case interfaces.ExecutionTerminalFault:
		defer m.mu.Unlock()
		msg := res.Error
		if msg == "" {
			msg = "terminal fault"
		}
		m.failLocked(s, task, constants.AttemptOutcomeFault, msg, res, true)
		return stepRepair

	default:
		defer m.mu.Unlock()
		msg := res.Error
		if msg == "" {
			msg = fmt.Sprintf("run ended with %s", res.Event)
		}
		m.failLocked(s, task, constants.AttemptOutcomeFailed, msg, res, false)
		return stepDone
	}
}

// suspend holds the terminal for the rate-limit wait and then resumes the same
// attempt. Suspended time is excluded from the attempt's timeout and never
// consumes an attempt.
func (m *Manager) suspend(ctx context.Context, s *slot, taskID string, res *interfaces.ExecutionResult) step {
	wait := m.cfg.Task.RateLimitWait

	m.mu.Lock()
	task := m.tasks[taskID]
	run := s.run
	task.Status = constants.TaskStatusSuspended
	task.SuspendReason = constants.SuspendReasonRateLimited
	task.UpdatedAt = m.now()
	task.Snapshot = m.transfer.Capture(task, s.term.ID, constants.SuspendReasonRateLimited, res)
	m.emit(model.EventAPISuspended, task.ID, s.term.ID, "task suspended for rate limiting", map[string]interface{}{
		"wait": wait.String(),
	})
	m.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var cancelled, stopped bool
	select {
	case <-timer.C:
	case <-run.cancelCh:
		cancelled = true
	case <-m.ctx.Done():
		stopped = true
	}
	waited := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt := task.LastAttempt(); attempt != nil {
		attempt.SuspendedFor += waited
	}
	task.SuspendReason = ""

	switch {
	case cancelled:
		m.endAttemptLocked(task, constants.AttemptOutcomeCancelled, "", nil)
		m.cancelledLocked(task, "cancelled while suspended")
		m.releaseLocked(s)
		return stepDone
	case stopped:
		m.abortLocked(s, task)
		return stepDone
	}

	task.Status = constants.TaskStatusRunning
	task.UpdatedAt = m.now()
	m.emit(model.EventAPIResumed, task.ID, s.term.ID, "task resumed after rate-limit wait", map[string]interface{}{
		"waited": waited.String(),
	})
	logger.InfoCtx(ctx, "task resumed on %s after %s", s.term.ID, waited)
	return stepRerun
}
