// Package health classifies terminals from probe and repair outcomes and runs
// the per-terminal probe loops.
package health

import (
	"context"
	"time"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/interfaces"
)

// Status probe verdict
type Status string

const (
	StatusHealthy      Status = "HEALTHY"
	StatusUnresponsive Status = "UNRESPONSIVE"
)

// Probe runs a single adapter probe bounded by timeout. A probe that does not
// answer in time counts as unresponsive.
func Probe(ctx context.Context, adapter interfaces.WorkerAdapter, handle *interfaces.TerminalHandle, timeout time.Duration) Status {
	if handle == nil {
		return StatusUnresponsive
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- adapter.Probe(probeCtx, handle)
	}()

	select {
	case ok := <-result:
		if ok {
			return StatusHealthy
		}
		return StatusUnresponsive
	case <-probeCtx.Done():
		return StatusUnresponsive
	}
}

// ApplyProbe folds a probe verdict into t and returns the new state.
//
//	HEALTHY     + unresponsive -> DEGRADED(1)
//	DEGRADED(n) + healthy      -> HEALTHY, counters reset
//	DEGRADED(n) + unresponsive -> DEGRADED(n), counter incremented
//
// DEAD, REPLACING and RETIRED terminals are not changed by probes.
func ApplyProbe(t *model.Terminal, status Status, now time.Time) constants.TerminalState {
	t.LastProbeAt = now
	switch t.State {
	case constants.TerminalStateHealthy:
		if status == StatusHealthy {
			t.ConsecutiveHealthFailures = 0
			return t.State
		}
		t.ConsecutiveHealthFailures++
		t.State = constants.TerminalStateDegraded
		t.RepairLevel = constants.RepairLevelGentle
	case constants.TerminalStateDegraded:
		if status == StatusHealthy {
			markHealthy(t)
			return t.State
		}
		t.ConsecutiveHealthFailures++
	}
	return t.State
}

// ApplyRepair folds the outcome of a repair at level into t.
//
//	success at any level      -> HEALTHY, level cleared
//	failure at level n < KILL -> DEGRADED(n+1)
//	KILL                      -> DEAD
func ApplyRepair(t *model.Terminal, level constants.RepairLevel, success bool, now time.Time) constants.TerminalState {
	t.LastRepairAt = now
	if success && level < constants.RepairLevelKill {
		markHealthy(t)
		return t.State
	}
	if level >= constants.RepairLevelKill {
		t.State = constants.TerminalStateDead
		t.RepairLevel = constants.RepairLevelKill
		return t.State
	}
	t.ConsecutiveHealthFailures++
	t.State = constants.TerminalStateDegraded
	t.RepairLevel = level + 1
	return t.State
}

func markHealthy(t *model.Terminal) {
	t.State = constants.TerminalStateHealthy
	t.RepairLevel = constants.RepairLevelNone
	t.ConsecutiveHealthFailures = 0
}

// Assignable reports whether t may receive a task
func Assignable(t *model.Terminal) bool {
	return t.Idle()
}
