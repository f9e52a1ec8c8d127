// Package repair implements the five-level repair ladder for unhealthy terminals.
package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"termpool/pkg/config"
	"termpool/pkg/constants"
	"termpool/pkg/health"
	"termpool/pkg/interfaces"
	"termpool/pkg/logger"
)

// Result outcome of one ladder step
type Result struct {
	Level    constants.RepairLevel
	Success  bool
	Err      error
	Duration time.Duration
}

// action one rung of the ladder; it performs the level's intervention and
// returns once the terminal can be re-probed
type action func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error

var ladder = map[constants.RepairLevel]action{
	constants.RepairLevelGentle: func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error {
		return e.adapter.Send(ctx, h, interfaces.SignalNoop)
	},
	constants.RepairLevelContext: func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error {
		return e.adapter.Send(ctx, h, interfaces.SignalDumpRestore)
	},
	constants.RepairLevelInterrupt: func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error {
		return e.adapter.Send(ctx, h, interfaces.SignalInterrupt)
	},
	constants.RepairLevelRestart: func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error {
		return e.adapter.Restart(ctx, h)
	},
	constants.RepairLevelKill: func(ctx context.Context, e *Engine, h *interfaces.TerminalHandle) error {
		return e.adapter.Kill(ctx, h)
	},
}

// Engine executes repair levels against the worker adapter
type Engine struct {
	adapter      interfaces.WorkerAdapter
	timeouts     map[constants.RepairLevel]time.Duration
	pollInterval time.Duration
	backoffMax   time.Duration
}

// NewEngine creates a repair engine with per-level timeouts from cfg
func NewEngine(adapter interfaces.WorkerAdapter, cfg config.RepairConfig) *Engine {
	t := cfg.Timeouts()
	e := &Engine{
		adapter: adapter,
		timeouts: map[constants.RepairLevel]time.Duration{
			constants.RepairLevelGentle:    t[0],
			constants.RepairLevelContext:   t[1],
			constants.RepairLevelInterrupt: t[2],
			constants.RepairLevelRestart:   t[3],
			constants.RepairLevelKill:      t[4],
		},
		backoffMax: cfg.ReplaceBackoffMax,
	}
	e.pollInterval = t[0] / 5
	if e.pollInterval <= 0 {
		e.pollInterval = time.Millisecond
	}
	return e
}

// Timeout returns the budget of level
func (e *Engine) Timeout(level constants.RepairLevel) time.Duration {
	return e.timeouts[level]
}

// Repair runs level against h and reports whether the terminal answered a probe
// within the level's timeout. KILL never succeeds: it only terminates the
// process, and the caller replaces the terminal.
func (e *Engine) Repair(ctx context.Context, h *interfaces.TerminalHandle, level constants.RepairLevel) Result {
	start := time.Now()
	res := Result{Level: level}
	act, ok := ladder[level]
	if !ok {
		res.Err = fmt.Errorf("invalid repair level %d", level)
		return res
	}

	levelCtx, cancel := context.WithTimeout(ctx, e.timeouts[level])
	defer cancel()

	if err := act(levelCtx, e, h); err != nil {
		res.Err = fmt.Errorf("%s action failed: %w", level, err)
		logger.DebugCtx(ctx, "repair %s on %s: %v", level, h.Ref, err)
	}

	if level == constants.RepairLevelKill {
		res.Duration = time.Since(start)
		return res
	}

	// await recovery within the level budget
	res.Success = e.awaitHealthy(levelCtx, h)
	res.Duration = time.Since(start)
	if res.Success {
		res.Err = nil
	}
	return res
}

// Ladder climbs from level until a step succeeds or KILL has run. onStep is
// called after every step, in order, before the next one starts.
func (e *Engine) Ladder(ctx context.Context, h *interfaces.TerminalHandle, from constants.RepairLevel, onStep func(Result)) Result {
	if !from.Valid() {
		from = constants.RepairLevelGentle
	}
	var res Result
	for level := from; level <= constants.MaxRepairLevel; level++ {
		if ctx.Err() != nil {
			return Result{Level: level, Err: ctx.Err()}
		}
		res = e.Repair(ctx, h, level)
		if onStep != nil {
			onStep(res)
		}
		if res.Success {
			return res
		}
	}
	return res
}

// Launch starts a replacement process, retrying with exponential backoff until
// it answers a probe or the replace budget is exhausted
func (e *Engine) Launch(ctx context.Context) (*interfaces.TerminalHandle, error) {
	var handle *interfaces.TerminalHandle
	probeTimeout := e.timeouts[constants.RepairLevelRestart]

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		h, err := e.adapter.Launch(ctx)
		if err != nil {
			return err
		}
		if health.Probe(ctx, e.adapter, h, probeTimeout) != health.StatusHealthy {
			_ = e.adapter.Kill(ctx, h)
			return errors.New("launched process did not answer probe")
		}
		handle = h
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.pollInterval
	policy.MaxInterval = e.timeouts[constants.RepairLevelKill]
	policy.MaxElapsedTime = e.backoffMax

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.WarnCtx(ctx, "replacement launch failed, retrying in %s: %v", wait, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch replacement terminal: %w", err)
	}
	return handle, nil
}

func (e *Engine) awaitHealthy(ctx context.Context, h *interfaces.TerminalHandle) bool {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		if e.adapter.Probe(ctx, h) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
