// Package scripted is a deterministic in-memory WorkerAdapter. Each launched
// process is alive until told otherwise, heals when it receives its configured
// remedy, and runs tasks through a caller-supplied script.
package scripted

import (
	"context"
	"fmt"
	"sync"
	"time"

	"termpool/pkg/interfaces"
)

// Remedy the intervention that brings a broken process back
type Remedy string

const (
	RemedyAny       Remedy = "any"     // any signal or restart heals
	RemedySignal    Remedy = "signal"  // a specific signal, see HealOnSignal
	RemedyRestart   Remedy = "restart" // only an in-place restart heals
	RemedyNever     Remedy = "never"   // only replacement helps
	defaultRunDelay        = time.Millisecond
)

// Call describes one Run invocation handed to a Script
type Call struct {
	Handle  *interfaces.TerminalHandle
	Request *interfaces.ExecutionRequest
	// Cancelled is closed when SignalCancel is sent to the process during the run
	Cancelled <-chan struct{}
	// Seq counts runs of the same task on any terminal, starting at 1
	Seq int
}

// Script decides the outcome of a run
type Script func(ctx context.Context, call *Call) (*interfaces.ExecutionResult, error)

// Complete is the default script: every run completes
func Complete(_ context.Context, call *Call) (*interfaces.ExecutionResult, error) {
	return &interfaces.ExecutionResult{
		Event:  interfaces.ExecutionCompleted,
		Output: map[string]interface{}{"terminal": call.Request.TerminalID},
	}, nil
}

// BlockUntilCancelled runs until SignalCancel arrives or ctx ends
func BlockUntilCancelled(ctx context.Context, call *Call) (*interfaces.ExecutionResult, error) {
	select {
	case <-call.Cancelled:
		return &interfaces.ExecutionResult{Event: interfaces.ExecutionCancelled}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type proc struct {
	ref        string
	alive      bool
	killed     bool
	remedy     Remedy
	healSignal interfaces.Signal
	signals    []interfaces.Signal
	restarts   int
	cancel     chan struct{}
}

// Adapter scripted worker adapter, safe for concurrent use
type Adapter struct {
	mu           sync.Mutex
	procs        map[string]*proc
	order        []string
	next         int
	failLaunches int
	script       Script
	runs         map[string]int
}

// New creates an adapter whose runs complete immediately
func New() *Adapter {
	return &Adapter{
		procs:  make(map[string]*proc),
		script: Complete,
		runs:   make(map[string]int),
	}
}

// OnRun replaces the run script
func (a *Adapter) OnRun(s Script) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = s
}

// FailLaunches makes the next n launches fail
func (a *Adapter) FailLaunches(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failLaunches = n
}

// Break marks ref unresponsive until remedy is applied
func (a *Adapter) Break(ref string, remedy Remedy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.procs[ref]; ok {
		p.alive = false
		p.remedy = remedy
	}
}

// HealOnSignal marks ref unresponsive until it receives sig
func (a *Adapter) HealOnSignal(ref string, sig interfaces.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.procs[ref]; ok {
		p.alive = false
		p.remedy = RemedySignal
		p.healSignal = sig
	}
}

// Refs returns launched process refs in launch order, killed ones included
func (a *Adapter) Refs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// Signals returns the signals ref received
func (a *Adapter) Signals(ref string) []interfaces.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.procs[ref]; ok {
		return append([]interfaces.Signal(nil), p.signals...)
	}
	return nil
}

// Killed reports whether ref was killed
func (a *Adapter) Killed(ref string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[ref]
	return ok && p.killed
}

// Restarts number of in-place restarts of ref
func (a *Adapter) Restarts(ref string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.procs[ref]; ok {
		return p.restarts
	}
	return 0
}

// Runs number of runs recorded for taskID
func (a *Adapter) Runs(taskID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs[taskID]
}

func (a *Adapter) Launch(ctx context.Context) (*interfaces.TerminalHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failLaunches > 0 {
		a.failLaunches--
		return nil, fmt.Errorf("scripted launch failure")
	}
	a.next++
	ref := fmt.Sprintf("proc-%d", a.next)
	a.procs[ref] = &proc{ref: ref, alive: true}
	a.order = append(a.order, ref)
	return &interfaces.TerminalHandle{Ref: ref, StartedAt: time.Now()}, nil
}

func (a *Adapter) Probe(_ context.Context, h *interfaces.TerminalHandle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[h.Ref]
	return ok && p.alive && !p.killed
}

func (a *Adapter) Send(_ context.Context, h *interfaces.TerminalHandle, sig interfaces.Signal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[h.Ref]
	if !ok || p.killed {
		return fmt.Errorf("process %s not running", h.Ref)
	}
	p.signals = append(p.signals, sig)

	switch sig {
	case interfaces.SignalCancel:
		if p.cancel != nil {
			close(p.cancel)
			p.cancel = nil
		}
	case interfaces.SignalAcceptPermission:
	default:
		if !p.alive && (p.remedy == RemedyAny || (p.remedy == RemedySignal && p.healSignal == sig)) {
			p.alive = true
		}
	}
	return nil
}

func (a *Adapter) Restart(_ context.Context, h *interfaces.TerminalHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[h.Ref]
	if !ok || p.killed {
		return fmt.Errorf("process %s not running", h.Ref)
	}
	p.restarts++
	if !p.alive && (p.remedy == RemedyAny || p.remedy == RemedyRestart) {
		p.alive = true
	}
	return nil
}

func (a *Adapter) Kill(_ context.Context, h *interfaces.TerminalHandle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[h.Ref]
	if !ok {
		return fmt.Errorf("process %s not found", h.Ref)
	}
	p.killed = true
	p.alive = false
	if p.cancel != nil {
		close(p.cancel)
		p.cancel = nil
	}
	return nil
}

func (a *Adapter) Run(ctx context.Context, h *interfaces.TerminalHandle, req *interfaces.ExecutionRequest) (*interfaces.ExecutionResult, error) {
	a.mu.Lock()
	p, ok := a.procs[h.Ref]
	if !ok || p.killed {
		a.mu.Unlock()
		return nil, fmt.Errorf("process %s not running", h.Ref)
	}
	cancel := make(chan struct{})
	p.cancel = cancel
	a.runs[req.TaskID]++
	call := &Call{Handle: h, Request: req, Cancelled: cancel, Seq: a.runs[req.TaskID]}
	script := a.script
	a.mu.Unlock()

	select {
	case <-time.After(defaultRunDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	res, err := script(ctx, call)

	a.mu.Lock()
	if p.cancel == cancel {
		p.cancel = nil
	}
	a.mu.Unlock()
	return res, err
}
