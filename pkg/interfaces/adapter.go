package interfaces

import (
	"context"
	"time"

	"termpool/internal/model"
)

// Signal control message delivered to a hosted process
type Signal string

const (
	SignalNoop             Signal = "noop"              // benign liveness nudge
	SignalDumpRestore      Signal = "dump-restore"      // dump and reload working state
	SignalInterrupt        Signal = "interrupt"         // progressive interrupt (Ctrl-C style)
	SignalCancel           Signal = "cancel"            // cooperative task cancellation
	SignalAcceptPermission Signal = "accept-permission" // answer a permission prompt with yes
)

// TerminalHandle opaque reference to a launched process
type TerminalHandle struct {
	Ref       string    `json:"ref"` // adapter-specific (pid, session name, ...)
	StartedAt time.Time `json:"started_at"`
}

// ExecutionEvent structured signal returned by a run
type ExecutionEvent string

const (
	ExecutionCompleted        ExecutionEvent = "COMPLETED"
	ExecutionFailed           ExecutionEvent = "FAILED"
	ExecutionRateLimited      ExecutionEvent = "RATE_LIMITED"
	ExecutionPermissionPrompt ExecutionEvent = "PERMISSION_PROMPT"
	ExecutionTerminalFault    ExecutionEvent = "TERMINAL_FAULT" // hosted process misbehaved, terminal needs repair
	ExecutionCancelled        ExecutionEvent = "CANCELLED"
)

// ExecutionRequest what the pool hands to a terminal for one run
type ExecutionRequest struct {
	TaskID     string                 `json:"task_id"`
	TerminalID string                 `json:"terminal_id"`
	Attempt    int                    `json:"attempt"` // 1-based
	Payload    map[string]interface{} `json:"payload"`
	Resume     *model.ResumePlan      `json:"resume,omitempty"`
	// Snapshot full context captured on the previous terminal, nil on a first attempt
	Snapshot *model.ContextSnapshot `json:"snapshot,omitempty"`
}

// ExecutionResult outcome of a run plus whatever progress the adapter can report
type ExecutionResult struct {
	Event          ExecutionEvent         `json:"event"`
	Output         map[string]interface{} `json:"output,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Prompt         string                 `json:"prompt,omitempty"`
	CompletedSteps []string               `json:"completed_steps,omitempty"`
	PendingSteps   []string               `json:"pending_steps,omitempty"`
	Checkpoints    map[string]string      `json:"checkpoints,omitempty"`
	PartialResults map[string]interface{} `json:"partial_results,omitempty"`
	WorkingDir     string                 `json:"working_dir,omitempty"`
	Env            map[string]string      `json:"env,omitempty"`
	OpenResources  []string               `json:"open_resources,omitempty"`
	History        []string               `json:"history,omitempty"`
}

// LastCompletedStep returns the final entry of CompletedSteps
func (r *ExecutionResult) LastCompletedStep() string {
	if r == nil || len(r.CompletedSteps) == 0 {
		return ""
	}
	return r.CompletedSteps[len(r.CompletedSteps)-1]
}

// WorkerAdapter narrow contract the pool depends on to host and drive terminals.
// Implementations must be safe for concurrent use across different handles.
type WorkerAdapter interface {
	// Launch starts a new hosted process
	Launch(ctx context.Context) (*TerminalHandle, error)

	// Probe reports liveness; ctx carries the probe timeout
	Probe(ctx context.Context, handle *TerminalHandle) bool

	// Send delivers a control signal
	Send(ctx context.Context, handle *TerminalHandle, signal Signal) error

	// Restart restarts the hosted process in place; handle.Ref may change
	Restart(ctx context.Context, handle *TerminalHandle) error

	// Kill terminates the hosted process and releases its backing resource
	Kill(ctx context.Context, handle *TerminalHandle) error

	// Run executes one task run and blocks until a structured event is available
	Run(ctx context.Context, handle *TerminalHandle, req *ExecutionRequest) (*ExecutionResult, error)
}
