package pool

import "errors"

var (
	// ErrTaskNotFound no task with the given id
	ErrTaskNotFound = errors.New("task not found")
	// ErrTerminalNotFound no active terminal with the given id
	ErrTerminalNotFound = errors.New("terminal not found")
	// ErrNotCancellable the task already reached a terminal status
	ErrNotCancellable = errors.New("task is not cancellable")
	// ErrTerminalBusy the terminal is executing a task or being repaired
	ErrTerminalBusy = errors.New("terminal is busy")
	// ErrPoolStopped the manager is not running
	ErrPoolStopped = errors.New("pool stopped")
	// ErrInvalidSize resize target rejected
	ErrInvalidSize = errors.New("invalid pool size")
	// ErrInvalidTask submission failed validation
	ErrInvalidTask = errors.New("invalid task")
)
