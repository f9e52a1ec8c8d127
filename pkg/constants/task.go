package constants

// Task status constants
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusAssigned  TaskStatus = "ASSIGNED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSuspended TaskStatus = "SUSPENDED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusEscalated TaskStatus = "ESCALATED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusEscalated, TaskStatusCancelled:
		return true
	}
	return false
}

// AttemptOutcome result of a single assignment
type AttemptOutcome string

const (
	AttemptOutcomeRunning   AttemptOutcome = "RUNNING"
	AttemptOutcomeCompleted AttemptOutcome = "COMPLETED"
	AttemptOutcomeFailed    AttemptOutcome = "FAILED"
	AttemptOutcomeTimeout   AttemptOutcome = "TIMEOUT"
	AttemptOutcomeFault     AttemptOutcome = "TERMINAL_FAULT"
	AttemptOutcomeCancelled AttemptOutcome = "CANCELLED"
)

// FailureCategory escalation failure class
type FailureCategory string

const (
	FailurePermission         FailureCategory = "permission"
	FailureAPICredential      FailureCategory = "api-credential"
	FailureTimeout            FailureCategory = "timeout"
	FailureResourceExhaustion FailureCategory = "resource-exhaustion"
	FailureUnknown            FailureCategory = "unknown"
)

// SuspendReason why a running task is suspended
const SuspendReasonRateLimited = "rate-limited"
