package model

import "time"

// EventType audit event type
type EventType string

const (
	EventTerminalCreated  EventType = "terminal:created"
	EventTerminalReplaced EventType = "terminal:replaced"
	EventTerminalRepaired EventType = "terminal:repaired"
	EventTerminalDegraded EventType = "terminal:degraded"
	EventTerminalDead     EventType = "terminal:dead"
	EventTerminalRetired  EventType = "terminal:retired"

	EventTaskQueued     EventType = "task:queued"
	EventTaskAssigned   EventType = "task:assigned"
	EventTaskStarted    EventType = "task:started"
	EventTaskCompleted  EventType = "task:completed"
	EventTaskFailed     EventType = "task:failed"
	EventTaskRequeued   EventType = "task:requeued"
	EventTaskReassigned EventType = "task:reassigned"
	EventTaskEscalated  EventType = "task:escalated"
	EventTaskCancelled  EventType = "task:cancelled"

	EventContextTransferred EventType = "context:transferred"

	EventAPISuspended EventType = "api:suspended"
	EventAPIResumed   EventType = "api:resumed"

	EventPermissionAccepted EventType = "permission:accepted"
	EventPermissionDenied   EventType = "permission:denied"

	EventPoolUnstable EventType = "pool:unstable"
	EventPoolResized  EventType = "pool:resized"
)

// Severity coarse event level, mirrors log levels
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// AuditEvent a single timestamped, task/terminal tagged entry of the audit log
type AuditEvent struct {
	ID         string                 `json:"id"`
	Seq        int64                  `json:"seq"`
	Type       EventType              `json:"type"`
	Severity   Severity               `json:"severity"`
	Time       time.Time              `json:"time"`
	TaskID     string                 `json:"task_id,omitempty"`
	TerminalID string                 `json:"terminal_id,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}
