package model

import (
	"time"

	"termpool/pkg/constants"
)

// Attempt one assignment of a task to a terminal
type Attempt struct {
	TerminalID        string                   `json:"terminal_id"`
	StartedAt         time.Time                `json:"started_at"`
	EndedAt           *time.Time               `json:"ended_at,omitempty"`
	Outcome           constants.AttemptOutcome `json:"outcome"`
	LastCompletedStep string                   `json:"last_completed_step,omitempty"`
	Error             string                   `json:"error,omitempty"`
	SuspendedFor      time.Duration            `json:"suspended_for,omitempty"` // rate-limit wait inside this attempt
}

// Ended reports whether the attempt has an outcome
func (a *Attempt) Ended() bool {
	return a.EndedAt != nil
}

// Task unit of work scheduled onto a terminal
type Task struct {
	ID            string                 `json:"id"`
	Payload       map[string]interface{} `json:"payload"`
	Priority      int                    `json:"priority"` // lower value served first
	MaxAttempts   int                    `json:"max_attempts"`
	Timeout       time.Duration          `json:"timeout"`
	Status        constants.TaskStatus   `json:"status"`
	SuspendReason string                 `json:"suspend_reason,omitempty"`
	Attempts      []Attempt              `json:"attempts"`
	Snapshot      *ContextSnapshot       `json:"snapshot,omitempty"`
	Output        map[string]interface{} `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Diagnosis     *Diagnosis             `json:"diagnosis,omitempty"`
	Requeued      bool                   `json:"requeued"` // re-entered the queue after a failed attempt
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// LastAttempt returns the most recent attempt or nil
func (t *Task) LastAttempt() *Attempt {
	if len(t.Attempts) == 0 {
		return nil
	}
	return &t.Attempts[len(t.Attempts)-1]
}

// AttemptsRemaining reports whether another assignment is allowed
func (t *Task) AttemptsRemaining() bool {
	return len(t.Attempts) < t.MaxAttempts
}

// NextAttemptIsFinal reports whether the next assignment would use the last attempt
func (t *Task) NextAttemptIsFinal() bool {
	return len(t.Attempts)+1 >= t.MaxAttempts
}

// Clone returns a deep enough copy for API responses; the snapshot is immutable and shared
func (t *Task) Clone() *Task {
	c := *t
	c.Attempts = append([]Attempt(nil), t.Attempts...)
	if t.Payload != nil {
		c.Payload = make(map[string]interface{}, len(t.Payload))
		for k, v := range t.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// SubmitRequest submit task request
type SubmitRequest struct {
	Payload     map[string]interface{} `json:"payload" binding:"required"`
	Priority    int                    `json:"priority"`
	MaxAttempts int                    `json:"max_attempts"`
	Timeout     string                 `json:"timeout,omitempty"` // Go duration, e.g. "30m"
}

// SubmitResponse submit task response
type SubmitResponse struct {
	ID     string               `json:"id"`
	Status constants.TaskStatus `json:"status"`
}
