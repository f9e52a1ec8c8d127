package model

import (
	"time"

	"termpool/pkg/constants"
)

// Diagnosis operator-facing report produced when a task is escalated
type Diagnosis struct {
	TaskID      string                    `json:"task_id"`
	Category    constants.FailureCategory `json:"category"`
	Remediation string                    `json:"remediation"`
	Summary     string                    `json:"summary"`
	Attempts    []Attempt                 `json:"attempts"`
	Errors      []string                  `json:"errors,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// InstabilityAlert raised when level-5 repairs cluster across terminals
type InstabilityAlert struct {
	Count       int           `json:"count"`
	Window      time.Duration `json:"window"`
	TerminalIDs []string      `json:"terminal_ids"`
	RaisedAt    time.Time     `json:"raised_at"`
}
