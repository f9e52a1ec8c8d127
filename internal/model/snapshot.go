package model

import "time"

// ContextSnapshot execution state captured at a suspension or failure point.
// Once taken it is never mutated; callers receive copies.
type ContextSnapshot struct {
	TaskID           string                 `json:"task_id"`
	OriginTerminalID string                 `json:"origin_terminal_id"`
	TakenAt          time.Time              `json:"taken_at"`
	Reason           string                 `json:"reason"`
	History          []string               `json:"history,omitempty"`
	PartialResults   map[string]interface{} `json:"partial_results,omitempty"`
	Checkpoints      map[string]string      `json:"checkpoints,omitempty"`
	WorkingDir       string                 `json:"working_dir,omitempty"`
	Env              map[string]string      `json:"env,omitempty"`
	OpenResources    []string               `json:"open_resources,omitempty"`
	CompletedSteps   []string               `json:"completed_steps"`
	PendingSteps     []string               `json:"pending_steps"`
	Errors           []string               `json:"errors,omitempty"`
	Attempts         []Attempt              `json:"attempts"`
}

// ResumePlan what a receiving terminal needs to continue a task
type ResumePlan struct {
	ResumeFrom     string            `json:"resume_from,omitempty"` // last completed step
	CompletedSteps []string          `json:"completed_steps"`
	PendingSteps   []string          `json:"pending_steps"`
	Checkpoints    map[string]string `json:"checkpoints,omitempty"`
	WorkingDir     string            `json:"working_dir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}
