package model

import (
	"time"

	"termpool/pkg/constants"
)

// Terminal long-lived worker slot hosting one coding-assistant process
type Terminal struct {
	ID                        string                  `json:"id"`
	State                     constants.TerminalState `json:"state"`
	RepairLevel               constants.RepairLevel   `json:"repair_level"` // 0 unless DEGRADED
	CurrentTaskID             string                  `json:"current_task_id,omitempty"`
	ConsecutiveHealthFailures int                     `json:"consecutive_health_failures"`
	LastProbeAt               time.Time               `json:"last_probe_at"`
	LastRepairAt              time.Time               `json:"last_repair_at"`
	CreatedAt                 time.Time               `json:"created_at"`
	ReplacesID                string                  `json:"replaces_id,omitempty"` // retired id this terminal replaced
	HandleRef                 string                  `json:"handle_ref,omitempty"`
}

// Idle reports whether the terminal may receive a new task
func (t *Terminal) Idle() bool {
	return t.State == constants.TerminalStateHealthy && t.CurrentTaskID == ""
}

// Clone returns a detached copy safe to hand outside the registry
func (t *Terminal) Clone() *Terminal {
	c := *t
	return &c
}
