package model

import "time"

// PoolMetrics point-in-time view derived from the terminal and task registries
type PoolMetrics struct {
	CollectedAt      time.Time      `json:"collected_at"`
	TargetSize       int            `json:"target_size"`
	Terminals        int            `json:"terminals"`
	TerminalsByState map[string]int `json:"terminals_by_state"`
	IdleTerminals    int            `json:"idle_terminals"`
	QueueDepth       int            `json:"queue_depth"`
	QueueCapacity    int            `json:"queue_capacity"`
	ActiveTasks      int            `json:"active_tasks"` // assigned, running or suspended
	SuspendedTasks   int            `json:"suspended_tasks"`
	CompletedTasks   int            `json:"completed_tasks"`
	EscalatedTasks   int            `json:"escalated_tasks"`
	CancelledTasks   int            `json:"cancelled_tasks"`
	RetiredTerminals int            `json:"retired_terminals"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
}
