package model

import "time"

// EscalationRecord MySQL model for escalations table, one row per escalated task
type EscalationRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID      string          `gorm:"column:task_id;type:varchar(64);not null;uniqueIndex:idx_task_id_unique" json:"task_id"`
	Category    string          `gorm:"column:category;type:varchar(50);not null;index:idx_category" json:"category"`
	Remediation string          `gorm:"column:remediation;type:text" json:"remediation"`
	Summary     string          `gorm:"column:summary;type:text" json:"summary"`
	Errors      JSONStringArray `gorm:"column:errors;type:json" json:"errors"`
	Attempts    JSONArray       `gorm:"column:attempts;type:json" json:"attempts"`
	Payload     JSONMap         `gorm:"column:payload;type:json" json:"payload"`
	MaxAttempts int             `gorm:"column:max_attempts;type:int" json:"max_attempts"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:datetime(3);not null;index:idx_created_at" json:"created_at"`
}

// TableName specifies the table name for EscalationRecord
func (EscalationRecord) TableName() string {
	return "escalations"
}
