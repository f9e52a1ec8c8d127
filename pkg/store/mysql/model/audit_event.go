package model

import "time"

// AuditEvent MySQL model for audit_events table
type AuditEvent struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    string    `gorm:"column:event_id;type:varchar(64);not null;uniqueIndex:idx_event_id_unique" json:"event_id"`
	Seq        int64     `gorm:"column:seq;not null;index:idx_seq" json:"seq"`
	EventType  string    `gorm:"column:event_type;type:varchar(50);not null;index:idx_event_type" json:"event_type"`
	Severity   string    `gorm:"column:severity;type:varchar(10);not null" json:"severity"`
	EventTime  time.Time `gorm:"column:event_time;type:datetime(3);not null;index:idx_task_id_event_time,priority:2;index:idx_terminal_id_event_time,priority:2;index:idx_event_time" json:"event_time"`
	TaskID     string    `gorm:"column:task_id;type:varchar(64);index:idx_task_id_event_time,priority:1" json:"task_id"`
	TerminalID string    `gorm:"column:terminal_id;type:varchar(64);index:idx_terminal_id_event_time,priority:1" json:"terminal_id"`
	Message    string    `gorm:"column:message;type:text" json:"message"`
	Fields     JSONMap   `gorm:"column:fields;type:json" json:"fields"`
}

// TableName specifies the table name for AuditEvent
func (AuditEvent) TableName() string {
	return "audit_events"
}
