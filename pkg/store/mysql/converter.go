package mysql

import (
	"encoding/json"
	"fmt"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

// FromAuditEvent converts a domain audit event to its row
func FromAuditEvent(e *model.AuditEvent) *AuditEventRecord {
	if e == nil {
		return nil
	}
	return &AuditEventRecord{
		EventID:    e.ID,
		Seq:        e.Seq,
		EventType:  string(e.Type),
		Severity:   string(e.Severity),
		EventTime:  e.Time,
		TaskID:     e.TaskID,
		TerminalID: e.TerminalID,
		Message:    e.Message,
		Fields:     JSONMap(e.Fields),
	}
}

// ToAuditEvent converts a row back to the domain audit event
func ToAuditEvent(r *AuditEventRecord) *model.AuditEvent {
	if r == nil {
		return nil
	}
	return &model.AuditEvent{
		ID:         r.EventID,
		Seq:        r.Seq,
		Type:       model.EventType(r.EventType),
		Severity:   model.Severity(r.Severity),
		Time:       r.EventTime,
		TaskID:     r.TaskID,
		TerminalID: r.TerminalID,
		Message:    r.Message,
		Fields:     map[string]interface{}(r.Fields),
	}
}

// FromDiagnosis builds the escalation row for task
func FromDiagnosis(task *model.Task, d *model.Diagnosis) (*EscalationRecord, error) {
	attempts, err := toJSONArray(d.Attempts)
	if err != nil {
		return nil, err
	}
	rec := &EscalationRecord{
		TaskID:      d.TaskID,
		Category:    string(d.Category),
		Remediation: d.Remediation,
		Summary:     d.Summary,
		Errors:      JSONStringArray(d.Errors),
		Attempts:    attempts,
		CreatedAt:   d.CreatedAt,
	}
	if task != nil {
		rec.Payload = JSONMap(task.Payload)
		rec.MaxAttempts = task.MaxAttempts
	}
	return rec, nil
}

// ToDiagnosis converts an escalation row back to the domain diagnosis
func ToDiagnosis(r *EscalationRecord) (*model.Diagnosis, error) {
	if r == nil {
		return nil, nil
	}
	var attempts []model.Attempt
	if len(r.Attempts) > 0 {
		data, err := json.Marshal(r.Attempts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attempts: %w", err)
		}
		if err := json.Unmarshal(data, &attempts); err != nil {
			return nil, fmt.Errorf("failed to decode attempts: %w", err)
		}
	}
	return &model.Diagnosis{
		TaskID:      r.TaskID,
		Category:    constants.FailureCategory(r.Category),
		Remediation: r.Remediation,
		Summary:     r.Summary,
		Attempts:    attempts,
		Errors:      []string(r.Errors),
		CreatedAt:   r.CreatedAt,
	}, nil
}

func toJSONArray(attempts []model.Attempt) (JSONArray, error) {
	data, err := json.Marshal(attempts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attempts: %w", err)
	}
	var out JSONArray
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	return out, nil
}
