package mysql

import (
	"context"
	"fmt"
	"time"

	"termpool/internal/model"
	"termpool/pkg/audit"
)

// AuditEventRepository persists audit events; it is an audit.Sink
type AuditEventRepository struct {
	ds *Datastore
}

var _ audit.Sink = (*AuditEventRepository)(nil)

// NewAuditEventRepository creates a new audit event repository
func NewAuditEventRepository(ds *Datastore) *AuditEventRepository {
	return &AuditEventRepository{ds: ds}
}

func (r *AuditEventRepository) Name() string { return "mysql" }

// Write inserts one event
func (r *AuditEventRepository) Write(ctx context.Context, e *model.AuditEvent) error {
	if err := r.ds.DB(ctx).Create(FromAuditEvent(e)).Error; err != nil {
		return fmt.Errorf("failed to insert audit event %d: %w", e.Seq, err)
	}
	return nil
}

// List returns persisted events matching f in sequence order
func (r *AuditEventRepository) List(ctx context.Context, f audit.Filter) ([]*model.AuditEvent, error) {
	q := r.ds.DB(ctx).Model(&AuditEventRecord{})
	if f.TaskID != "" {
		q = q.Where("task_id = ?", f.TaskID)
	}
	if f.TerminalID != "" {
		q = q.Where("terminal_id = ?", f.TerminalID)
	}
	if len(f.Types) > 0 {
		types := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, string(t))
		}
		q = q.Where("event_type IN ?", types)
	}
	if !f.Since.IsZero() {
		q = q.Where("event_time >= ?", f.Since)
	}

	var rows []*AuditEventRecord
	if f.Limit > 0 {
		// most recent N, returned oldest first
		if err := q.Order("seq DESC").Limit(f.Limit).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to list audit events: %w", err)
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	} else if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	out := make([]*model.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToAuditEvent(row))
	}
	return out, nil
}

// DeleteBefore removes events older than cutoff and returns how many went
func (r *AuditEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.ds.DB(ctx).Where("event_time < ?", cutoff).Delete(&AuditEventRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
