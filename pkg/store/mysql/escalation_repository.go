package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"termpool/internal/model"
	"termpool/pkg/escalation"
)

// EscalationRepository stores one diagnosis per escalated task; it is an escalation.Recorder
type EscalationRepository struct {
	ds *Datastore
}

var _ escalation.Recorder = (*EscalationRepository)(nil)

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(ds *Datastore) *EscalationRepository {
	return &EscalationRepository{ds: ds}
}

// SaveDiagnosis inserts the diagnosis; a second save for the same task is ignored
func (r *EscalationRepository) SaveDiagnosis(ctx context.Context, task *model.Task, d *model.Diagnosis) error {
	rec, err := FromDiagnosis(task, d)
	if err != nil {
		return err
	}
	err = r.ds.DB(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to save escalation for task %s: %w", d.TaskID, err)
	}
	return nil
}

// Get returns the diagnosis stored for taskID, nil when there is none
func (r *EscalationRepository) Get(ctx context.Context, taskID string) (*model.Diagnosis, error) {
	var rec EscalationRecord
	err := r.ds.DB(ctx).Where("task_id = ?", taskID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	return ToDiagnosis(&rec)
}

// ListRecent returns the newest diagnoses
func (r *EscalationRepository) ListRecent(ctx context.Context, limit int) ([]*model.Diagnosis, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []*EscalationRecord
	if err := r.ds.DB(ctx).Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	out := make([]*model.Diagnosis, 0, len(recs))
	for _, rec := range recs {
		d, err := ToDiagnosis(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
