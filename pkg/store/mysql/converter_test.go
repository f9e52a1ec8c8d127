package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

func TestAuditEventRoundTrip(t *testing.T) {
	e := &model.AuditEvent{
		ID:         "evt-1",
		Seq:        7,
		Type:       model.EventTaskReassigned,
		Severity:   model.SeverityInfo,
		Time:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TaskID:     "task-1",
		TerminalID: "terminal-2",
		Message:    "task reassigned",
		Fields:     map[string]interface{}{"from": "terminal-1"},
	}

	rec := FromAuditEvent(e)
	assert.Equal(t, "task:reassigned", rec.EventType)
	assert.Equal(t, "evt-1", rec.EventID)
	assert.Equal(t, e, ToAuditEvent(rec))

	assert.Nil(t, FromAuditEvent(nil))
	assert.Nil(t, ToAuditEvent(nil))
}

func TestDiagnosisRoundTrip(t *testing.T) {
	ended := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	task := &model.Task{
		ID:          "task-1",
		Payload:     map[string]interface{}{"prompt": "fix the build"},
		MaxAttempts: 2,
	}
	d := &model.Diagnosis{
		TaskID:      "task-1",
		Category:    constants.FailureTimeout,
		Remediation: "raise the timeout",
		Summary:     "task task-1 failed 2 of 2 attempts",
		Errors:      []string{"task timed out after 30m0s"},
		Attempts: []model.Attempt{{
			TerminalID: "terminal-1",
			StartedAt:  time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
			EndedAt:    &ended,
			Outcome:    constants.AttemptOutcomeTimeout,
			Error:      "task timed out after 30m0s",
		}},
		CreatedAt: ended,
	}

	rec, err := FromDiagnosis(task, d)
	require.NoError(t, err)
	assert.Equal(t, "timeout", rec.Category)
	assert.Equal(t, 2, rec.MaxAttempts)
	assert.Equal(t, "fix the build", rec.Payload["prompt"])
	require.Len(t, rec.Attempts, 1)
	assert.Equal(t, "terminal-1", rec.Attempts[0]["terminal_id"])

	back, err := ToDiagnosis(rec)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}
