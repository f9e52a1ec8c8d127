package escalation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

type captureNotifier struct {
	mu          sync.Mutex
	escalations []*model.Diagnosis
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) NotifyEscalation(_ context.Context, _ *model.Task, d *model.Diagnosis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalations = append(c.escalations, d)
	return nil
}

func (c *captureNotifier) NotifyInstability(context.Context, *model.InstabilityAlert) error {
	return nil
}

type captureRecorder struct {
	saved []string
}

func (c *captureRecorder) SaveDiagnosis(_ context.Context, task *model.Task, _ *model.Diagnosis) error {
	c.saved = append(c.saved, task.ID)
	return nil
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want constants.FailureCategory
	}{
		{"Permission denied: /etc/hosts", constants.FailurePermission},
		{"tool use not allowed in this directory", constants.FailurePermission},
		{"401 Unauthorized: invalid API key", constants.FailureAPICredential},
		{"authentication failed", constants.FailureAPICredential},
		{"context deadline exceeded", constants.FailureTimeout},
		{"step timed out after 30m", constants.FailureTimeout},
		{"fatal: out of memory", constants.FailureResourceExhaustion},
		{"write /tmp/x: no space left on device", constants.FailureResourceExhaustion},
		{"segfault in helper", constants.FailureUnknown},
		{"HTTP 403 from upstream", constants.FailurePermission},
		{"request failed with status 401", constants.FailureAPICredential},
		{"container OOMKilled", constants.FailureResourceExhaustion},
		{"process oom-killer invoked", constants.FailureResourceExhaustion},
		{"syntax error at line 4013", constants.FailureUnknown},
		{"worker pid 24031 exited", constants.FailureUnknown},
		{"panic in room booking handler", constants.FailureUnknown},
		{"", constants.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMessage(tt.msg))
		})
	}
}

func TestClassify_MostRecentKnownWins(t *testing.T) {
	attempts := []model.Attempt{
		{Error: "permission denied"},
		{Error: "weird failure"},
		{Outcome: constants.AttemptOutcomeTimeout},
	}
	assert.Equal(t, constants.FailureTimeout, Classify(attempts, nil))

	attempts = attempts[:2]
	assert.Equal(t, constants.FailurePermission, Classify(attempts, nil))

	assert.Equal(t, constants.FailureResourceExhaustion, Classify(attempts, []string{"OOM killed"}))
	assert.Equal(t, constants.FailureUnknown, Classify(nil, nil))
}

func TestRemediation_EveryCategory(t *testing.T) {
	for _, c := range []constants.FailureCategory{
		constants.FailurePermission,
		constants.FailureAPICredential,
		constants.FailureTimeout,
		constants.FailureResourceExhaustion,
		constants.FailureUnknown,
	} {
		assert.NotEmpty(t, Remediation(c), c)
	}
	assert.Equal(t, Remediation(constants.FailureUnknown), Remediation("bogus"))
}

func TestHandler_EscalatesOncePerTask(t *testing.T) {
	notifier := &captureNotifier{}
	recorder := &captureRecorder{}
	h := NewHandler(notifier, 0)
	h.SetRecorder(recorder)

	task := &model.Task{
		ID:          "task-1",
		MaxAttempts: 2,
		Attempts: []model.Attempt{
			{TerminalID: "terminal-1", Outcome: constants.AttemptOutcomeFailed, Error: "invalid api key"},
			{TerminalID: "terminal-2", Outcome: constants.AttemptOutcomeFailed, Error: "invalid api key"},
		},
	}

	d, created := h.Escalate(context.Background(), task)
	require.True(t, created)
	assert.Equal(t, constants.FailureAPICredential, d.Category)
	assert.Len(t, d.Attempts, 2)
	assert.Equal(t, []string{"invalid api key"}, d.Errors)
	assert.Contains(t, d.Summary, "terminal-2")

	again, created := h.Escalate(context.Background(), task)
	assert.False(t, created)
	assert.Same(t, d, again)

	h.Wait()
	assert.Len(t, notifier.escalations, 1)
	assert.Equal(t, []string{"task-1"}, recorder.saved)

	got, ok := h.Diagnosis("task-1")
	require.True(t, ok)
	assert.Same(t, d, got)
}

func TestHandler_ConcurrentEscalateDeliversOnce(t *testing.T) {
	notifier := &captureNotifier{}
	h := NewHandler(notifier, 0)
	task := &model.Task{ID: "task-1", MaxAttempts: 1, Attempts: []model.Attempt{{TerminalID: "terminal-1"}}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Escalate(context.Background(), task)
		}()
	}
	wg.Wait()
	h.Wait()

	assert.Len(t, notifier.escalations, 1)
}

func TestHandler_DiagnosisIsSanitized(t *testing.T) {
	h := NewHandler(&captureNotifier{}, 0)

	raw := "401 unauthorized: invalid api key sk-ant-0123456789abcdefXYZ"
	task := &model.Task{
		ID:          "task-2",
		MaxAttempts: 1,
		Attempts: []model.Attempt{
			{TerminalID: "terminal-1", Outcome: constants.AttemptOutcomeFailed, Error: raw},
		},
	}

	d, created := h.Escalate(context.Background(), task)
	require.True(t, created)
	h.Wait()

	assert.Equal(t, constants.FailureAPICredential, d.Category, "classification sees the raw text")
	assert.NotContains(t, d.Summary, "sk-ant-0123456789abcdefXYZ")
	assert.NotContains(t, d.Errors[0], "sk-ant-0123456789abcdefXYZ")
	assert.NotContains(t, d.Attempts[0].Error, "sk-ant-0123456789abcdefXYZ")
	assert.Equal(t, raw, task.Attempts[0].Error, "the task keeps its own record")
}
