package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/model"
	"termpool/pkg/config"
	"termpool/pkg/constants"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  500 * time.Millisecond,
	}
}

func sampleEscalation() (*model.Task, *model.Diagnosis) {
	task := &model.Task{ID: "task-1", MaxAttempts: 2}
	d := &model.Diagnosis{
		TaskID:      "task-1",
		Category:    constants.FailureTimeout,
		Remediation: "raise the task timeout",
		Summary:     "timed out twice",
		Attempts: []model.Attempt{
			{TerminalID: "terminal-1", Outcome: constants.AttemptOutcomeTimeout, Error: "deadline exceeded"},
			{TerminalID: "terminal-2", Outcome: constants.AttemptOutcomeTimeout},
		},
		CreatedAt: time.Now(),
	}
	return task, d
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, fastRetry())
	task, d := sampleEscalation()

	require.NoError(t, n.NotifyEscalation(context.Background(), task, d))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "escalation", got.Kind)
	require.NotNil(t, got.Diagnosis)
	assert.Equal(t, constants.FailureTimeout, got.Diagnosis.Category)
}

func TestWebhookNotifier_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, fastRetry())
	err := n.NotifyInstability(context.Background(), &model.InstabilityAlert{Count: 3})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookNotifier_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, fastRetry())
	task, d := sampleEscalation()

	require.Error(t, n.NotifyEscalation(context.Background(), task, d))
	// the breaker trips on the fifth failure and stops further posts
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))

	require.Error(t, n.NotifyEscalation(context.Background(), task, d))
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestFeishuNotifier(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewFeishuNotifier(srv.URL, time.Second)
	require.True(t, n.Enabled())

	task, d := sampleEscalation()
	require.NoError(t, n.NotifyEscalation(context.Background(), task, d))
	assert.Equal(t, "interactive", body["msg_type"])

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "raise the task timeout")
	assert.Contains(t, string(raw), "terminal-2")
}

func TestFeishuNotifier_DisabledIsNoop(t *testing.T) {
	t.Setenv("FEISHU_WEBHOOK_URL", "")
	n := NewFeishuNotifier("", 0)
	assert.False(t, n.Enabled())

	task, d := sampleEscalation()
	assert.NoError(t, n.NotifyEscalation(context.Background(), task, d))
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Name() string { return "failing" }

func (f *failingNotifier) NotifyEscalation(context.Context, *model.Task, *model.Diagnosis) error {
	f.calls++
	return errors.New("unreachable")
}

func (f *failingNotifier) NotifyInstability(context.Context, *model.InstabilityAlert) error {
	f.calls++
	return errors.New("unreachable")
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	first, second := &failingNotifier{}, &failingNotifier{}
	m := NewMulti(first, NewLogNotifier(), second)

	task, d := sampleEscalation()
	err := m.NotifyEscalation(context.Background(), task, d)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: unreachable")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestFromConfig(t *testing.T) {
	t.Setenv("FEISHU_WEBHOOK_URL", "")

	assert.Equal(t, 1, FromConfig(config.NotificationConfig{}).Len())
	assert.Equal(t, 3, FromConfig(config.NotificationConfig{
		WebhookURL:       "http://example.invalid/hook",
		FeishuWebhookURL: "http://example.invalid/feishu",
	}).Len())
}
