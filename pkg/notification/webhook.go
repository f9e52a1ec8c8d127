package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// RetryConfig exponential backoff settings for webhook delivery
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

// WebhookPayload JSON body posted to the generic webhook
type WebhookPayload struct {
	Kind      string                  `json:"kind"` // escalation, instability
	Task      *model.Task             `json:"task,omitempty"`
	Diagnosis *model.Diagnosis        `json:"diagnosis,omitempty"`
	Alert     *model.InstabilityAlert `json:"alert,omitempty"`
	SentAt    time.Time               `json:"sent_at"`
}

// errClientStatus 4xx responses are not retried
type errClientStatus struct {
	code int
}

func (e *errClientStatus) Error() string {
	return fmt.Sprintf("webhook returned status code: %d", e.code)
}

// WebhookNotifier posts JSON to a URL behind a circuit breaker with retry
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(url string, timeout time.Duration, retry RetryConfig) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			var cs *errClientStatus
			return err == nil || errors.As(err, &cs)
		},
	})
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		retry:   retry,
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) NotifyEscalation(ctx context.Context, task *model.Task, d *model.Diagnosis) error {
	return w.send(ctx, &WebhookPayload{Kind: "escalation", Task: task, Diagnosis: d, SentAt: time.Now()})
}

func (w *WebhookNotifier) NotifyInstability(ctx context.Context, alert *model.InstabilityAlert) error {
	return w.send(ctx, &WebhookPayload{Kind: "instability", Alert: alert, SentAt: time.Now()})
}

func (w *WebhookNotifier) send(ctx context.Context, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := w.breaker.Execute(func() (interface{}, error) {
			return nil, w.post(ctx, body)
		})
		if err == nil {
			return nil
		}
		var cs *errClientStatus
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.As(err, &cs) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retry.InitialInterval
	policy.MaxInterval = w.retry.MaxInterval
	policy.MaxElapsedTime = w.retry.MaxElapsedTime

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to deliver %s webhook: %w", payload.Kind, err)
	}
	logger.InfoCtx(ctx, "%s webhook delivered", payload.Kind)
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &errClientStatus{code: resp.StatusCode}
	default:
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
}
