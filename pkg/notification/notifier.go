// Package notification delivers escalation diagnoses and pool-wide alerts to operators.
package notification

import (
	"context"
	"errors"
	"fmt"

	"termpool/internal/model"
	"termpool/pkg/config"
	"termpool/pkg/logger"
)

// Notifier operator-facing delivery channel
type Notifier interface {
	Name() string
	NotifyEscalation(ctx context.Context, task *model.Task, diagnosis *model.Diagnosis) error
	NotifyInstability(ctx context.Context, alert *model.InstabilityAlert) error
}

// LogNotifier writes notifications to the structured log. Always configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) NotifyEscalation(ctx context.Context, task *model.Task, d *model.Diagnosis) error {
	logger.ErrorCtx(ctx, "task %s escalated after %d attempts: category=%s remediation=%q summary=%q",
		task.ID, len(d.Attempts), d.Category, d.Remediation, d.Summary)
	return nil
}

func (n *LogNotifier) NotifyInstability(ctx context.Context, alert *model.InstabilityAlert) error {
	logger.ErrorCtx(ctx, "pool unstable: %d terminals killed within %s (%v)", alert.Count, alert.Window, alert.TerminalIDs)
	return nil
}

// Multi fans a notification out to every notifier; one failing channel does not stop the others
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string { return "multi" }

// Add appends a notifier
func (m *Multi) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len number of notifiers
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) NotifyEscalation(ctx context.Context, task *model.Task, d *model.Diagnosis) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifyEscalation(ctx, task, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) NotifyInstability(ctx context.Context, alert *model.InstabilityAlert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifyInstability(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the notifier chain: log always, then webhook and Feishu when configured
func FromConfig(cfg config.NotificationConfig) *Multi {
	m := NewMulti(NewLogNotifier())
	if cfg.WebhookURL != "" {
		m.Add(NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, DefaultRetryConfig()))
	}
	if feishu := NewFeishuNotifier(cfg.FeishuWebhookURL, cfg.Timeout); feishu.Enabled() {
		m.Add(feishu)
	}
	return m
}
