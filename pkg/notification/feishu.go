package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// FeishuNotifier sends notifications to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a new Feishu notifier
func NewFeishuNotifier(webhookURL string, timeout time.Duration) *FeishuNotifier {
	// Priority: config file > environment variable
	if webhookURL == "" {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using Feishu webhook URL from environment variable")
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a webhook URL is configured
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

func (f *FeishuNotifier) Name() string { return "feishu" }

// NotifyEscalation sends an escalation card
func (f *FeishuNotifier) NotifyEscalation(ctx context.Context, task *model.Task, d *model.Diagnosis) error {
	if !f.Enabled() {
		logger.WarnCtx(ctx, "Feishu webhook URL not configured, skipping notification")
		return nil
	}
	if err := f.post(ctx, f.buildEscalationMessage(task, d)); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "Feishu escalation notification sent for task: %s", task.ID)
	return nil
}

// NotifyInstability sends a pool-wide instability card
func (f *FeishuNotifier) NotifyInstability(ctx context.Context, alert *model.InstabilityAlert) error {
	if !f.Enabled() {
		return nil
	}
	return f.post(ctx, f.buildInstabilityMessage(alert))
}

func (f *FeishuNotifier) post(ctx context.Context, message map[string]interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}
	return nil
}

func markdownDiv(content string) map[string]interface{} {
	return map[string]interface{}{
		"tag": "div",
		"text": map[string]interface{}{
			"content": content,
			"tag":     "lark_md",
		},
	}
}

func shortField(content string) map[string]interface{} {
	return map[string]interface{}{
		"is_short": true,
		"text": map[string]interface{}{
			"content": content,
			"tag":     "lark_md",
		},
	}
}

func card(template, title string, elements []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": title,
					"tag":     "plain_text",
				},
			},
			"elements": elements,
		},
	}
}

// buildEscalationMessage builds a Feishu message card for an escalated task
func (f *FeishuNotifier) buildEscalationMessage(task *model.Task, d *model.Diagnosis) map[string]interface{} {
	var attempts strings.Builder
	for i, a := range d.Attempts {
		fmt.Fprintf(&attempts, "%d. %s → %s", i+1, a.TerminalID, a.Outcome)
		if a.Error != "" {
			fmt.Fprintf(&attempts, " (%s)", a.Error)
		}
		attempts.WriteString("\n")
	}

	return card("red", "Task Escalated", []interface{}{
		markdownDiv(fmt.Sprintf("**Task**: %s\nAll %d attempts exhausted, operator action required", task.ID, task.MaxAttempts)),
		map[string]interface{}{"tag": "hr"},
		map[string]interface{}{
			"tag": "div",
			"fields": []interface{}{
				shortField(fmt.Sprintf("**Category**\n%s", d.Category)),
				shortField(fmt.Sprintf("**Escalated At**\n%s", d.CreatedAt.Format("2006-01-02 15:04:05"))),
			},
		},
		markdownDiv(fmt.Sprintf("**Remediation**: %s", d.Remediation)),
		markdownDiv(fmt.Sprintf("**Attempts**\n%s", attempts.String())),
		map[string]interface{}{"tag": "hr"},
		map[string]interface{}{
			"tag": "note",
			"elements": []interface{}{
				map[string]interface{}{
					"content": d.Summary,
					"tag":     "plain_text",
				},
			},
		},
	})
}

// buildInstabilityMessage builds a Feishu message card for a pool-wide instability alert
func (f *FeishuNotifier) buildInstabilityMessage(alert *model.InstabilityAlert) map[string]interface{} {
	return card("orange", "Terminal Pool Unstable", []interface{}{
		markdownDiv(fmt.Sprintf("**%d** terminals were killed and replaced within %s", alert.Count, alert.Window)),
		markdownDiv(fmt.Sprintf("**Terminals**: %s", strings.Join(alert.TerminalIDs, ", "))),
		markdownDiv(fmt.Sprintf("**Raised At**: %s", alert.RaisedAt.Format("2006-01-02 15:04:05"))),
		map[string]interface{}{
			"tag": "note",
			"elements": []interface{}{
				map[string]interface{}{
					"content": "Replacement continues automatically; investigate the host or the hosted assistant if this recurs.",
					"tag":     "plain_text",
				},
			},
		},
	})
}
