// Package escalation turns a task that exhausted its attempts into an
// operator-facing diagnosis and delivers it exactly once.
package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"termpool/internal/model"
	"termpool/pkg/logger"
	"termpool/pkg/notification"
	"termpool/pkg/status"
)

// Recorder persists diagnoses (MySQL in production, optional)
type Recorder interface {
	SaveDiagnosis(ctx context.Context, task *model.Task, d *model.Diagnosis) error
}

// Handler escalation handler
type Handler struct {
	mu              sync.Mutex
	diagnoses       map[string]*model.Diagnosis
	notifier        notification.Notifier
	recorder        Recorder
	sanitizer       *status.Sanitizer
	deliveryTimeout time.Duration
	wg              sync.WaitGroup
	now             func() time.Time
}

// NewHandler creates an escalation handler delivering through notifier
func NewHandler(notifier notification.Notifier, deliveryTimeout time.Duration) *Handler {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 2 * time.Minute
	}
	return &Handler{
		diagnoses:       make(map[string]*model.Diagnosis),
		notifier:        notifier,
		sanitizer:       status.NewSanitizer(),
		deliveryTimeout: deliveryTimeout,
		now:             time.Now,
	}
}

// SetRecorder attaches a diagnosis store
func (h *Handler) SetRecorder(r Recorder) {
	h.recorder = r
}

// Escalate produces the diagnosis for task and hands it to the notifier.
// A second call for the same task returns the first diagnosis and false.
// Delivery runs in the background so a slow channel never blocks a terminal.
func (h *Handler) Escalate(ctx context.Context, task *model.Task) (*model.Diagnosis, bool) {
	h.mu.Lock()
	if d, ok := h.diagnoses[task.ID]; ok {
		h.mu.Unlock()
		return d, false
	}

	var errs []string
	if task.Snapshot != nil {
		errs = append(errs, task.Snapshot.Errors...)
	}
	for _, a := range task.Attempts {
		if a.Error != "" && !contains(errs, a.Error) {
			errs = append(errs, a.Error)
		}
	}

	// classify on the raw text, publish only sanitized text
	category := Classify(task.Attempts, errs)
	errs = h.sanitizer.SanitizeAll(errs)
	attempts := append([]model.Attempt(nil), task.Attempts...)
	for i := range attempts {
		attempts[i].Error = h.sanitizer.SanitizeSensitiveInfo(attempts[i].Error)
	}
	d := &model.Diagnosis{
		TaskID:      task.ID,
		Category:    category,
		Remediation: Remediation(category),
		Summary:     summarize(task, errs),
		Attempts:    attempts,
		Errors:      errs,
		CreatedAt:   h.now(),
	}
	h.diagnoses[task.ID] = d
	h.mu.Unlock()

	snapshot := task.Clone()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.deliver(snapshot, d)
	}()

	logger.WarnCtx(ctx, "task %s escalated, category=%s", task.ID, category)
	return d, true
}

// Diagnosis returns the diagnosis produced for taskID
func (h *Handler) Diagnosis(taskID string) (*model.Diagnosis, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.diagnoses[taskID]
	return d, ok
}

// Wait blocks until in-flight deliveries finish
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) deliver(task *model.Task, d *model.Diagnosis) {
	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), task.ID), h.deliveryTimeout)
	defer cancel()

	if h.recorder != nil {
		if err := h.recorder.SaveDiagnosis(ctx, task, d); err != nil {
			logger.WarnCtx(ctx, "failed to persist diagnosis: %v", err)
		}
	}
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyEscalation(ctx, task, d); err != nil {
		logger.ErrorCtx(ctx, "escalation delivery failed: %v", err)
	}
}

func summarize(task *model.Task, errs []string) string {
	last := "no error reported"
	if len(errs) > 0 {
		last = errs[len(errs)-1]
	}
	terminals := make([]string, 0, len(task.Attempts))
	for _, a := range task.Attempts {
		terminals = append(terminals, a.TerminalID)
	}
	return fmt.Sprintf("task %s failed %d of %d attempts on terminals %v; last error: %s",
		task.ID, len(task.Attempts), task.MaxAttempts, terminals, last)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
