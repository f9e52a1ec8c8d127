// Package transfer packages the execution context of a failed or suspended
// task so the next attempt can resume on any terminal.
package transfer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"termpool/internal/model"
	"termpool/pkg/interfaces"
)

// Service keeps the latest snapshot per task. Snapshots are immutable once
// taken; every accessor returns a copy.
type Service struct {
	mu        sync.RWMutex
	snapshots map[string]*model.ContextSnapshot
	now       func() time.Time
}

// NewService creates a context transfer service
func NewService() *Service {
	return &Service{
		snapshots: make(map[string]*model.ContextSnapshot),
		now:       time.Now,
	}
}

// Capture takes a snapshot of task after an attempt on terminalID ended with result.
// State from the previous snapshot is carried forward so steps completed on
// earlier terminals are never re-derived. result may be nil when the adapter
// returned nothing (terminal fault, timeout).
func (s *Service) Capture(task *model.Task, terminalID, reason string, result *interfaces.ExecutionResult) *model.ContextSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshots[task.ID]
	snap := &model.ContextSnapshot{
		TaskID:           task.ID,
		OriginTerminalID: terminalID,
		TakenAt:          s.now(),
		Reason:           reason,
	}

	var completed, pending, history, errs, resources []string
	checkpoints := map[string]string{}
	partial := map[string]interface{}{}
	env := map[string]string{}

	if prev != nil {
		completed = append(completed, prev.CompletedSteps...)
		pending = append(pending, prev.PendingSteps...)
		history = append(history, prev.History...)
		errs = append(errs, prev.Errors...)
		resources = append(resources, prev.OpenResources...)
		mergeStrings(checkpoints, prev.Checkpoints)
		mergeValues(partial, prev.PartialResults)
		mergeStrings(env, prev.Env)
		snap.WorkingDir = prev.WorkingDir
	}

	if result != nil {
		completed = append(completed, result.CompletedSteps...)
		if result.PendingSteps != nil {
			pending = append([]string(nil), result.PendingSteps...)
		}
		history = append(history, result.History...)
		if result.OpenResources != nil {
			resources = append([]string(nil), result.OpenResources...)
		}
		mergeStrings(checkpoints, result.Checkpoints)
		mergeValues(partial, result.PartialResults)
		mergeStrings(env, result.Env)
		if result.WorkingDir != "" {
			snap.WorkingDir = result.WorkingDir
		}
		if result.Error != "" {
			errs = append(errs, result.Error)
		}
	}
	if last := task.LastAttempt(); last != nil && last.Error != "" && (result == nil || result.Error != last.Error) {
		errs = append(errs, last.Error)
	}

	snap.CompletedSteps = dedupe(completed)
	snap.PendingSteps = without(dedupe(pending), snap.CompletedSteps)
	snap.History = history
	snap.Errors = errs
	snap.OpenResources = dedupe(resources)
	snap.Attempts = append([]model.Attempt(nil), task.Attempts...)
	if len(checkpoints) > 0 {
		snap.Checkpoints = checkpoints
	}
	if len(partial) > 0 {
		snap.PartialResults = partial
	}
	if len(env) > 0 {
		snap.Env = env
	}

	s.snapshots[task.ID] = snap
	return clone(snap)
}

// Latest returns a copy of the newest snapshot for taskID
func (s *Service) Latest(taskID string) (*model.ContextSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[taskID]
	if !ok {
		return nil, false
	}
	return clone(snap), true
}

// ResumePlan builds what the next terminal needs to continue taskID, nil when
// the task has no snapshot yet
func (s *Service) ResumePlan(taskID string) *model.ResumePlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[taskID]
	if !ok {
		return nil
	}
	return Replay(snap)
}

// Discard drops the snapshot once the task reaches a terminal status
func (s *Service) Discard(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, taskID)
}

// Len number of held snapshots
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Replay converts a snapshot into a resume plan. Pending steps never include
// steps already completed.
func Replay(snap *model.ContextSnapshot) *model.ResumePlan {
	if snap == nil {
		return nil
	}
	completed := dedupe(snap.CompletedSteps)
	plan := &model.ResumePlan{
		CompletedSteps: completed,
		PendingSteps:   without(dedupe(snap.PendingSteps), completed),
		WorkingDir:     snap.WorkingDir,
	}
	if len(completed) > 0 {
		plan.ResumeFrom = completed[len(completed)-1]
	}
	if len(snap.Checkpoints) > 0 {
		plan.Checkpoints = make(map[string]string, len(snap.Checkpoints))
		mergeStrings(plan.Checkpoints, snap.Checkpoints)
	}
	if len(snap.Env) > 0 {
		plan.Env = make(map[string]string, len(snap.Env))
		mergeStrings(plan.Env, snap.Env)
	}
	return plan
}

// Encode serializes a snapshot for persistence or cross-process transfer
func Encode(snap *model.ContextSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode restores a snapshot produced by Encode
func Decode(data []byte) (*model.ContextSnapshot, error) {
	var snap model.ContextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.TaskID == "" {
		return nil, fmt.Errorf("snapshot has no task id")
	}
	return &snap, nil
}

func clone(snap *model.ContextSnapshot) *model.ContextSnapshot {
	c := *snap
	c.History = append([]string(nil), snap.History...)
	c.OpenResources = append([]string(nil), snap.OpenResources...)
	c.CompletedSteps = append([]string(nil), snap.CompletedSteps...)
	c.PendingSteps = append([]string(nil), snap.PendingSteps...)
	c.Errors = append([]string(nil), snap.Errors...)
	c.Attempts = append([]model.Attempt(nil), snap.Attempts...)
	if snap.Checkpoints != nil {
		c.Checkpoints = make(map[string]string, len(snap.Checkpoints))
		mergeStrings(c.Checkpoints, snap.Checkpoints)
	}
	if snap.Env != nil {
		c.Env = make(map[string]string, len(snap.Env))
		mergeStrings(c.Env, snap.Env)
	}
	if snap.PartialResults != nil {
		c.PartialResults = make(map[string]interface{}, len(snap.PartialResults))
		mergeValues(c.PartialResults, snap.PartialResults)
	}
	return &c
}

func mergeStrings(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func mergeValues(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

// dedupe keeps first occurrences in order
func dedupe(steps []string) []string {
	out := make([]string, 0, len(steps))
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func without(steps, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, s := range drop {
		skip[s] = struct{}{}
	}
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
