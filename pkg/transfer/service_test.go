package transfer

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/interfaces"
)

func failedTask(id, terminalID, errMsg string) *model.Task {
	end := time.Now()
	return &model.Task{
		ID:          id,
		MaxAttempts: 3,
		Attempts: []model.Attempt{{
			TerminalID: terminalID,
			StartedAt:  end.Add(-time.Minute),
			EndedAt:    &end,
			Outcome:    constants.AttemptOutcomeFailed,
			Error:      errMsg,
		}},
	}
}

func TestCapture_FirstFailure(t *testing.T) {
	s := NewService()
	task := failedTask("task-1", "terminal-1", "boom")

	snap := s.Capture(task, "terminal-1", "failed", &interfaces.ExecutionResult{
		Event:          interfaces.ExecutionFailed,
		Error:          "boom",
		CompletedSteps: []string{"checkout", "build"},
		PendingSteps:   []string{"build", "test", "deploy"},
		Checkpoints:    map[string]string{"commit": "abc123"},
		WorkingDir:     "/work/task-1",
		Env:            map[string]string{"GOFLAGS": "-mod=mod"},
	})

	assert.Equal(t, "task-1", snap.TaskID)
	assert.Equal(t, "terminal-1", snap.OriginTerminalID)
	assert.Equal(t, []string{"checkout", "build"}, snap.CompletedSteps)
	assert.Equal(t, []string{"test", "deploy"}, snap.PendingSteps)
	assert.Equal(t, "abc123", snap.Checkpoints["commit"])
	assert.Equal(t, "/work/task-1", snap.WorkingDir)
	assert.Equal(t, []string{"boom"}, snap.Errors)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, "terminal-1", snap.Attempts[0].TerminalID)
}

func TestCapture_CarriesPreviousState(t *testing.T) {
	s := NewService()
	task := failedTask("task-1", "terminal-1", "first")
	s.Capture(task, "terminal-1", "failed", &interfaces.ExecutionResult{
		Error:          "first",
		CompletedSteps: []string{"a"},
		PendingSteps:   []string{"b", "c"},
		Checkpoints:    map[string]string{"k1": "v1"},
		WorkingDir:     "/work",
	})

	end := time.Now()
	task.Attempts = append(task.Attempts, model.Attempt{TerminalID: "terminal-2", EndedAt: &end, Error: "second"})

	// terminal fault: the adapter reported nothing
	snap := s.Capture(task, "terminal-2", "terminal fault", nil)

	assert.Equal(t, []string{"a"}, snap.CompletedSteps)
	assert.Equal(t, []string{"b", "c"}, snap.PendingSteps)
	assert.Equal(t, "v1", snap.Checkpoints["k1"])
	assert.Equal(t, "/work", snap.WorkingDir)
	assert.Equal(t, []string{"first", "second"}, snap.Errors)
	assert.Len(t, snap.Attempts, 2)
	assert.Equal(t, "terminal-2", snap.OriginTerminalID)
}

func TestCapture_ReturnsDetachedCopy(t *testing.T) {
	s := NewService()
	task := failedTask("task-1", "terminal-1", "")
	snap := s.Capture(task, "terminal-1", "failed", &interfaces.ExecutionResult{
		CompletedSteps: []string{"a"},
		Checkpoints:    map[string]string{"k": "v"},
	})

	snap.CompletedSteps[0] = "mutated"
	snap.Checkpoints["k"] = "mutated"

	latest, ok := s.Latest("task-1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, latest.CompletedSteps)
	assert.Equal(t, "v", latest.Checkpoints["k"])
}

func TestResumePlan(t *testing.T) {
	s := NewService()
	assert.Nil(t, s.ResumePlan("missing"))

	task := failedTask("task-1", "terminal-1", "")
	s.Capture(task, "terminal-1", "failed", &interfaces.ExecutionResult{
		CompletedSteps: []string{"checkout", "build"},
		PendingSteps:   []string{"test"},
		Env:            map[string]string{"A": "1"},
	})

	plan := s.ResumePlan("task-1")
	require.NotNil(t, plan)
	assert.Equal(t, "build", plan.ResumeFrom)
	assert.Equal(t, []string{"test"}, plan.PendingSteps)
	assert.Equal(t, "1", plan.Env["A"])
}

func TestDiscard(t *testing.T) {
	s := NewService()
	s.Capture(failedTask("task-1", "terminal-1", ""), "terminal-1", "failed", nil)
	assert.Equal(t, 1, s.Len())

	s.Discard("task-1")
	_, ok := s.Latest("task-1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestEncodeDecode(t *testing.T) {
	s := NewService()
	snap := s.Capture(failedTask("task-1", "terminal-1", "x"), "terminal-1", "failed", &interfaces.ExecutionResult{
		CompletedSteps: []string{"a"},
		PendingSteps:   []string{"b"},
	})

	data, err := Encode(snap)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap.CompletedSteps, decoded.CompletedSteps)
	assert.Equal(t, snap.PendingSteps, decoded.PendingSteps)

	_, err = Decode([]byte(`{"completed_steps":[]}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

// TestProperty_ReplayedPendingNeverOverlapsCompleted checks that whatever the
// adapter reports across successive failures, the resume plan never asks a
// terminal to redo a completed step
func TestProperty_ReplayedPendingNeverOverlapsCompleted(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	names := []string{"a", "b", "c", "d", "e", "f"}
	step := gen.IntRange(0, len(names)-1).Map(func(i int) string { return names[i] })

	properties.Property("pending and completed are disjoint", prop.ForAll(
		func(c1, p1, c2, p2 []string) bool {
			s := NewService()
			task := failedTask("task", "terminal-1", "")
			s.Capture(task, "terminal-1", "failed", &interfaces.ExecutionResult{CompletedSteps: c1, PendingSteps: p1})
			snap := s.Capture(task, "terminal-2", "failed", &interfaces.ExecutionResult{CompletedSteps: c2, PendingSteps: p2})

			plan := Replay(snap)
			done := make(map[string]bool)
			for _, c := range plan.CompletedSteps {
				done[c] = true
			}
			for _, p := range plan.PendingSteps {
				if done[p] {
					return false
				}
			}
			// completed work from the first terminal survives
			for _, c := range c1 {
				if !done[c] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(step),
		gen.SliceOf(step),
		gen.SliceOf(step),
		gen.SliceOf(step),
	))

	properties.TestingRun(t)
}
