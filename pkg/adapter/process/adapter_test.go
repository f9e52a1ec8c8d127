package process

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/pkg/config"
	"termpool/pkg/interfaces"
)

// TestHelperProcess is not a real test: it is the hosted process the adapter
// launches, speaking the line protocol on stdin/stdout
func TestHelperProcess(t *testing.T) {
	if os.Getenv("TERMPOOL_HELPER_PROCESS") != "1" {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		switch msg.Type {
		case msgPing:
			_ = enc.Encode(Message{Type: msgPong, ID: msg.ID})
		case msgRun:
			switch msg.Request.Payload["mode"] {
			case "crash":
				os.Exit(3)
			case "fail":
				_ = enc.Encode(Message{Type: msgResult, Result: &interfaces.ExecutionResult{
					Event:          interfaces.ExecutionFailed,
					Error:          "step two broke",
					CompletedSteps: []string{"one"},
					PendingSteps:   []string{"two"},
				}})
			default:
				_ = enc.Encode(Message{Type: msgLog, Text: "working"})
				_ = enc.Encode(Message{Type: msgResult, Result: &interfaces.ExecutionResult{
					Event:  interfaces.ExecutionCompleted,
					Output: map[string]interface{}{"ref": os.Getenv("TERMPOOL_TERMINAL_REF")},
				}})
			}
		}
	}
	os.Exit(0)
}

func newTestAdapter(t *testing.T) *Adapter {
	a, err := NewAdapter(config.AdapterConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess"},
		Env:     map[string]string{"TERMPOOL_HELPER_PROCESS": "1"},
	})
	require.NoError(t, err)
	t.Cleanup(a.KillAll)
	return a
}

func probe(a *Adapter, h *interfaces.TerminalHandle) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Probe(ctx, h)
}

func TestNewAdapter_RequiresCommand(t *testing.T) {
	_, err := NewAdapter(config.AdapterConfig{})
	assert.Error(t, err)
}

func TestAdapter_LaunchProbeRun(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	h, err := a.Launch(ctx)
	require.NoError(t, err)
	assert.True(t, probe(a, h))

	res, err := a.Run(ctx, h, &interfaces.ExecutionRequest{TaskID: "task-1", Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExecutionCompleted, res.Event)
	assert.Equal(t, h.Ref, res.Output["ref"])

	res, err = a.Run(ctx, h, &interfaces.ExecutionRequest{TaskID: "task-2", Payload: map[string]interface{}{"mode": "fail"}})
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExecutionFailed, res.Event)
	assert.Equal(t, []string{"two"}, res.PendingSteps)

	assert.NoError(t, a.Send(ctx, h, interfaces.SignalNoop))
}

func TestAdapter_CrashDuringRunIsTerminalFault(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	h, err := a.Launch(ctx)
	require.NoError(t, err)

	res, err := a.Run(ctx, h, &interfaces.ExecutionRequest{TaskID: "task-1", Payload: map[string]interface{}{"mode": "crash"}})
	require.NoError(t, err)
	assert.Equal(t, interfaces.ExecutionTerminalFault, res.Event)
	assert.False(t, probe(a, h))

	// restart in place keeps the ref and revives the terminal
	require.NoError(t, a.Restart(ctx, h))
	assert.True(t, probe(a, h))
}

func TestAdapter_Kill(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	h, err := a.Launch(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Kill(ctx, h))

	assert.False(t, probe(a, h))
	assert.Error(t, a.Send(ctx, h, interfaces.SignalNoop))
	// killing twice is harmless
	assert.NoError(t, a.Kill(ctx, h))
}

func TestAdapter_RunHonoursContext(t *testing.T) {
	a := newTestAdapter(t)
	h, err := a.Launch(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Run(ctx, h, &interfaces.ExecutionRequest{TaskID: "task-1", Payload: map[string]interface{}{}})
	// either the result raced in or the cancelled context won
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
