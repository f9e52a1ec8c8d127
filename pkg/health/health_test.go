package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"termpool/internal/model"
	"termpool/pkg/constants"
	"termpool/pkg/interfaces"
)

type probeAdapter struct {
	interfaces.WorkerAdapter
	alive bool
	delay time.Duration
}

func (p *probeAdapter) Probe(ctx context.Context, _ *interfaces.TerminalHandle) bool {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return false
		}
	}
	return p.alive
}

func TestProbe(t *testing.T) {
	h := &interfaces.TerminalHandle{Ref: "x"}
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, Probe(ctx, &probeAdapter{alive: true}, h, time.Second))
	assert.Equal(t, StatusUnresponsive, Probe(ctx, &probeAdapter{alive: false}, h, time.Second))
	assert.Equal(t, StatusUnresponsive, Probe(ctx, &probeAdapter{alive: true, delay: time.Second}, h, 20*time.Millisecond))
	assert.Equal(t, StatusUnresponsive, Probe(ctx, &probeAdapter{alive: true}, nil, time.Second))
}

func TestApplyProbe(t *testing.T) {
	now := time.Now()

	term := &model.Terminal{State: constants.TerminalStateHealthy}
	assert.Equal(t, constants.TerminalStateHealthy, ApplyProbe(term, StatusHealthy, now))
	assert.Equal(t, now, term.LastProbeAt)

	assert.Equal(t, constants.TerminalStateDegraded, ApplyProbe(term, StatusUnresponsive, now))
	assert.Equal(t, constants.RepairLevelGentle, term.RepairLevel)
	assert.Equal(t, 1, term.ConsecutiveHealthFailures)

	assert.Equal(t, constants.TerminalStateDegraded, ApplyProbe(term, StatusUnresponsive, now))
	assert.Equal(t, 2, term.ConsecutiveHealthFailures)

	assert.Equal(t, constants.TerminalStateHealthy, ApplyProbe(term, StatusHealthy, now))
	assert.Equal(t, constants.RepairLevelNone, term.RepairLevel)
	assert.Equal(t, 0, term.ConsecutiveHealthFailures)

	dead := &model.Terminal{State: constants.TerminalStateDead}
	assert.Equal(t, constants.TerminalStateDead, ApplyProbe(dead, StatusHealthy, now))
}

func TestApplyRepair_LadderToDead(t *testing.T) {
	now := time.Now()
	term := &model.Terminal{State: constants.TerminalStateDegraded, RepairLevel: constants.RepairLevelGentle}

	for level := constants.RepairLevelGentle; level < constants.RepairLevelKill; level++ {
		state := ApplyRepair(term, level, false, now)
		assert.Equal(t, constants.TerminalStateDegraded, state)
		assert.Equal(t, level+1, term.RepairLevel)
	}
	assert.Equal(t, constants.TerminalStateDead, ApplyRepair(term, constants.RepairLevelKill, false, now))
	assert.Equal(t, now, term.LastRepairAt)
}

// TestProperty_RepairLevelMonotonic checks the ladder only climbs on failure
// and any success clears it
func TestProperty_RepairLevelMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("level strictly increases on failure, clears on success", prop.ForAll(
		func(outcomes []bool) bool {
			term := &model.Terminal{State: constants.TerminalStateDegraded, RepairLevel: constants.RepairLevelGentle}
			for _, ok := range outcomes {
				if term.State != constants.TerminalStateDegraded {
					break
				}
				before := term.RepairLevel
				ApplyRepair(term, before, ok, time.Now())
				switch {
				case ok && before < constants.RepairLevelKill:
					if term.State != constants.TerminalStateHealthy || term.RepairLevel != constants.RepairLevelNone {
						return false
					}
				case before == constants.RepairLevelKill:
					if term.State != constants.TerminalStateDead {
						return false
					}
				default:
					if term.RepairLevel != before+1 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

type countingChecker struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingChecker) CheckTerminal(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id]++
}

func (c *countingChecker) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

func TestMonitor_WatchUnwatch(t *testing.T) {
	checker := &countingChecker{counts: map[string]int{}}
	m := NewMonitor(checker, 10*time.Millisecond)
	ctx := context.Background()

	m.Watch(ctx, "terminal-1")
	m.Watch(ctx, "terminal-1")
	m.Watch(ctx, "terminal-2")
	assert.Equal(t, 2, m.Watching())

	assert.Eventually(t, func() bool {
		return checker.count("terminal-1") >= 2 && checker.count("terminal-2") >= 2
	}, time.Second, 5*time.Millisecond)

	m.Unwatch("terminal-1")
	assert.Equal(t, 1, m.Watching())

	m.Stop()
	assert.Equal(t, 0, m.Watching())

	frozen := checker.count("terminal-2")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, checker.count("terminal-2"))

	m.Watch(ctx, "terminal-3")
	assert.Equal(t, 0, m.Watching())
}
