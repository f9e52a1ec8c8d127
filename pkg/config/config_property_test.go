// Package config provides property-based tests for configuration fallback functionality.
// These tests verify universal properties that should hold across all valid inputs.
package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Property-based tests: invalid values fall back to defaults
// ============================================================================

// TestProperty_NonIncreasingRepairTimeoutsFallBackToDefault tests that a ladder whose
// timeouts are not strictly increasing is replaced by the default ladder as a whole
func TestProperty_NonIncreasingRepairTimeoutsFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	defaults := DefaultRepairConfig()

	properties.Property("non-increasing ladder falls back to default", prop.ForAll(
		func(base int, drop int) bool {
			cfg := &Config{
				Repair: RepairConfig{
					GentleTimeout:    time.Duration(base) * time.Second,
					ContextTimeout:   time.Duration(base+1) * time.Second,
					InterruptTimeout: time.Duration(base+1-drop) * time.Second, // not greater than previous
					RestartTimeout:   time.Duration(base+5) * time.Second,
					KillTimeout:      time.Duration(base+6) * time.Second,
				},
			}

			validateAndApplyDefaults(cfg)

			return cfg.Repair.Timeouts()[2] == defaults.InterruptTimeout &&
				cfg.Repair.GentleTimeout == defaults.GentleTimeout &&
				cfg.Repair.KillTimeout == defaults.KillTimeout
		},
		gen.IntRange(1, 100),
		gen.IntRange(0, 50),
	))

	properties.Property("strictly increasing ladder is kept", prop.ForAll(
		func(base int, step int) bool {
			cfg := &Config{
				Repair: RepairConfig{
					GentleTimeout:    time.Duration(base) * time.Millisecond,
					ContextTimeout:   time.Duration(base+step) * time.Millisecond,
					InterruptTimeout: time.Duration(base+2*step) * time.Millisecond,
					RestartTimeout:   time.Duration(base+3*step) * time.Millisecond,
					KillTimeout:      time.Duration(base+4*step) * time.Millisecond,
				},
			}

			validateAndApplyDefaults(cfg)

			return cfg.Repair.GentleTimeout == time.Duration(base)*time.Millisecond &&
				cfg.Repair.KillTimeout == time.Duration(base+4*step)*time.Millisecond
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

// TestProperty_InvalidSafetyMarginFallsBackToDefault tests that margins outside (0,1] fall back to 0.8
func TestProperty_InvalidSafetyMarginFallsBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("negative margin falls back", prop.ForAll(
		func(margin float64) bool {
			cfg := &Config{Pool: PoolConfig{SafetyMargin: margin}}
			validateAndApplyDefaults(cfg)
			return cfg.Pool.SafetyMargin == 0.8
		},
		gen.Float64Range(-10, -0.0001),
	))

	properties.Property("margin above one falls back", prop.ForAll(
		func(margin float64) bool {
			cfg := &Config{Pool: PoolConfig{SafetyMargin: margin}}
			validateAndApplyDefaults(cfg)
			return cfg.Pool.SafetyMargin == 0.8
		},
		gen.Float64Range(1.0001, 10),
	))

	properties.Property("valid margin is kept", prop.ForAll(
		func(margin float64) bool {
			cfg := &Config{Pool: PoolConfig{SafetyMargin: margin}}
			validateAndApplyDefaults(cfg)
			return cfg.Pool.SafetyMargin == margin
		},
		gen.Float64Range(0.01, 1),
	))

	properties.TestingRun(t)
}

// TestProperty_InvalidQueueCapacityFallsBackToDefault tests that non-positive capacities fall back
func TestProperty_InvalidQueueCapacityFallsBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive capacity falls back", prop.ForAll(
		func(capacity int) bool {
			cfg := &Config{Queue: QueueConfig{Capacity: capacity}}
			validateAndApplyDefaults(cfg)
			return cfg.Queue.Capacity == 1000
		},
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

func TestParse_DurationsAndDefaults(t *testing.T) {
	data := []byte(`
server:
  port: 9090
pool:
  size: 4
  health_interval: 10s
task:
  rate_limit_wait: 2m
  permission_auto_accept: true
repair:
  gentle_timeout: 1s
  context_timeout: 2s
  interrupt_timeout: 3s
  restart_timeout: 4s
  kill_timeout: 5s
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, 10*time.Second, cfg.Pool.HealthInterval)
	assert.Equal(t, 2*time.Minute, cfg.Task.RateLimitWait)
	assert.True(t, cfg.Task.PermissionAutoAccept)
	assert.Equal(t, 3, cfg.Task.DefaultMaxAttempts)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, 0.8, cfg.Pool.SafetyMargin)
	assert.Equal(t, 5*time.Second, cfg.Repair.KillTimeout)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Minute, cfg.Task.RateLimitWait)
	assert.Equal(t, "2Gi", cfg.Pool.PerWorkerMemory)
	assert.Equal(t, "process", cfg.Adapter.Type)
	timeouts := cfg.Repair.Timeouts()
	for i := 1; i < len(timeouts); i++ {
		assert.Greater(t, timeouts[i], timeouts[i-1])
	}
}
