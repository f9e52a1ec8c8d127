package capacity

import (
	"fmt"
	"math"
	"runtime"

	"termpool/pkg/config"
	"termpool/pkg/logger"
)

// Resources host resources relevant to pool sizing
type Resources struct {
	CPUCores    int    `json:"cpuCores"`
	TotalMemory uint64 `json:"totalMemory"` // bytes
	FreeMemory  uint64 `json:"freeMemory"`  // bytes
}

// Introspector reads host resources
type Introspector func() (Resources, error)

// Estimate a sizing decision with its inputs, for operators
type Estimate struct {
	Resources       Resources `json:"resources"`
	PerWorkerMemory uint64    `json:"perWorkerMemory"`
	SafetyMargin    float64   `json:"safetyMargin"`
	ByCPU           int       `json:"byCpu"`
	ByMemory        int       `json:"byMemory"`
	Computed        int       `json:"computed"`
	Override        int       `json:"override,omitempty"`
	Target          int       `json:"target"`
	Fallback        bool      `json:"fallback"` // introspection failed
	Error           string    `json:"error,omitempty"`
}

// Sizer computes the pool's target terminal count. It is evaluated only at
// pool start or on operator request, never continuously.
type Sizer struct {
	safetyMargin    float64
	perWorkerMemory uint64
	fallback        int
	override        int
	introspect      Introspector
}

// NewSizer creates a sizer from pool configuration
func NewSizer(cfg config.PoolConfig) (*Sizer, error) {
	perWorker, err := ParseMemory(cfg.PerWorkerMemory)
	if err != nil {
		return nil, fmt.Errorf("invalid per_worker_memory %q: %w", cfg.PerWorkerMemory, err)
	}
	if perWorker == 0 {
		return nil, fmt.Errorf("per_worker_memory must be positive")
	}
	fallback := cfg.FallbackSize
	if fallback < 1 {
		fallback = 1
	}
	margin := cfg.SafetyMargin
	if margin <= 0 || margin > 1 {
		margin = 0.8
	}
	return &Sizer{
		safetyMargin:    margin,
		perWorkerMemory: perWorker,
		fallback:        fallback,
		override:        cfg.Size,
		introspect:      HostResources,
	}, nil
}

// WithIntrospector replaces host introspection (tests, dry runs)
func (s *Sizer) WithIntrospector(fn Introspector) *Sizer {
	s.introspect = fn
	return s
}

// ComputeOptimalCount returns floor(min(cores, free/perWorker) * margin), at least 1.
// Introspection failure yields the conservative fallback instead of an error.
func (s *Sizer) ComputeOptimalCount() int {
	return s.Estimate().Computed
}

// TargetSize is the operator override when set, otherwise ComputeOptimalCount
func (s *Sizer) TargetSize() int {
	return s.Estimate().Target
}

// Estimate runs introspection and returns the full sizing breakdown
func (s *Sizer) Estimate() Estimate {
	est := Estimate{
		PerWorkerMemory: s.perWorkerMemory,
		SafetyMargin:    s.safetyMargin,
		Override:        s.override,
	}

	res, err := s.introspect()
	if err != nil || res.CPUCores <= 0 {
		if err == nil {
			err = fmt.Errorf("introspection reported %d cores", res.CPUCores)
		}
		logger.Warnf("resource introspection failed, using fallback pool size %d: %v", s.fallback, err)
		est.Fallback = true
		est.Error = err.Error()
		est.Computed = s.fallback
	} else {
		est.Resources = res
		est.ByCPU = res.CPUCores
		est.ByMemory = int(res.FreeMemory / s.perWorkerMemory)
		est.Computed = Compute(res, s.perWorkerMemory, s.safetyMargin)
	}

	est.Target = est.Computed
	if s.override > 0 {
		est.Target = s.override
	}
	return est
}

// Compute is the pure sizing formula
func Compute(res Resources, perWorkerMemory uint64, safetyMargin float64) int {
	if perWorkerMemory == 0 {
		return 1
	}
	byMemory := float64(res.FreeMemory / perWorkerMemory)
	limit := math.Min(float64(res.CPUCores), byMemory)
	target := int(math.Floor(limit * safetyMargin))
	if target < 1 {
		return 1
	}
	return target
}

func numCPU() int {
	return runtime.NumCPU()
}
