package metrics

import (
	"context"
	"sync"
)

// Health states reported by checks.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus is the result of one health check.
type HealthStatus struct {
	Status  HealthState            `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) HealthStatus

// HealthRegistry aggregates named health checks.
type HealthRegistry struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checks: make(map[string]HealthCheck)}
}

func (h *HealthRegistry) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered check and returns per-name results plus the
// worst overall state.
func (h *HealthRegistry) Check(ctx context.Context) (HealthState, map[string]HealthStatus) {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	overall := HealthHealthy
	results := make(map[string]HealthStatus, len(checks))
	for name, check := range checks {
		res := check(ctx)
		results[name] = res
		switch res.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return overall, results
}
