package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("empty registry is healthy", func(t *testing.T) {
		h := NewHealthRegistry()
		state, results := h.Check(ctx)
		assert.Equal(t, HealthHealthy, state)
		assert.Empty(t, results)
	})

	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthRegistry()
		h.Register("database", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthHealthy}
		})
		h.Register("redis", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthHealthy}
		})

		state, results := h.Check(ctx)
		assert.Equal(t, HealthHealthy, state)
		assert.Len(t, results, 2)
	})

	t.Run("degraded check degrades overall", func(t *testing.T) {
		h := NewHealthRegistry()
		h.Register("database", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthHealthy}
		})
		h.Register("redis", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthDegraded, Message: "slow"}
		})

		state, results := h.Check(ctx)
		assert.Equal(t, HealthDegraded, state)
		assert.Equal(t, "slow", results["redis"].Message)
	})

	t.Run("unhealthy beats degraded", func(t *testing.T) {
		h := NewHealthRegistry()
		h.Register("redis", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthDegraded}
		})
		h.Register("telephony", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthUnhealthy, Message: "disconnected"}
		})

		state, _ := h.Check(ctx)
		assert.Equal(t, HealthUnhealthy, state)
	})

	t.Run("re-registering replaces the check", func(t *testing.T) {
		h := NewHealthRegistry()
		h.Register("database", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthUnhealthy}
		})
		h.Register("database", func(ctx context.Context) HealthStatus {
			return HealthStatus{Status: HealthHealthy}
		})

		state, results := h.Check(ctx)
		assert.Equal(t, HealthHealthy, state)
		assert.Len(t, results, 1)
	})
}
