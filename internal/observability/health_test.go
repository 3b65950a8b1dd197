package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_CheckHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("no checks registered is healthy", func(t *testing.T) {
		hc := NewHealthChecker("test")
		resp := hc.CheckHealth(ctx)
		assert.Equal(t, StatusHealthy, resp.Status)
		assert.Empty(t, resp.Components)
		assert.Equal(t, "test", resp.Version)
	})

	t.Run("all checks passing", func(t *testing.T) {
		hc := NewHealthChecker("test")
		hc.RegisterHealthCheck("store", func(ctx context.Context) error { return nil })
		hc.RegisterHealthCheck("bus", func(ctx context.Context) error { return nil })

		resp := hc.CheckHealth(ctx)
		assert.Equal(t, StatusHealthy, resp.Status)
		require.Len(t, resp.Components, 2)
		assert.Equal(t, StatusHealthy, resp.Components["store"].Status)
	})

	t.Run("failing optional check degrades instead of failing", func(t *testing.T) {
		hc := NewHealthChecker("test")
		hc.RegisterHealthCheck("store", func(ctx context.Context) error { return nil })
		hc.RegisterOptionalHealthCheck("bus", func(ctx context.Context) error {
			return errors.New("connection refused")
		})

		resp := hc.CheckHealth(ctx)
		assert.Equal(t, StatusDegraded, resp.Status)
		assert.Equal(t, StatusDegraded, resp.Components["bus"].Status)
		assert.Equal(t, "connection refused", resp.Components["bus"].Error)
		assert.Equal(t, StatusHealthy, resp.Components["store"].Status)
	})

	t.Run("one failing check makes the rollup unhealthy", func(t *testing.T) {
		hc := NewHealthChecker("test")
		hc.RegisterHealthCheck("store", func(ctx context.Context) error { return nil })
		hc.RegisterHealthCheck("bus", func(ctx context.Context) error {
			return errors.New("connection refused")
		})

		resp := hc.CheckHealth(ctx)
		assert.Equal(t, StatusUnhealthy, resp.Status)
		assert.Equal(t, StatusUnhealthy, resp.Components["bus"].Status)
		assert.Equal(t, "connection refused", resp.Components["bus"].Error)
		assert.Equal(t, StatusHealthy, resp.Components["store"].Status)
	})
}

func TestHealthChecker_CheckReadiness(t *testing.T) {
	ctx := context.Background()

	hc := NewHealthChecker("test")
	hc.RegisterReadinessCheck("store", func(ctx context.Context) error { return nil })

	resp := hc.CheckReadiness(ctx)
	assert.True(t, resp.Ready)

	hc.RegisterReadinessCheck("bus", func(ctx context.Context) error {
		return errors.New("down")
	})
	resp = hc.CheckReadiness(ctx)
	assert.False(t, resp.Ready)
}
