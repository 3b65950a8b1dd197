package observability

import (
	"context"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker manages health and readiness checks.
type HealthChecker struct {
	mu              sync.RWMutex
	HealthChecks    map[string]HealthCheck // Exported for testing
	ReadinessChecks map[string]HealthCheck // Exported for testing
	OptionalChecks  map[string]bool        // Exported for testing
	Version         string                 // Exported for testing
	Timeout         time.Duration          // Exported for testing
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		HealthChecks:    make(map[string]HealthCheck),
		ReadinessChecks: make(map[string]HealthCheck),
		OptionalChecks:  make(map[string]bool),
		Version:         version,
		Timeout:         5 * time.Second,
	}
}

// RegisterHealthCheck registers a health check for a component.
func (hc *HealthChecker) RegisterHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.HealthChecks[name] = check
}

// RegisterOptionalHealthCheck registers a health check whose failure
// degrades the rollup instead of making it unhealthy. Used for
// components the service keeps operating without, like the event bus.
func (hc *HealthChecker) RegisterOptionalHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.HealthChecks[name] = check
	hc.OptionalChecks[name] = true
}

// RegisterReadinessCheck registers a readiness check for a component.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ReadinessChecks[name] = check
}

// SetTimeout sets the timeout for health checks.
func (hc *HealthChecker) SetTimeout(timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.Timeout = timeout
}

// CheckHealth performs all health checks and returns the health status.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.HealthChecks))
	for name, check := range hc.HealthChecks {
		checks[name] = check
	}
	optional := make(map[string]bool, len(hc.OptionalChecks))
	for name, opt := range hc.OptionalChecks {
		optional[name] = opt
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	for name, component := range components {
		if component.Status == StatusUnhealthy && optional[name] {
			component.Status = StatusDegraded
			components[name] = component
		}
	}

	overallStatus := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if component.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return &HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    hc.Version,
		Components: components,
	}
}

// CheckReadiness performs all readiness checks and returns the readiness
// status. All components must be healthy for the service to be ready.
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.ReadinessChecks))
	for name, check := range hc.ReadinessChecks {
		checks[name] = check
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	ready := true
	for _, component := range components {
		if component.Status != StatusHealthy {
			ready = false
			break
		}
	}

	return &ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// ExecuteChecks executes checks concurrently. Exported for testing.
func (hc *HealthChecker) ExecuteChecks(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth)
	if len(checks) == 0 {
		return components
	}

	var wg sync.WaitGroup
	resultChan := make(chan struct {
		name   string
		health ComponentHealth
	}, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			latency := time.Since(start)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: latency.String(),
			}

			if err != nil {
				health.Status = StatusUnhealthy
				if ctx.Err() != nil {
					health.Error = "check timed out"
				} else {
					health.Error = err.Error()
				}
			}

			resultChan <- struct {
				name   string
				health ComponentHealth
			}{name: name, health: health}
		}(name, check)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		components[result.name] = result.health
	}

	return components
}
