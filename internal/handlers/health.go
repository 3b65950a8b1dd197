package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/observability"
	"github.com/piwi3910/stratweave/internal/storage"
)

// HealthHandler serves the health endpoints.
type HealthHandler struct {
	checker   *observability.HealthChecker
	store     storage.Store
	publisher events.Publisher
	version   string
}

// NewHealthHandler creates the health handler and registers the store and
// bus checks.
func NewHealthHandler(checker *observability.HealthChecker, store storage.Store, publisher events.Publisher, version string) *HealthHandler {
	h := &HealthHandler{checker: checker, store: store, publisher: publisher, version: version}

	checker.RegisterHealthCheck("store", store.Ping)
	checker.RegisterOptionalHealthCheck("bus", publisher.Ping)
	checker.RegisterReadinessCheck("store", store.Ping)
	checker.RegisterReadinessCheck("bus", publisher.Ping)

	return h
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := h.checker.CheckHealth(c.Request.Context())

	status := http.StatusOK
	if resp.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Liveness handles GET /health/live. The process answering is the check.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now()})
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	resp := h.checker.CheckReadiness(c.Request.Context())

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Detailed handles GET /health/detailed, reporting per-component
// connectivity and publisher degradation.
func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	storeUp := h.store.Ping(ctx) == nil
	busUp := h.publisher.Ping(ctx) == nil && !h.publisher.Degraded()

	status := "healthy"
	switch {
	case !storeUp:
		status = "unhealthy"
	case !busUp:
		status = "degraded"
	}

	code := http.StatusOK
	if !storeUp {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.HealthDetail{
		Status:            status,
		Store:             storeUp,
		Bus:               busUp,
		PublisherDegraded: h.publisher.Degraded(),
		Timestamp:         time.Now().UTC(),
		Version:           h.version,
	})
}
