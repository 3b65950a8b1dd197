package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piwi3910/stratweave/internal/handlers"
)

// setupRoutes registers the versioned REST surface plus health and
// metrics endpoints.
func (s *Server) setupRoutes() {
	maxPageSize := s.config.API.PageSizeMax

	entityHandler := handlers.NewEntityHandler(s.registry, maxPageSize)
	deploymentHandler := handlers.NewDeploymentHandler(s.deployments, maxPageSize)
	swapHandler := handlers.NewSwapHandler(s.swaps, maxPageSize)
	healthHandler := handlers.NewHealthHandler(s.healthChecker, s.store, s.publisher, Version)

	health := s.router.Group("/health")
	{
		health.GET("", healthHandler.Health)
		health.GET("/live", healthHandler.Liveness)
		health.GET("/ready", healthHandler.Readiness)
		health.GET("/detailed", healthHandler.Detailed)
	}

	if s.config.Observability.MetricsEnabled {
		s.router.GET(s.config.Observability.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group(s.config.API.V1Prefix)

	entities := v1.Group("/entities")
	{
		entities.GET("", entityHandler.List)
		entities.POST("", entityHandler.Create)
		entities.GET("/search", entityHandler.Search)
		entities.GET("/:id", entityHandler.Get)
		entities.PUT("/:id", entityHandler.Update)
		entities.DELETE("/:id", entityHandler.Delete)
		entities.GET("/:id/events", entityHandler.Events)
		entities.GET("/:id/dependencies", entityHandler.Dependencies)
		entities.POST("/:id/dependencies", entityHandler.AddDependency)
		entities.DELETE("/:id/dependencies/:dep_id", entityHandler.RemoveDependency)
		entities.GET("/:id/dependents", entityHandler.Dependents)
	}

	deploymentsGroup := v1.Group("/deployments")
	{
		deploymentsGroup.GET("", deploymentHandler.List)
		deploymentsGroup.POST("", deploymentHandler.Create)
		deploymentsGroup.GET("/entity/:entity_id/deployments", deploymentHandler.ListForEntity)
		deploymentsGroup.GET("/:id", deploymentHandler.Get)
		deploymentsGroup.POST("/:id/rollback", deploymentHandler.Rollback)
	}

	swapsGroup := v1.Group("/swaps")
	{
		swapsGroup.GET("", swapHandler.List)
		swapsGroup.POST("", swapHandler.Create)
		swapsGroup.GET("/entity/:entity_id/swaps", swapHandler.ListForEntity)
		swapsGroup.GET("/:id", swapHandler.Get)
		swapsGroup.POST("/:id/rollback", swapHandler.Rollback)
	}
}
