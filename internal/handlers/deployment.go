package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/stratweave/internal/deployments"
	"github.com/piwi3910/stratweave/internal/models"
)

// DeploymentHandler serves the /deployments routes.
type DeploymentHandler struct {
	manager     *deployments.Manager
	maxPageSize int
}

// NewDeploymentHandler creates the deployment handler.
func NewDeploymentHandler(manager *deployments.Manager, maxPageSize int) *DeploymentHandler {
	return &DeploymentHandler{manager: manager, maxPageSize: maxPageSize}
}

// List handles GET /deployments.
func (h *DeploymentHandler) List(c *gin.Context) {
	filter, err := models.ParseDeploymentFilter(c.Request.URL.Query(), h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	list, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListForEntity handles GET /deployments/entity/:entity_id/deployments.
func (h *DeploymentHandler) ListForEntity(c *gin.Context) {
	filter, err := models.ParseDeploymentFilter(c.Request.URL.Query(), h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	filter.EntityID = c.Param("entity_id")

	list, err := h.manager.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /deployments/:id.
func (h *DeploymentHandler) Get(c *gin.Context) {
	deployment, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployment)
}

// Create handles POST /deployments.
func (h *DeploymentHandler) Create(c *gin.Context) {
	var req models.DeploymentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	deployment, err := h.manager.Deploy(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deployment)
}

// Rollback handles POST /deployments/:id/rollback.
func (h *DeploymentHandler) Rollback(c *gin.Context) {
	var req models.DeploymentRollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	deployment, err := h.manager.Rollback(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployment)
}
