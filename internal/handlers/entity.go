package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/registry"
)

// EntityHandler serves the /entities routes.
type EntityHandler struct {
	service     *registry.Service
	maxPageSize int
}

// NewEntityHandler creates the entity handler.
func NewEntityHandler(service *registry.Service, maxPageSize int) *EntityHandler {
	return &EntityHandler{service: service, maxPageSize: maxPageSize}
}

// List handles GET /entities.
func (h *EntityHandler) List(c *gin.Context) {
	filter, err := models.ParseEntityFilter(c.Request.URL.Query(), h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Search handles GET /entities/search with a q parameter matched against
// name and description.
func (h *EntityHandler) Search(c *gin.Context) {
	params := c.Request.URL.Query()
	filter, err := models.ParseEntityFilter(params, h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	if q := params.Get("q"); q != "" {
		filter.Search = q
	}

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /entities/:id.
func (h *EntityHandler) Get(c *gin.Context) {
	entity, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// Create handles POST /entities.
func (h *EntityHandler) Create(c *gin.Context) {
	var req models.EntityCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	entity, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entity)
}

// Update handles PUT /entities/:id with a partial payload.
func (h *EntityHandler) Update(c *gin.Context) {
	var req models.EntityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	entity, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// Delete handles DELETE /entities/:id.
func (h *EntityHandler) Delete(c *gin.Context) {
	deletedBy := c.Query("deleted_by")
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), deletedBy); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events handles GET /entities/:id/events.
func (h *EntityHandler) Events(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondQueryError(c, errInvalidLimit(raw))
			return
		}
		limit = parsed
	}

	evs, err := h.service.Events(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": evs})
}

// Dependencies handles GET /entities/:id/dependencies.
func (h *EntityHandler) Dependencies(c *gin.Context) {
	deps, err := h.service.Dependencies(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": deps})
}

// Dependents handles GET /entities/:id/dependents.
func (h *EntityHandler) Dependents(c *gin.Context) {
	deps, err := h.service.Dependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": deps})
}

// AddDependency handles POST /entities/:id/dependencies.
func (h *EntityHandler) AddDependency(c *gin.Context) {
	var req models.DependencyCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	dep, err := h.service.AddDependency(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

// RemoveDependency handles DELETE /entities/:id/dependencies/:dep_id.
func (h *EntityHandler) RemoveDependency(c *gin.Context) {
	err := h.service.RemoveDependency(c.Request.Context(), c.Param("id"), c.Param("dep_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
