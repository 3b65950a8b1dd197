package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/swaps"
)

// SwapHandler serves the /swaps routes.
type SwapHandler struct {
	engine      *swaps.Engine
	maxPageSize int
}

// NewSwapHandler creates the swap handler.
func NewSwapHandler(engine *swaps.Engine, maxPageSize int) *SwapHandler {
	return &SwapHandler{engine: engine, maxPageSize: maxPageSize}
}

// List handles GET /swaps.
func (h *SwapHandler) List(c *gin.Context) {
	filter, err := models.ParseSwapFilter(c.Request.URL.Query(), h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	list, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListForEntity handles GET /swaps/entity/:entity_id/swaps, returning
// swaps the entity participated in on either side. A single either-side
// store query keeps pagination consistent across the combined set.
func (h *SwapHandler) ListForEntity(c *gin.Context) {
	filter, err := models.ParseSwapFilter(c.Request.URL.Query(), h.maxPageSize)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	filter.EntityID = c.Param("entity_id")

	list, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /swaps/:id.
func (h *SwapHandler) Get(c *gin.Context) {
	swap, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, swap)
}

// Create handles POST /swaps, honoring validate_only.
func (h *SwapHandler) Create(c *gin.Context) {
	var req models.SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	swap, err := h.engine.Execute(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.ValidateOnly {
		c.JSON(http.StatusOK, swap)
		return
	}
	c.JSON(http.StatusCreated, swap)
}

// Rollback handles POST /swaps/:id/rollback.
func (h *SwapHandler) Rollback(c *gin.Context) {
	var req models.SwapRollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	swap, err := h.engine.Rollback(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, swap)
}
