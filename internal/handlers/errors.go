// Package handlers contains the gin HTTP handlers for the library
// service REST surface.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/deployments"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/observability"
	"github.com/piwi3910/stratweave/internal/registry"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/swaps"
	"github.com/piwi3910/stratweave/internal/validation"
)

// respondError maps domain errors to HTTP statuses. Validation failures
// carry the full check breakdown so callers can display per-field
// feedback; everything else carries a detail string.
func respondError(c *gin.Context, err error) {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Detail: gin.H{
			"message":  vErr.Error(),
			"errors":   vErr.Result.Errors,
			"warnings": vErr.Result.Warnings,
			"checks":   vErr.Result.Checks,
		}})
		return
	}

	switch {
	case errors.Is(err, storage.ErrEntityNotFound),
		errors.Is(err, storage.ErrDeploymentNotFound),
		errors.Is(err, storage.ErrSwapNotFound),
		errors.Is(err, storage.ErrDependencyNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Detail: err.Error()})

	case errors.Is(err, storage.ErrEntityExists),
		errors.Is(err, storage.ErrDependencyExists),
		errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, registry.ErrSelfDependency),
		errors.Is(err, deployments.ErrNoRollbackTarget),
		errors.Is(err, deployments.ErrInvalidTransition),
		errors.Is(err, swaps.ErrInvalidState):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Detail: err.Error()})

	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{Detail: err.Error()})

	default:
		observability.GetLogger().Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "internal error"})
	}
}

// respondBindError reports a malformed or incomplete request body.
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Detail: err.Error()})
}

// respondQueryError reports invalid query parameters.
func respondQueryError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Detail: err.Error()})
}

func errInvalidLimit(raw string) error {
	return fmt.Errorf("invalid limit %q: must be an integer >= 1", raw)
}
