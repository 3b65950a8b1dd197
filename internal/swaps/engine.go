// Package swaps implements the hot-swap engine: atomically replacing one
// entity's active deployments with another's, with dry-run validation and
// rollback.
package swaps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/validation"
)

// ErrInvalidState is returned when a rollback is requested for a swap
// that is not completed or was already rolled back.
var ErrInvalidState = errors.New("swap is not in a rollbackable state")

// errNoActiveDeployments aborts the swap transaction when the source
// entity lost its active deployments between validation and execution.
var errNoActiveDeployments = errors.New("source entity has no active deployments")

// Engine orchestrates hot swaps.
type Engine struct {
	store     storage.Store
	publisher events.Publisher
	logger    *zap.Logger
}

// NewEngine creates the swap engine.
func NewEngine(store storage.Store, publisher events.Publisher, logger *zap.Logger) *Engine {
	return &Engine{store: store, publisher: publisher, logger: logger}
}

// Execute runs a hot swap from one entity to another. With ValidateOnly
// set, only the compatibility check runs; nothing is persisted and no
// event is emitted. Downtime is measured from the first mutation of the
// swap transaction to just before its commit.
func (e *Engine) Execute(ctx context.Context, req *models.SwapRequest) (*models.Swap, error) {
	if req.FromEntityID == req.ToEntityID {
		result := models.NewValidationResult()
		result.AddError("distinct_entities", "source and target entity must differ")
		return nil, validation.NewError(result)
	}
	if req.TargetEnvironment != "" && !req.TargetEnvironment.Valid() {
		result := models.NewValidationResult()
		result.AddError("target_environment",
			fmt.Sprintf("unknown environment %q", req.TargetEnvironment))
		return nil, validation.NewError(result)
	}

	from, err := e.store.GetEntity(ctx, req.FromEntityID)
	if err != nil {
		return nil, err
	}
	to, err := e.store.GetEntity(ctx, req.ToEntityID)
	if err != nil {
		return nil, err
	}

	fromActive, err := e.store.ActiveDeployments(ctx, from.ID, req.TargetEnvironment)
	if err != nil {
		return nil, err
	}

	swapVal := validation.SwapCompatibility(from, to, fromActive)

	if req.ValidateOnly {
		// Synthetic response; no row, no event.
		return &models.Swap{
			ID:                uuid.NewString(),
			FromEntityID:      from.ID,
			ToEntityID:        to.ID,
			SwapType:          swapType(req),
			Status:            models.SwapValidating,
			Reason:            req.Reason,
			InitiatedBy:       req.InitiatedBy,
			InitiatedAt:       time.Now().UTC(),
			ValidationResults: swapVal,
			TargetEnvironment: req.TargetEnvironment,
		}, nil
	}

	if !swapVal.Passed {
		return nil, validation.NewError(&swapVal.ValidationResult)
	}

	now := time.Now().UTC()
	swap := &models.Swap{
		ID:                uuid.NewString(),
		FromEntityID:      from.ID,
		ToEntityID:        to.ID,
		SwapType:          swapType(req),
		Status:            models.SwapInProgress,
		Reason:            req.Reason,
		InitiatedBy:       req.InitiatedBy,
		InitiatedAt:       now,
		ValidationResults: swapVal,
		TargetEnvironment: req.TargetEnvironment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.CreateSwap(ctx, swap); err != nil {
		return nil, err
	}

	initEnv := events.NewEnvelope(events.TypeSwapInitiated, models.JSONMap{
		"from_entity_id": from.ID,
		"to_entity_id":   to.ID,
		"swap_type":      string(swap.SwapType),
	})
	initEnv.EntityID = from.ID
	initEnv.SwapID = swap.ID
	e.publisher.Publish(ctx, initEnv)

	start := time.Now()
	var downtimeStart time.Time

	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		fromLocked, toLocked, err := lockEntityPair(ctx, tx, from.ID, to.ID)
		if err != nil {
			return err
		}

		active, err := tx.ActiveDeploymentsForUpdate(ctx, fromLocked.ID, req.TargetEnvironment)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return errNoActiveDeployments
		}

		txNow := time.Now().UTC()
		affected := make([]string, 0, len(active))

		for _, fromDep := range active {
			if downtimeStart.IsZero() {
				downtimeStart = time.Now()
			}
			fromDep.Status = models.DeploymentInactive
			fromDep.UpdatedAt = txNow
			if err := tx.UpdateDeployment(ctx, fromDep); err != nil {
				return err
			}
			affected = append(affected, fromDep.ID)

			toDep, err := e.activateTargetDeployment(ctx, tx, toLocked, fromDep.Env, txNow, req.InitiatedBy)
			if err != nil {
				return err
			}
			if swap.FromDeploymentID == nil {
				swap.FromDeploymentID = models.StrPtr(fromDep.ID)
			}
			if swap.ToDeploymentID == nil {
				swap.ToDeploymentID = models.StrPtr(toDep.ID)
			}
		}

		fromLocked.Status = models.EntityStatusInactive
		fromLocked.UpdatedAt = txNow
		fromLocked.UpdatedBy = req.InitiatedBy
		if err := tx.UpdateEntity(ctx, fromLocked); err != nil {
			return err
		}

		toLocked.Status = models.EntityStatusActive
		toLocked.DeployedAt = &txNow
		toLocked.DeployedBy = req.InitiatedBy
		toLocked.UpdatedAt = txNow
		toLocked.UpdatedBy = req.InitiatedBy
		if err := tx.UpdateEntity(ctx, toLocked); err != nil {
			return err
		}

		downtime := time.Since(downtimeStart).Milliseconds()
		if downtime < 1 {
			downtime = 1
		}
		completed := time.Now().UTC()

		swap.Status = models.SwapCompleted
		swap.Success = true
		swap.CompletedAt = &completed
		swap.DurationSeconds = time.Since(start).Seconds()
		swap.DowntimeMilliseconds = downtime
		swap.AffectedDeployments = pq.StringArray(affected)
		swap.UpdatedAt = completed
		if err := tx.UpdateSwap(ctx, swap); err != nil {
			return err
		}

		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeSwapCompleted,
			"swap", models.SeverityInfo,
			&fromLocked.ID, nil, &swap.ID,
			fmt.Sprintf("swap %s to %s completed", fromLocked.Name, toLocked.Name),
			models.JSONMap{
				"to_entity_id": toLocked.ID,
				"downtime_ms":  downtime,
			},
			req.InitiatedBy))
	})
	if err != nil {
		e.sealFailure(ctx, swap, err)
		return nil, err
	}

	swapsTotal.WithLabelValues("completed").Inc()
	swapDowntime.Observe(float64(swap.DowntimeMilliseconds))

	env := events.NewEnvelope(events.TypeSwapCompleted, models.JSONMap{
		"from_entity_id": swap.FromEntityID,
		"to_entity_id":   swap.ToEntityID,
		"success":        true,
		"downtime_ms":    swap.DowntimeMilliseconds,
	})
	env.EntityID = swap.FromEntityID
	env.SwapID = swap.ID
	e.publisher.Publish(ctx, env)

	e.logger.Info("Swap completed",
		zap.String("swap_id", swap.ID),
		zap.String("from_entity_id", swap.FromEntityID),
		zap.String("to_entity_id", swap.ToEntityID),
		zap.Int64("downtime_ms", swap.DowntimeMilliseconds))
	return swap, nil
}

func swapType(req *models.SwapRequest) models.SwapType {
	if req.SwapType == "" {
		return models.SwapManual
	}
	return req.SwapType
}

// lockEntityPair locks both entity rows in ascending id order so
// concurrent swaps over the same pair cannot deadlock.
func lockEntityPair(ctx context.Context, tx storage.Store, fromID, toID string) (from, to *models.Entity, err error) {
	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := tx.GetEntityForUpdate(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := tx.GetEntityForUpdate(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}
	if first.ID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

// activateTargetDeployment makes the target entity active in env. An
// existing active deployment is reused untouched; otherwise the most
// recent inactive one is reactivated, or a fresh one is created
// snapshotting the live config. Rolled-back rows are never reactivated
// here, so exactly one deployment stays active per environment.
func (e *Engine) activateTargetDeployment(ctx context.Context, tx storage.Store, to *models.Entity, env models.Environment, now time.Time, actor string) (*models.Deployment, error) {
	active, err := tx.ActiveDeploymentsForUpdate(ctx, to.ID, env)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return active[0], nil
	}

	inactive, _, err := tx.ListDeployments(ctx, &models.DeploymentFilter{
		EntityID:    to.ID,
		Environment: string(env),
		Status:      string(models.DeploymentInactive),
		Pagination:  models.Pagination{Page: 1, PageSize: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(inactive) > 0 {
		toDep := inactive[0]
		toDep.Status = models.DeploymentActive
		toDep.UpdatedAt = now
		if err := tx.UpdateDeployment(ctx, toDep); err != nil {
			return nil, err
		}
		return toDep, nil
	}

	toDep := &models.Deployment{
		ID:                 uuid.NewString(),
		EntityID:           to.ID,
		Version:            to.Version,
		Env:                env,
		ConfigSnapshot:     to.Config.Clone(),
		ParametersSnapshot: to.Parameters.Clone(),
		Status:             models.DeploymentActive,
		DeployedAt:         now,
		DeployedBy:         actor,
		DeploymentMethod:   "hotswap",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.CreateDeployment(ctx, toDep); err != nil {
		return nil, err
	}
	return toDep, nil
}

// sealFailure marks the swap row failed after its transaction rolled
// back, and emits the failure event.
func (e *Engine) sealFailure(ctx context.Context, swap *models.Swap, cause error) {
	swapsTotal.WithLabelValues("failed").Inc()

	now := time.Now().UTC()
	swap.Status = models.SwapFailed
	swap.Success = false
	swap.ErrorMessage = cause.Error()
	swap.CompletedAt = &now
	swap.UpdatedAt = now
	if err := e.store.UpdateSwap(ctx, swap); err != nil {
		e.logger.Error("Failed to seal failed swap", zap.String("swap_id", swap.ID), zap.Error(err))
	}

	audit := events.NewAuditEvent(events.TypeSwapFailed, "swap",
		models.SeverityError, &swap.FromEntityID, nil, &swap.ID,
		fmt.Sprintf("swap %s failed", swap.ID),
		models.JSONMap{"to_entity_id": swap.ToEntityID, "error": cause.Error()},
		swap.InitiatedBy)
	if err := e.store.CreateEvent(ctx, audit); err != nil {
		e.logger.Warn("Failed to record swap failure event", zap.Error(err))
	}

	env := events.NewEnvelope(events.TypeSwapFailed, models.JSONMap{
		"from_entity_id": swap.FromEntityID,
		"to_entity_id":   swap.ToEntityID,
		"success":        false,
		"error":          cause.Error(),
	})
	env.EntityID = swap.FromEntityID
	env.SwapID = swap.ID
	e.publisher.Publish(ctx, env)

	e.logger.Error("Swap failed",
		zap.String("swap_id", swap.ID),
		zap.Error(cause))
}

// Rollback reverses a completed swap: the target entity's deployments go
// inactive and the deployments the forward swap deactivated are
// reactivated.
func (e *Engine) Rollback(ctx context.Context, swapID string, req *models.SwapRollbackRequest) (*models.Swap, error) {
	swap, err := e.store.GetSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Status != models.SwapCompleted || swap.RolledBackAt != nil {
		return nil, fmt.Errorf("swap %s has status %s: %w", swap.ID, swap.Status, ErrInvalidState)
	}

	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		fromLocked, toLocked, err := lockEntityPair(ctx, tx, swap.FromEntityID, swap.ToEntityID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		toActive, err := tx.ActiveDeploymentsForUpdate(ctx, toLocked.ID, swap.TargetEnvironment)
		if err != nil {
			return err
		}
		for _, d := range toActive {
			d.Status = models.DeploymentInactive
			d.UpdatedAt = now
			if err := tx.UpdateDeployment(ctx, d); err != nil {
				return err
			}
		}

		restored, err := e.loadAffected(ctx, tx, swap)
		if err != nil {
			return err
		}
		// Reverse chronological order of deployed_at.
		sort.Slice(restored, func(i, j int) bool {
			return restored[i].DeployedAt.After(restored[j].DeployedAt)
		})
		for _, d := range restored {
			if d.Status == models.DeploymentActive {
				continue
			}
			d.Status = models.DeploymentActive
			d.UpdatedAt = now
			if err := tx.UpdateDeployment(ctx, d); err != nil {
				return err
			}
		}

		fromLocked.Status = models.EntityStatusActive
		fromLocked.UpdatedAt = now
		fromLocked.UpdatedBy = req.RolledBackBy
		if err := tx.UpdateEntity(ctx, fromLocked); err != nil {
			return err
		}
		toLocked.Status = models.EntityStatusInactive
		toLocked.UpdatedAt = now
		toLocked.UpdatedBy = req.RolledBackBy
		if err := tx.UpdateEntity(ctx, toLocked); err != nil {
			return err
		}

		swap.Status = models.SwapRolledBack
		swap.RolledBackAt = &now
		swap.RolledBackBy = req.RolledBackBy
		swap.RollbackReason = req.Reason
		swap.UpdatedAt = now
		if err := tx.UpdateSwap(ctx, swap); err != nil {
			return err
		}

		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeSwapRolledBack,
			"swap", models.SeverityWarning,
			&fromLocked.ID, nil, &swap.ID,
			fmt.Sprintf("swap %s rolled back", swap.ID),
			models.JSONMap{"reason": req.Reason},
			req.RolledBackBy))
	})
	if err != nil {
		return nil, err
	}

	swapsTotal.WithLabelValues("rolled_back").Inc()

	env := events.NewEnvelope(events.TypeSwapRolledBack, models.JSONMap{
		"from_entity_id": swap.FromEntityID,
		"to_entity_id":   swap.ToEntityID,
		"reason":         req.Reason,
	})
	env.EntityID = swap.FromEntityID
	env.SwapID = swap.ID
	e.publisher.Publish(ctx, env)

	e.logger.Info("Swap rolled back",
		zap.String("swap_id", swap.ID),
		zap.String("reason", req.Reason))
	return swap, nil
}

// loadAffected resolves the deployments the forward swap deactivated.
// Swaps recorded before the affected set existed fall back to the source
// entity's inactive deployments in scope.
func (e *Engine) loadAffected(ctx context.Context, tx storage.Store, swap *models.Swap) ([]*models.Deployment, error) {
	if len(swap.AffectedDeployments) > 0 {
		out := make([]*models.Deployment, 0, len(swap.AffectedDeployments))
		for _, id := range swap.AffectedDeployments {
			d, err := tx.GetDeployment(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	}

	all, _, err := tx.ListDeployments(ctx, &models.DeploymentFilter{
		EntityID:    swap.FromEntityID,
		Environment: string(swap.TargetEnvironment),
		Status:      string(models.DeploymentInactive),
		Pagination:  models.Pagination{Page: 1, PageSize: models.DefaultPageSizeMax},
	})
	return all, err
}

// Get returns a swap by id.
func (e *Engine) Get(ctx context.Context, id string) (*models.Swap, error) {
	return e.store.GetSwap(ctx, id)
}

// List returns swaps matching the filter, newest first.
func (e *Engine) List(ctx context.Context, filter *models.SwapFilter) (*models.SwapList, error) {
	items, total, err := e.store.ListSwaps(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.SwapList{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}
