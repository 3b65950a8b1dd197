// Package deployments implements the deployment manager: creating
// deployments into environments and rolling them back.
package deployments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/validation"
)

// ErrNoRollbackTarget is returned when no previous deployment exists to
// roll back to.
var ErrNoRollbackTarget = errors.New("no rollback target")

// ErrInvalidTransition is returned when rolling back a deployment that
// is not currently active.
var ErrInvalidTransition = errors.New("deployment is not active")

// Manager orchestrates deployment creation and rollback.
type Manager struct {
	store     storage.Store
	publisher events.Publisher
	logger    *zap.Logger
}

// NewManager creates the deployment manager.
func NewManager(store storage.Store, publisher events.Publisher, logger *zap.Logger) *Manager {
	return &Manager{store: store, publisher: publisher, logger: logger}
}

// Deploy creates a new active deployment of an entity into an environment,
// superseding any current active deployment there. The entity's config and
// parameters are snapshotted at this instant unless overrides are given.
func (m *Manager) Deploy(ctx context.Context, req *models.DeploymentCreateRequest) (*models.Deployment, error) {
	if !req.Environment.Valid() {
		result := models.NewValidationResult()
		result.AddError("environment", fmt.Sprintf("unknown environment %q", req.Environment))
		return nil, validation.NewError(result)
	}

	entity, err := m.store.GetEntity(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	activeInEnv, err := m.store.ActiveDeployments(ctx, req.EntityID, req.Environment)
	if err != nil {
		return nil, err
	}

	preResult := validation.PreDeployment(entity, req.Environment, activeInEnv)
	if !preResult.Passed {
		return nil, validation.NewError(preResult)
	}

	method := req.DeploymentMethod
	if method == "" {
		method = "api"
	}

	start := time.Now()
	var deployment *models.Deployment

	err = m.store.WithTx(ctx, func(tx storage.Store) error {
		locked, err := tx.GetEntityForUpdate(ctx, req.EntityID)
		if err != nil {
			return err
		}

		active, err := tx.ActiveDeploymentsForUpdate(ctx, req.EntityID, req.Environment)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, d := range active {
			d.Status = models.DeploymentInactive
			d.UpdatedAt = now
			if err := tx.UpdateDeployment(ctx, d); err != nil {
				return err
			}
		}

		configSnapshot := req.ConfigOverride
		if configSnapshot == nil {
			configSnapshot = locked.Config.Clone()
		}
		parametersSnapshot := req.ParametersOverride
		if parametersSnapshot == nil {
			parametersSnapshot = locked.Parameters.Clone()
		}

		deployment = &models.Deployment{
			ID:                 uuid.NewString(),
			EntityID:           locked.ID,
			Version:            locked.Version,
			Env:                req.Environment,
			ConfigSnapshot:     configSnapshot,
			ParametersSnapshot: parametersSnapshot,
			Status:             models.DeploymentActive,
			DeployedAt:         now,
			DeployedBy:         req.DeployedBy,
			DeploymentMethod:   method,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.CreateDeployment(ctx, deployment); err != nil {
			return err
		}

		locked.Status = models.EntityStatusDeployed
		locked.DeployedAt = &now
		locked.DeployedBy = req.DeployedBy
		locked.DeploymentConfig = configSnapshot
		locked.UpdatedAt = now
		locked.UpdatedBy = req.DeployedBy
		if err := tx.UpdateEntity(ctx, locked); err != nil {
			return err
		}

		postResult := validation.PostDeployment(deployment)
		deployment.ValidationResults = mergeResults(preResult, postResult)
		deployment.DurationSeconds = time.Since(start).Seconds()
		if err := tx.UpdateDeployment(ctx, deployment); err != nil {
			return err
		}

		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeDeploymentCompleted,
			"deployment", models.SeverityInfo,
			&locked.ID, &deployment.ID, nil,
			fmt.Sprintf("entity %s deployed to %s", locked.Name, req.Environment),
			models.JSONMap{"environment": string(req.Environment), "version": locked.Version},
			req.DeployedBy))
	})
	if err != nil {
		m.recordFailure(ctx, req, err)
		return nil, err
	}

	deploymentsTotal.WithLabelValues(string(req.Environment), "completed").Inc()

	env := events.NewEnvelope(events.TypeDeploymentCompleted, models.JSONMap{
		"environment": string(req.Environment),
		"version":     deployment.Version,
	})
	env.EntityID = req.EntityID
	env.DeploymentID = deployment.ID
	m.publisher.Publish(ctx, env)

	m.logger.Info("Deployment completed",
		zap.String("entity_id", req.EntityID),
		zap.String("deployment_id", deployment.ID),
		zap.String("environment", string(req.Environment)),
		zap.Float64("duration_seconds", deployment.DurationSeconds))
	return deployment, nil
}

// recordFailure logs a failed deployment transaction. The audit row is
// written outside the rolled-back transaction, best effort.
func (m *Manager) recordFailure(ctx context.Context, req *models.DeploymentCreateRequest, cause error) {
	deploymentsTotal.WithLabelValues(string(req.Environment), "failed").Inc()

	audit := events.NewAuditEvent(events.TypeDeploymentFailed, "deployment",
		models.SeverityError, &req.EntityID, nil, nil,
		fmt.Sprintf("deployment to %s failed", req.Environment),
		models.JSONMap{"environment": string(req.Environment), "error": cause.Error()},
		req.DeployedBy)
	if err := m.store.CreateEvent(ctx, audit); err != nil {
		m.logger.Warn("Failed to record deployment failure event", zap.Error(err))
	}

	env := events.NewEnvelope(events.TypeDeploymentFailed, models.JSONMap{
		"environment": string(req.Environment),
		"error":       cause.Error(),
	})
	env.EntityID = req.EntityID
	m.publisher.Publish(ctx, env)

	m.logger.Error("Deployment failed",
		zap.String("entity_id", req.EntityID),
		zap.String("environment", string(req.Environment)),
		zap.Error(cause))
}

// mergeResults folds the post-deployment checks into the pre-deployment
// result so the persisted record carries the full breakdown.
func mergeResults(pre, post *models.ValidationResult) *models.ValidationResult {
	merged := models.NewValidationResult()
	for _, r := range []*models.ValidationResult{pre, post} {
		for check, outcome := range r.Checks {
			merged.Checks[check] = outcome
		}
		merged.Errors = append(merged.Errors, r.Errors...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
	}
	merged.Passed = pre.Passed && post.Passed
	return merged
}

// Rollback deactivates the active deployment and reactivates its
// predecessor. The target is either caller-specified or the most recent
// superseded deployment of the same entity and environment. Only the
// currently active deployment of an environment can roll back; anything
// else would leave two actives behind.
func (m *Manager) Rollback(ctx context.Context, deploymentID string, req *models.DeploymentRollbackRequest) (*models.Deployment, error) {
	current, err := m.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.DeploymentActive {
		return nil, fmt.Errorf("deployment %s has status %s: %w",
			current.ID, current.Status, ErrInvalidTransition)
	}

	var target *models.Deployment
	if req.TargetDeploymentID != "" {
		target, err = m.store.GetDeployment(ctx, req.TargetDeploymentID)
		if err != nil {
			return nil, err
		}
		if target.EntityID != current.EntityID {
			return nil, fmt.Errorf("deployment %s belongs to a different entity: %w",
				target.ID, ErrNoRollbackTarget)
		}
	} else {
		target, err = m.store.LatestInactiveDeployment(ctx, current.EntityID, current.Env, current.ID)
		if err != nil {
			if errors.Is(err, storage.ErrDeploymentNotFound) {
				return nil, fmt.Errorf("deployment %s: %w", deploymentID, ErrNoRollbackTarget)
			}
			return nil, err
		}
	}

	err = m.store.WithTx(ctx, func(tx storage.Store) error {
		entity, err := tx.GetEntityForUpdate(ctx, current.EntityID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		current.Status = models.DeploymentRolledBack
		current.RolledBackAt = &now
		current.RolledBackBy = req.RolledBackBy
		current.RollbackReason = req.Reason
		current.PreviousDeploymentID = models.StrPtr(target.ID)
		current.UpdatedAt = now
		if err := tx.UpdateDeployment(ctx, current); err != nil {
			return err
		}

		target.Status = models.DeploymentActive
		target.UpdatedAt = now
		if err := tx.UpdateDeployment(ctx, target); err != nil {
			return err
		}

		entity.DeploymentConfig = target.ConfigSnapshot
		entity.DeployedAt = &target.DeployedAt
		entity.DeployedBy = target.DeployedBy
		entity.UpdatedAt = now
		entity.UpdatedBy = req.RolledBackBy
		if err := tx.UpdateEntity(ctx, entity); err != nil {
			return err
		}

		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeDeploymentRolledBack,
			"deployment", models.SeverityWarning,
			&current.EntityID, &current.ID, nil,
			fmt.Sprintf("deployment %s rolled back to %s", current.ID, target.ID),
			models.JSONMap{"reason": req.Reason, "target_deployment_id": target.ID},
			req.RolledBackBy))
	})
	if err != nil {
		return nil, err
	}

	deploymentsTotal.WithLabelValues(string(current.Env), "rolled_back").Inc()

	env := events.NewEnvelope(events.TypeDeploymentRolledBack, models.JSONMap{
		"reason":               req.Reason,
		"target_deployment_id": target.ID,
	})
	env.EntityID = current.EntityID
	env.DeploymentID = current.ID
	m.publisher.Publish(ctx, env)

	m.logger.Info("Deployment rolled back",
		zap.String("deployment_id", current.ID),
		zap.String("target_deployment_id", target.ID),
		zap.String("reason", req.Reason))
	return current, nil
}

// Get returns a deployment by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Deployment, error) {
	return m.store.GetDeployment(ctx, id)
}

// List returns deployments matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter *models.DeploymentFilter) (*models.DeploymentList, error) {
	items, total, err := m.store.ListDeployments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.DeploymentList{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}
