// Package validation implements the pre-deployment, post-deployment and
// swap compatibility checks. The engine is pure: it inspects loaded rows
// and produces structured results, never touching the store.
package validation

import (
	"fmt"
	"sort"

	"github.com/piwi3910/stratweave/internal/models"
)

// Error carries a failed validation result across the service boundary.
// The handler layer maps it to a 400 response with the full check
// breakdown.
type Error struct {
	Result *models.ValidationResult
}

func (e *Error) Error() string {
	if e.Result == nil || len(e.Result.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Result.Errors[0]
}

// NewError wraps a failed result.
func NewError(result *models.ValidationResult) *Error {
	return &Error{Result: result}
}

// Estimated per-environment cost of a hot swap, used for the dry-run
// downtime estimate. The real downtime is measured inside the swap
// transaction.
const (
	baseSwapDowntimeMS  = 100
	perDeploymentSwapMS = 50
)

// deployableStatuses are the entity statuses eligible for deployment.
var deployableStatuses = map[models.EntityStatus]bool{
	models.EntityStatusRegistered: true,
	models.EntityStatusValidated:  true,
	models.EntityStatusDeployed:   true,
	models.EntityStatusActive:     true,
}

// swapTargetStatuses are the entity statuses eligible to receive a swap.
var swapTargetStatuses = map[models.EntityStatus]bool{
	models.EntityStatusRegistered: true,
	models.EntityStatusValidated:  true,
	models.EntityStatusDeployed:   true,
	models.EntityStatusActive:     true,
}

// PreDeployment validates an entity ahead of a deployment into env.
// activeInEnv holds the entity's current active deployments in that
// environment; a pre-existing one is a warning, not an error, because the
// deployment flow supersedes it.
func PreDeployment(entity *models.Entity, env models.Environment, activeInEnv []*models.Deployment) *models.ValidationResult {
	result := models.NewValidationResult()

	if deployableStatuses[entity.Status] {
		result.AddPass("entity_status")
	} else {
		result.AddError("entity_status",
			fmt.Sprintf("entity status %q is not deployable", entity.Status))
	}

	if len(activeInEnv) > 0 {
		result.AddWarning("existing_deployment",
			fmt.Sprintf("entity already has an active deployment in %s; it will be superseded", env))
	} else {
		result.AddPass("existing_deployment")
	}

	if entity.HealthStatus == models.HealthUnhealthy {
		result.AddError("health_status", "entity health is unhealthy")
	} else {
		result.AddPass("health_status")
	}

	if entity.Version == "" {
		result.AddError("version", "entity version is empty")
	} else {
		result.AddPass("version")
	}

	return result
}

// PostDeployment validates the freshly inserted deployment row. Results
// are persisted on the row; failures here do not block the transaction in
// the nominal path.
func PostDeployment(d *models.Deployment) *models.ValidationResult {
	result := models.NewValidationResult()

	if d == nil {
		result.AddError("deployment_exists", "deployment row is missing")
		return result
	}
	result.AddPass("deployment_exists")

	if len(d.ConfigSnapshot) == 0 {
		result.AddWarning("config_snapshot", "deployment has no config snapshot")
	} else {
		result.AddPass("config_snapshot")
	}

	if d.Status == models.DeploymentActive || d.Status == models.DeploymentDeploying {
		result.AddPass("deployment_status")
	} else {
		result.AddError("deployment_status",
			fmt.Sprintf("deployment status %q is not active or deploying", d.Status))
	}

	return result
}

// SwapCompatibility validates a hot swap from one entity to another.
// fromActive holds the source entity's active deployments in scope.
// Compatible is true only when the checks pass with zero warnings.
func SwapCompatibility(from, to *models.Entity, fromActive []*models.Deployment) *models.SwapValidation {
	result := models.NewValidationResult()

	if from.Deleted() {
		result.AddError("source_exists", "source entity is deleted")
	} else {
		result.AddPass("source_exists")
	}
	if to.Deleted() {
		result.AddError("target_exists", "target entity is deleted")
	} else {
		result.AddPass("target_exists")
	}

	if from.Type != to.Type {
		result.AddError("type_match",
			fmt.Sprintf("entity type mismatch: cannot swap %s to %s", from.Type, to.Type))
	} else {
		result.AddPass("type_match")
	}

	if from.Status == models.EntityStatusDeployed || from.Status == models.EntityStatusActive {
		result.AddPass("source_status")
	} else {
		result.AddError("source_status",
			fmt.Sprintf("source entity status %q is not deployed or active", from.Status))
	}

	if swapTargetStatuses[to.Status] {
		result.AddPass("target_status")
	} else {
		result.AddError("target_status",
			fmt.Sprintf("target entity status %q is not eligible for swap", to.Status))
	}

	if to.HealthStatus == models.HealthUnhealthy {
		result.AddError("target_health", "target entity health is unhealthy")
	} else {
		result.AddPass("target_health")
	}
	if from.HealthStatus == models.HealthUnhealthy {
		result.AddWarning("source_health", "source entity health is unhealthy")
	} else {
		result.AddPass("source_health")
	}

	if len(fromActive) == 0 {
		result.AddError("active_deployments", "source entity has no active deployments")
	} else {
		result.AddPass("active_deployments")
	}

	if missing := missingConfigKeys(from.Config, to.Config); len(missing) > 0 {
		result.AddWarning("config_compatibility",
			fmt.Sprintf("target config is missing keys present in source config: %v", missing))
	} else {
		result.AddPass("config_compatibility")
	}

	return &models.SwapValidation{
		ValidationResult:    *result,
		Compatible:          result.Passed && len(result.Warnings) == 0,
		EstimatedDowntimeMS: int64(baseSwapDowntimeMS + perDeploymentSwapMS*len(fromActive)),
	}
}

// missingConfigKeys returns the top-level keys of from that are absent in
// to, sorted for stable messages.
func missingConfigKeys(from, to models.JSONMap) []string {
	var missing []string
	for key := range from {
		if _, ok := to[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
