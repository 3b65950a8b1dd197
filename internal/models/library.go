// Package models contains the domain model for the strategy library
// control plane: entities, deployments, swaps, events and dependencies.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EntityType classifies the versioned artifact held by the registry.
type EntityType string

const (
	EntityTypeStrategy    EntityType = "strategy"
	EntityTypePipeline    EntityType = "pipeline"
	EntityTypeModel       EntityType = "model"
	EntityTypeFeatureSet  EntityType = "feature_set"
	EntityTypeTransformer EntityType = "transformer"
	EntityTypeValidator   EntityType = "validator"
	EntityTypeOptimizer   EntityType = "optimizer"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeStrategy, EntityTypePipeline, EntityTypeModel,
		EntityTypeFeatureSet, EntityTypeTransformer, EntityTypeValidator,
		EntityTypeOptimizer:
		return true
	}
	return false
}

// EntityStatus is the lifecycle status of an entity.
type EntityStatus string

const (
	EntityStatusRegistered EntityStatus = "registered"
	EntityStatusValidated  EntityStatus = "validated"
	EntityStatusDeployed   EntityStatus = "deployed"
	EntityStatusActive     EntityStatus = "active"
	EntityStatusInactive   EntityStatus = "inactive"
	EntityStatusDeprecated EntityStatus = "deprecated"
	EntityStatusFailed     EntityStatus = "failed"
)

// entityTransitions is the permitted status graph for API-driven updates.
// Deployment and swap engines mutate status directly inside their
// transactions and are not constrained by this map.
var entityTransitions = map[EntityStatus][]EntityStatus{
	EntityStatusRegistered: {EntityStatusValidated, EntityStatusDeployed, EntityStatusFailed},
	EntityStatusValidated:  {EntityStatusDeployed, EntityStatusFailed},
	EntityStatusDeployed:   {EntityStatusActive, EntityStatusInactive, EntityStatusDeprecated},
	EntityStatusActive:     {EntityStatusInactive, EntityStatusDeprecated},
	EntityStatusInactive:   {EntityStatusActive, EntityStatusDeprecated},
}

// CanTransition reports whether an entity may move from one status to
// another through the API. Self-transitions are always permitted.
func CanTransition(from, to EntityStatus) bool {
	if from == to {
		return true
	}
	for _, next := range entityTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HealthStatus is the reported health of an entity.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// Environment is a named deployment target.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTesting:
		return true
	}
	return false
}

// DeploymentStatus is the lifecycle status of a deployment row.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentDeploying  DeploymentStatus = "deploying"
	DeploymentActive     DeploymentStatus = "active"
	DeploymentInactive   DeploymentStatus = "inactive"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
)

// SwapType records why a swap was initiated.
type SwapType string

const (
	SwapManual    SwapType = "manual"
	SwapScheduled SwapType = "scheduled"
	SwapAutomatic SwapType = "automatic"
	SwapEmergency SwapType = "emergency"
	SwapRollback  SwapType = "rollback"
)

// SwapStatus is the lifecycle status of a swap row.
type SwapStatus string

const (
	SwapInitiated  SwapStatus = "initiated"
	SwapValidating SwapStatus = "validating"
	SwapInProgress SwapStatus = "in_progress"
	SwapCompleted  SwapStatus = "completed"
	SwapFailed     SwapStatus = "failed"
	SwapRolledBack SwapStatus = "rolled_back"
)

// DependencyType classifies an inter-entity dependency edge.
type DependencyType string

const (
	DependencyRequired      DependencyType = "required"
	DependencyOptional      DependencyType = "optional"
	DependencyRecommended   DependencyType = "recommended"
	DependencyConflictsWith DependencyType = "conflicts_with"
)

// DependencyStatus is the status of a dependency edge.
type DependencyStatus string

const (
	DependencyActive   DependencyStatus = "active"
	DependencyInactive DependencyStatus = "inactive"
	DependencyBroken   DependencyStatus = "broken"
)

// Severity is the severity of an audit event row.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// JSONMap is an opaque nested JSON object stored in a JSONB column.
// The registry validates only that payloads are objects, never their shape.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Clone returns a deep copy of the map via a JSON round trip.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out JSONMap
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Entity is a versioned trading artifact tracked by the registry.
type Entity struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Type        EntityType `db:"entity_type" json:"type"`
	Category    string     `db:"category" json:"category,omitempty"`
	Description string     `db:"description" json:"description,omitempty"`
	Version     string     `db:"version" json:"version"`
	Author      string     `db:"author" json:"author,omitempty"`

	Tags         pq.StringArray `db:"tags" json:"tags,omitempty"`
	Config       JSONMap        `db:"config" json:"config,omitempty"`
	Parameters   JSONMap        `db:"parameters" json:"parameters,omitempty"`
	Requirements pq.StringArray `db:"requirements" json:"requirements,omitempty"`

	Status       EntityStatus `db:"status" json:"status"`
	HealthStatus HealthStatus `db:"health_status" json:"health_status"`

	DeployedAt       *time.Time `db:"deployed_at" json:"deployed_at,omitempty"`
	DeployedBy       string     `db:"deployed_by" json:"deployed_by,omitempty"`
	DeploymentConfig JSONMap    `db:"deployment_config" json:"deployment_config,omitempty"`

	// Resource hints for the serving side; opaque to the registry.
	CPURequest    string `db:"cpu_request" json:"cpu_request,omitempty"`
	MemoryRequest string `db:"memory_request" json:"memory_request,omitempty"`
	GPURequest    string `db:"gpu_request" json:"gpu_request,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updated_by,omitempty"`

	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy string     `db:"deleted_by" json:"deleted_by,omitempty"`
}

// Deleted reports whether the entity has been soft-deleted.
func (e *Entity) Deleted() bool {
	return e.DeletedAt != nil
}

// Deployment is the binding of an entity, with a snapshotted config, to an
// environment. config_snapshot and parameters_snapshot are immutable after
// insert; the entity's live config may drift without affecting them.
type Deployment struct {
	ID       string      `db:"id" json:"id"`
	EntityID string      `db:"entity_id" json:"entity_id"`
	Version  string      `db:"version" json:"version"`
	Env      Environment `db:"environment" json:"environment"`

	ConfigSnapshot     JSONMap `db:"config_snapshot" json:"config_snapshot,omitempty"`
	ParametersSnapshot JSONMap `db:"parameters_snapshot" json:"parameters_snapshot,omitempty"`

	Status           DeploymentStatus `db:"status" json:"status"`
	DeployedAt       time.Time        `db:"deployed_at" json:"deployed_at"`
	DeployedBy       string           `db:"deployed_by" json:"deployed_by,omitempty"`
	DeploymentMethod string           `db:"deployment_method" json:"deployment_method,omitempty"`

	RolledBackAt         *time.Time `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
	RolledBackBy         string     `db:"rolled_back_by" json:"rolled_back_by,omitempty"`
	RollbackReason       string     `db:"rollback_reason" json:"rollback_reason,omitempty"`
	PreviousDeploymentID *string    `db:"previous_deployment_id" json:"previous_deployment_id,omitempty"`

	ValidationResults *ValidationResult `db:"validation_results" json:"validation_results,omitempty"`
	ErrorLogs         pq.StringArray    `db:"error_logs" json:"error_logs,omitempty"`
	DurationSeconds   float64           `db:"duration_seconds" json:"duration_seconds"`

	HealthChecks    JSONMap    `db:"health_checks" json:"health_checks,omitempty"`
	LastHealthCheck *time.Time `db:"last_health_check" json:"last_health_check,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Swap is an atomic replacement of one entity's active deployments by
// another entity's deployments across one or all environments.
//
// DowntimeMilliseconds is the wall-clock interval between the first
// mutation of the swap transaction and its commit, measured inside the
// service. It is not the user-visible downtime of downstream traffic.
type Swap struct {
	ID           string `db:"id" json:"id"`
	FromEntityID string `db:"from_entity_id" json:"from_entity_id"`
	ToEntityID   string `db:"to_entity_id" json:"to_entity_id"`

	FromDeploymentID *string `db:"from_deployment_id" json:"from_deployment_id,omitempty"`
	ToDeploymentID   *string `db:"to_deployment_id" json:"to_deployment_id,omitempty"`

	SwapType SwapType   `db:"swap_type" json:"swap_type"`
	Status   SwapStatus `db:"status" json:"status"`
	Reason   string     `db:"reason" json:"reason,omitempty"`

	InitiatedBy string     `db:"initiated_by" json:"initiated_by"`
	InitiatedAt time.Time  `db:"initiated_at" json:"initiated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	DurationSeconds      float64 `db:"duration_seconds" json:"duration_seconds"`
	DowntimeMilliseconds int64   `db:"downtime_milliseconds" json:"downtime_milliseconds"`

	Success      bool   `db:"success" json:"success"`
	ErrorMessage string `db:"error_message" json:"error_message,omitempty"`

	ValidationResults *SwapValidation `db:"validation_results" json:"validation_results,omitempty"`

	// AffectedDeployments records the deployment ids the forward swap
	// deactivated, so rollback reactivation is deterministic.
	AffectedDeployments pq.StringArray `db:"affected_deployments" json:"affected_deployments,omitempty"`

	RolledBackAt   *time.Time `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
	RolledBackBy   string     `db:"rolled_back_by" json:"rolled_back_by,omitempty"`
	RollbackReason string     `db:"rollback_reason" json:"rollback_reason,omitempty"`

	TargetEnvironment Environment `db:"target_environment" json:"target_environment,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Event is an append-only audit row recorded on every state transition.
type Event struct {
	ID            string   `db:"id" json:"id"`
	EventType     string   `db:"event_type" json:"event_type"`
	EventCategory string   `db:"event_category" json:"event_category"`
	Severity      Severity `db:"severity" json:"severity"`

	EntityID     *string `db:"entity_id" json:"entity_id,omitempty"`
	DeploymentID *string `db:"deployment_id" json:"deployment_id,omitempty"`
	SwapID       *string `db:"swap_id" json:"swap_id,omitempty"`

	Message string  `db:"message" json:"message"`
	Details JSONMap `db:"details" json:"details,omitempty"`

	UserID     string    `db:"user_id" json:"user_id,omitempty"`
	Source     string    `db:"source" json:"source"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// Dependency is a directed relationship between two entities.
type Dependency struct {
	ID                string           `db:"id" json:"id"`
	EntityID          string           `db:"entity_id" json:"entity_id"`
	DependsOnEntityID string           `db:"depends_on_entity_id" json:"depends_on_entity_id"`
	DependencyType    DependencyType   `db:"dependency_type" json:"dependency_type"`
	MinVersion        string           `db:"min_version" json:"min_version,omitempty"`
	MaxVersion        string           `db:"max_version" json:"max_version,omitempty"`
	Status            DependencyStatus `db:"status" json:"status"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// StrPtr returns a pointer to s, or nil when s is empty. Convenience for
// nullable reference columns.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
