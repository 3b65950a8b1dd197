package models

import "time"

// ErrorResponse is the wire shape of every error body.
// Detail is either a human-readable string or a structured object
// (validation failures carry the full check breakdown).
type ErrorResponse struct {
	Detail interface{} `json:"detail"`
}

// EntityCreateRequest is the payload for POST /entities.
type EntityCreateRequest struct {
	Name        string     `json:"name" binding:"required"`
	Type        EntityType `json:"type" binding:"required"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Version     string     `json:"version" binding:"required"`
	Author      string     `json:"author"`

	Tags         []string `json:"tags"`
	Config       JSONMap  `json:"config"`
	Parameters   JSONMap  `json:"parameters"`
	Requirements []string `json:"requirements"`

	CPURequest    string `json:"cpu_request"`
	MemoryRequest string `json:"memory_request"`
	GPURequest    string `json:"gpu_request"`

	CreatedBy string `json:"created_by"`
}

// EntityUpdateRequest is the payload for PUT /entities/{id}. Only fields
// present in the payload are applied; pointer fields distinguish "absent"
// from "set to zero value".
type EntityUpdateRequest struct {
	Name        *string       `json:"name,omitempty"`
	Category    *string       `json:"category,omitempty"`
	Description *string       `json:"description,omitempty"`
	Version     *string       `json:"version,omitempty"`
	Author      *string       `json:"author,omitempty"`
	Status      *EntityStatus `json:"status,omitempty"`
	Health      *HealthStatus `json:"health_status,omitempty"`

	Tags         *[]string `json:"tags,omitempty"`
	Config       JSONMap   `json:"config,omitempty"`
	Parameters   JSONMap   `json:"parameters,omitempty"`
	Requirements *[]string `json:"requirements,omitempty"`

	CPURequest    *string `json:"cpu_request,omitempty"`
	MemoryRequest *string `json:"memory_request,omitempty"`
	GPURequest    *string `json:"gpu_request,omitempty"`

	UpdatedBy string `json:"updated_by,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (r *EntityUpdateRequest) Empty() bool {
	return r.Name == nil && r.Category == nil && r.Description == nil &&
		r.Version == nil && r.Author == nil && r.Status == nil &&
		r.Health == nil && r.Tags == nil && r.Config == nil &&
		r.Parameters == nil && r.Requirements == nil &&
		r.CPURequest == nil && r.MemoryRequest == nil && r.GPURequest == nil
}

// EntityList is the paginated response for entity list operations.
// Total is counted before limit/offset.
type EntityList struct {
	Items    []*Entity `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// DeploymentCreateRequest is the payload for POST /deployments.
type DeploymentCreateRequest struct {
	EntityID    string      `json:"entity_id" binding:"required"`
	Environment Environment `json:"environment" binding:"required"`
	DeployedBy  string      `json:"deployed_by" binding:"required"`

	// Optional overrides; when nil the entity's live config/parameters
	// are snapshotted instead.
	ConfigOverride     JSONMap `json:"config_override,omitempty"`
	ParametersOverride JSONMap `json:"parameters_override,omitempty"`

	DeploymentMethod string `json:"deployment_method,omitempty"`
}

// DeploymentList is the paginated response for deployment list operations.
type DeploymentList struct {
	Items    []*Deployment `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// DeploymentRollbackRequest is the payload for
// POST /deployments/{id}/rollback.
type DeploymentRollbackRequest struct {
	Reason       string `json:"reason" binding:"required"`
	RolledBackBy string `json:"rolled_back_by" binding:"required"`

	// TargetDeploymentID optionally names the deployment to roll back to.
	// When empty the most recent previously-active deployment of the same
	// entity and environment is selected.
	TargetDeploymentID string `json:"target_deployment_id,omitempty"`
}

// SwapRequest is the payload for POST /swaps.
type SwapRequest struct {
	FromEntityID string `json:"from_entity_id" binding:"required"`
	ToEntityID   string `json:"to_entity_id" binding:"required"`
	Reason       string `json:"reason"`
	InitiatedBy  string `json:"initiated_by" binding:"required"`

	SwapType     SwapType `json:"swap_type,omitempty"`
	ValidateOnly bool     `json:"validate_only,omitempty"`

	// TargetEnvironment scopes the swap to one environment. Empty means
	// all environments with an active source deployment.
	TargetEnvironment Environment `json:"target_environment,omitempty"`
}

// SwapRollbackRequest is the payload for POST /swaps/{id}/rollback.
type SwapRollbackRequest struct {
	Reason       string `json:"reason" binding:"required"`
	RolledBackBy string `json:"rolled_back_by" binding:"required"`
}

// SwapList is the paginated response for swap list operations.
type SwapList struct {
	Items    []*Swap `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// DependencyCreateRequest is the payload for
// POST /entities/{id}/dependencies.
type DependencyCreateRequest struct {
	DependsOnEntityID string         `json:"depends_on_entity_id" binding:"required"`
	DependencyType    DependencyType `json:"dependency_type,omitempty"`
	MinVersion        string         `json:"min_version,omitempty"`
	MaxVersion        string         `json:"max_version,omitempty"`
}

// DependencyInfo is one edge of the dependency graph joined with the
// referenced entity, as returned by GET /entities/{id}/dependencies.
type DependencyInfo struct {
	DependencyID   string         `json:"dependency_id"`
	Entity         *Entity        `json:"entity"`
	DependencyType DependencyType `json:"dependency_type"`
	MinVersion     string         `json:"min_version,omitempty"`
	MaxVersion     string         `json:"max_version,omitempty"`
}

// HealthDetail is the body of GET /health/detailed.
type HealthDetail struct {
	Status            string    `json:"status"`
	Store             bool      `json:"store"`
	Bus               bool      `json:"bus"`
	PublisherDegraded bool      `json:"publisher_degraded"`
	Timestamp         time.Time `json:"timestamp"`
	Version           string    `json:"version,omitempty"`
}
