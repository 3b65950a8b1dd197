// Package storage defines the persistence interfaces for the library
// service and their PostgreSQL implementation.
package storage

import (
	"context"
	"errors"

	"github.com/piwi3910/stratweave/internal/models"
)

// Sentinel errors returned by Store implementations. Callers match with
// errors.Is; the handler layer maps them to HTTP statuses.
var (
	ErrEntityNotFound     = errors.New("entity not found")
	ErrEntityExists       = errors.New("entity already exists")
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrSwapNotFound       = errors.New("swap not found")
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrDependencyExists   = errors.New("dependency already exists")
	ErrConflict           = errors.New("conflicting concurrent update")
)

// EntityStore persists entities. Reads exclude soft-deleted rows unless
// stated otherwise.
type EntityStore interface {
	CreateEntity(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	// GetEntityForUpdate loads the entity under a row lock. Only valid
	// inside WithTx.
	GetEntityForUpdate(ctx context.Context, id string) (*models.Entity, error)
	GetEntityByName(ctx context.Context, name string) (*models.Entity, error)
	UpdateEntity(ctx context.Context, e *models.Entity) error
	// SoftDeleteEntity stamps deleted_at/deleted_by without removing the row.
	SoftDeleteEntity(ctx context.Context, id, deletedBy string) error
	ListEntities(ctx context.Context, filter *models.EntityFilter) ([]*models.Entity, int, error)
}

// DeploymentStore persists deployments.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *models.Deployment) error
	GetDeployment(ctx context.Context, id string) (*models.Deployment, error)
	UpdateDeployment(ctx context.Context, d *models.Deployment) error
	ListDeployments(ctx context.Context, filter *models.DeploymentFilter) ([]*models.Deployment, int, error)
	// ActiveDeployments returns the active deployments of an entity,
	// optionally scoped to one environment (empty env means all).
	ActiveDeployments(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error)
	// ActiveDeploymentsForUpdate is ActiveDeployments under row locks.
	// Only valid inside WithTx.
	ActiveDeploymentsForUpdate(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error)
	// LatestInactiveDeployment returns the most recent non-active
	// deployment of the entity in env deployed strictly before the given
	// deployment, the rollback target.
	LatestInactiveDeployment(ctx context.Context, entityID string, env models.Environment, beforeID string) (*models.Deployment, error)
}

// SwapStore persists swaps.
type SwapStore interface {
	CreateSwap(ctx context.Context, s *models.Swap) error
	GetSwap(ctx context.Context, id string) (*models.Swap, error)
	UpdateSwap(ctx context.Context, s *models.Swap) error
	ListSwaps(ctx context.Context, filter *models.SwapFilter) ([]*models.Swap, int, error)
}

// EventStore persists the append-only audit log.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *models.Event) error
	ListEventsForEntity(ctx context.Context, entityID string, limit int) ([]*models.Event, error)
}

// DependencyStore persists the dependency graph.
type DependencyStore interface {
	CreateDependency(ctx context.Context, d *models.Dependency) error
	DeleteDependency(ctx context.Context, id string) error
	GetDependency(ctx context.Context, id string) (*models.Dependency, error)
	// Dependencies returns the outgoing edges of an entity.
	Dependencies(ctx context.Context, entityID string) ([]*models.Dependency, error)
	// Dependents returns the incoming edges of an entity.
	Dependents(ctx context.Context, entityID string) ([]*models.Dependency, error)
}

// Store is the full persistence surface. WithTx runs fn against a
// transactional view of the store and commits when fn returns nil;
// any error or panic rolls the transaction back.
type Store interface {
	EntityStore
	DeploymentStore
	SwapStore
	EventStore
	DependencyStore

	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
