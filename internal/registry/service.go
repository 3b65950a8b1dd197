// Package registry implements the entity service: CRUD over versioned
// artifacts, status transition enforcement and the dependency graph.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/validation"
)

// ErrInvalidTransition is returned when an update requests a status move
// that is off the permitted graph.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrSelfDependency is returned when an entity is registered as its own
// dependency.
var ErrSelfDependency = errors.New("entity cannot depend on itself")

// Service is the entity registry.
type Service struct {
	store     storage.Store
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService creates the registry service.
func NewService(store storage.Store, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger}
}

// Create registers a new entity. Fails when a non-deleted entity with the
// same name exists.
func (s *Service) Create(ctx context.Context, req *models.EntityCreateRequest) (*models.Entity, error) {
	if !req.Type.Valid() {
		result := models.NewValidationResult()
		result.AddError("type", fmt.Sprintf("unknown entity type %q", req.Type))
		return nil, validation.NewError(result)
	}
	if req.Version == "" {
		result := models.NewValidationResult()
		result.AddError("version", "version must not be empty")
		return nil, validation.NewError(result)
	}

	now := time.Now().UTC()
	entity := &models.Entity{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Type:          req.Type,
		Category:      req.Category,
		Description:   req.Description,
		Version:       req.Version,
		Author:        req.Author,
		Tags:          pq.StringArray(req.Tags),
		Config:        req.Config,
		Parameters:    req.Parameters,
		Requirements:  pq.StringArray(req.Requirements),
		Status:        models.EntityStatusRegistered,
		HealthStatus:  models.HealthUnknown,
		CPURequest:    req.CPURequest,
		MemoryRequest: req.MemoryRequest,
		GPURequest:    req.GPURequest,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     req.CreatedBy,
		UpdatedBy:     req.CreatedBy,
	}

	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.CreateEntity(ctx, entity); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeEntityRegistered, "entity",
			models.SeverityInfo, &entity.ID, nil, nil,
			fmt.Sprintf("entity %s registered", entity.Name),
			models.JSONMap{"name": entity.Name, "type": string(entity.Type), "version": entity.Version},
			req.CreatedBy))
	})
	if err != nil {
		return nil, err
	}

	env := events.NewEnvelope(events.TypeEntityRegistered, models.JSONMap{
		"name":    entity.Name,
		"type":    string(entity.Type),
		"version": entity.Version,
	})
	env.EntityID = entity.ID
	s.publisher.Publish(ctx, env)

	s.logger.Info("Entity registered",
		zap.String("entity_id", entity.ID),
		zap.String("name", entity.Name),
		zap.String("type", string(entity.Type)))
	return entity, nil
}

// Get returns a single entity by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// List returns entities matching the filter, ordered by created_at
// descending.
func (s *Service) List(ctx context.Context, filter *models.EntityFilter) (*models.EntityList, error) {
	items, total, err := s.store.ListEntities(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.EntityList{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Update applies a partial update. Status changes must follow the
// permitted transition graph.
func (s *Service) Update(ctx context.Context, id string, req *models.EntityUpdateRequest) (*models.Entity, error) {
	var entity *models.Entity
	var changed []string

	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		entity, err = tx.GetEntityForUpdate(ctx, id)
		if err != nil {
			return err
		}

		changed = applyUpdate(entity, req)
		if req.Status != nil && *req.Status != entity.Status {
			if !models.CanTransition(entity.Status, *req.Status) {
				return fmt.Errorf("cannot move entity from %s to %s: %w",
					entity.Status, *req.Status, ErrInvalidTransition)
			}
			entity.Status = *req.Status
			changed = append(changed, "status")
		}
		if len(changed) == 0 {
			return nil
		}

		entity.UpdatedAt = time.Now().UTC()
		entity.UpdatedBy = req.UpdatedBy
		if err := tx.UpdateEntity(ctx, entity); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeEntityUpdated, "entity",
			models.SeverityInfo, &entity.ID, nil, nil,
			fmt.Sprintf("entity %s updated", entity.Name),
			models.JSONMap{"changed_fields": changed},
			req.UpdatedBy))
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		env := events.NewEnvelope(events.TypeEntityUpdated, models.JSONMap{
			"changed_fields": changed,
		})
		env.EntityID = entity.ID
		s.publisher.Publish(ctx, env)
	}
	return entity, nil
}

// applyUpdate copies the supplied fields onto the entity and returns the
// names of the fields that changed. Status is handled by the caller.
func applyUpdate(e *models.Entity, req *models.EntityUpdateRequest) []string {
	var changed []string

	if req.Name != nil && *req.Name != e.Name {
		e.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.Category != nil && *req.Category != e.Category {
		e.Category = *req.Category
		changed = append(changed, "category")
	}
	if req.Description != nil && *req.Description != e.Description {
		e.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Version != nil && *req.Version != e.Version {
		e.Version = *req.Version
		changed = append(changed, "version")
	}
	if req.Author != nil && *req.Author != e.Author {
		e.Author = *req.Author
		changed = append(changed, "author")
	}
	if req.Health != nil && *req.Health != e.HealthStatus {
		e.HealthStatus = *req.Health
		changed = append(changed, "health_status")
	}
	if req.Tags != nil {
		e.Tags = pq.StringArray(*req.Tags)
		changed = append(changed, "tags")
	}
	if req.Config != nil {
		e.Config = req.Config
		changed = append(changed, "config")
	}
	if req.Parameters != nil {
		e.Parameters = req.Parameters
		changed = append(changed, "parameters")
	}
	if req.Requirements != nil {
		e.Requirements = pq.StringArray(*req.Requirements)
		changed = append(changed, "requirements")
	}
	if req.CPURequest != nil && *req.CPURequest != e.CPURequest {
		e.CPURequest = *req.CPURequest
		changed = append(changed, "cpu_request")
	}
	if req.MemoryRequest != nil && *req.MemoryRequest != e.MemoryRequest {
		e.MemoryRequest = *req.MemoryRequest
		changed = append(changed, "memory_request")
	}
	if req.GPURequest != nil && *req.GPURequest != e.GPURequest {
		e.GPURequest = *req.GPURequest
		changed = append(changed, "gpu_request")
	}
	return changed
}

// Delete soft-deletes an entity. The row is retained for audit and
// foreign-key integrity.
func (s *Service) Delete(ctx context.Context, id, deletedBy string) error {
	var entity *models.Entity

	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		entity, err = tx.GetEntityForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDeleteEntity(ctx, id, deletedBy); err != nil {
			return err
		}
		return tx.CreateEvent(ctx, events.NewAuditEvent(events.TypeEntityDeleted, "entity",
			models.SeverityInfo, &id, nil, nil,
			fmt.Sprintf("entity %s deleted", entity.Name),
			models.JSONMap{"name": entity.Name},
			deletedBy))
	})
	if err != nil {
		return err
	}

	env := events.NewEnvelope(events.TypeEntityDeleted, models.JSONMap{
		"name": entity.Name,
	})
	env.EntityID = id
	s.publisher.Publish(ctx, env)
	return nil
}

// Events returns the audit trail of an entity, newest first.
func (s *Service) Events(ctx context.Context, entityID string, limit int) ([]*models.Event, error) {
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return s.store.ListEventsForEntity(ctx, entityID, limit)
}

// Dependencies returns the entities this entity depends on.
func (s *Service) Dependencies(ctx context.Context, entityID string) ([]*models.DependencyInfo, error) {
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	edges, err := s.store.Dependencies(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.resolveEdges(ctx, edges, func(d *models.Dependency) string { return d.DependsOnEntityID })
}

// Dependents returns the entities that depend on this entity.
func (s *Service) Dependents(ctx context.Context, entityID string) ([]*models.DependencyInfo, error) {
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	edges, err := s.store.Dependents(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.resolveEdges(ctx, edges, func(d *models.Dependency) string { return d.EntityID })
}

func (s *Service) resolveEdges(ctx context.Context, edges []*models.Dependency, peer func(*models.Dependency) string) ([]*models.DependencyInfo, error) {
	infos := make([]*models.DependencyInfo, 0, len(edges))
	for _, edge := range edges {
		entity, err := s.store.GetEntity(ctx, peer(edge))
		if err != nil {
			// Soft-deleted peers drop out of the graph view.
			if errors.Is(err, storage.ErrEntityNotFound) {
				continue
			}
			return nil, err
		}
		infos = append(infos, &models.DependencyInfo{
			DependencyID:   edge.ID,
			Entity:         entity,
			DependencyType: edge.DependencyType,
			MinVersion:     edge.MinVersion,
			MaxVersion:     edge.MaxVersion,
		})
	}
	return infos, nil
}

// AddDependency registers a dependency edge. Cycles are rejected with a
// validation failure before the edge is written.
func (s *Service) AddDependency(ctx context.Context, entityID string, req *models.DependencyCreateRequest) (*models.Dependency, error) {
	if entityID == req.DependsOnEntityID {
		return nil, ErrSelfDependency
	}
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetEntity(ctx, req.DependsOnEntityID); err != nil {
		return nil, err
	}

	cyclic, err := s.reaches(ctx, req.DependsOnEntityID, entityID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		result := models.NewValidationResult()
		result.AddError("dependency_cycle",
			fmt.Sprintf("dependency on %s would create a cycle", req.DependsOnEntityID))
		return nil, validation.NewError(result)
	}

	depType := req.DependencyType
	if depType == "" {
		depType = models.DependencyRequired
	}

	dep := &models.Dependency{
		ID:                uuid.NewString(),
		EntityID:          entityID,
		DependsOnEntityID: req.DependsOnEntityID,
		DependencyType:    depType,
		MinVersion:        req.MinVersion,
		MaxVersion:        req.MaxVersion,
		Status:            models.DependencyActive,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateDependency(ctx, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

// reaches reports whether target is reachable from start by following
// dependency edges. Depth-first over the stored graph.
func (s *Service) reaches(ctx context.Context, start, target string) (bool, error) {
	visited := map[string]bool{}
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == target {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		edges, err := s.store.Dependencies(ctx, current)
		if err != nil {
			return false, err
		}
		for _, edge := range edges {
			stack = append(stack, edge.DependsOnEntityID)
		}
	}
	return false, nil
}

// RemoveDependency deletes a dependency edge owned by the entity.
func (s *Service) RemoveDependency(ctx context.Context, entityID, dependencyID string) error {
	dep, err := s.store.GetDependency(ctx, dependencyID)
	if err != nil {
		return err
	}
	if dep.EntityID != entityID {
		return fmt.Errorf("dependency %s does not belong to entity %s: %w",
			dependencyID, entityID, storage.ErrDependencyNotFound)
	}
	return s.store.DeleteDependency(ctx, dependencyID)
}

