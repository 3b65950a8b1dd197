package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/piwi3910/stratweave/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// WithTx snapshots the maps before running fn and restores them when fn
// fails, so transactional semantics hold for single-goroutine callers.
type MemoryStore struct {
	mu sync.RWMutex

	entities     map[string]*models.Entity
	deployments  map[string]*models.Deployment
	swaps        map[string]*models.Swap
	events       []*models.Event
	dependencies map[string]*models.Dependency
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:     make(map[string]*models.Entity),
		deployments:  make(map[string]*models.Deployment),
		swaps:        make(map[string]*models.Swap),
		dependencies: make(map[string]*models.Dependency),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	snapEntities := make(map[string]*models.Entity, len(m.entities))
	for k, v := range m.entities {
		e := *v
		snapEntities[k] = &e
	}
	snapDeployments := make(map[string]*models.Deployment, len(m.deployments))
	for k, v := range m.deployments {
		d := *v
		snapDeployments[k] = &d
	}
	snapSwaps := make(map[string]*models.Swap, len(m.swaps))
	for k, v := range m.swaps {
		s := *v
		snapSwaps[k] = &s
	}
	snapEvents := append([]*models.Event(nil), m.events...)
	snapDeps := make(map[string]*models.Dependency, len(m.dependencies))
	for k, v := range m.dependencies {
		d := *v
		snapDeps[k] = &d
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.entities = snapEntities
		m.deployments = snapDeployments
		m.swaps = snapSwaps
		m.events = snapEvents
		m.dependencies = snapDeps
		m.mu.Unlock()
		return err
	}
	return nil
}

// ---- entities ----

func (m *MemoryStore) CreateEntity(ctx context.Context, e *models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[e.ID]; ok {
		return fmt.Errorf("entity %s: %w", e.ID, ErrEntityExists)
	}
	for _, other := range m.entities {
		if other.DeletedAt == nil && other.Name == e.Name {
			return fmt.Errorf("entity named %s: %w", e.Name, ErrEntityExists)
		}
	}
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *MemoryStore) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[id]
	if !ok || e.DeletedAt != nil {
		return nil, fmt.Errorf("entity %s: %w", id, ErrEntityNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) GetEntityForUpdate(ctx context.Context, id string) (*models.Entity, error) {
	return m.GetEntity(ctx, id)
}

func (m *MemoryStore) GetEntityByName(ctx context.Context, name string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entities {
		if e.DeletedAt == nil && e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("entity named %s: %w", name, ErrEntityNotFound)
}

func (m *MemoryStore) UpdateEntity(ctx context.Context, e *models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entities[e.ID]
	if !ok || cur.DeletedAt != nil {
		return fmt.Errorf("entity %s: %w", e.ID, ErrEntityNotFound)
	}
	for _, other := range m.entities {
		if other.ID != e.ID && other.DeletedAt == nil && other.Name == e.Name {
			return fmt.Errorf("entity named %s: %w", e.Name, ErrEntityExists)
		}
	}
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *MemoryStore) SoftDeleteEntity(ctx context.Context, id, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[id]
	if !ok || e.DeletedAt != nil {
		return fmt.Errorf("entity %s: %w", id, ErrEntityNotFound)
	}
	now := time.Now().UTC()
	e.DeletedAt = &now
	e.DeletedBy = deletedBy
	e.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ListEntities(ctx context.Context, filter *models.EntityFilter) ([]*models.Entity, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*models.Entity{}
	for _, e := range m.entities {
		if e.DeletedAt != nil {
			continue
		}
		if filter.Type != "" && string(e.Type) != filter.Type {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		if filter.HealthStatus != "" && string(e.HealthStatus) != filter.HealthStatus {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(e.Name), needle) &&
				!strings.Contains(strings.ToLower(e.Description), needle) {
				continue
			}
		}
		if len(filter.Tags) > 0 && !tagsOverlap(e.Tags, filter.Tags) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, filter.Pagination), total, nil
}

func tagsOverlap(have []string, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func paginate[T any](items []T, p models.Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// ---- deployments ----

func (m *MemoryStore) CreateDeployment(ctx context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.Status == models.DeploymentActive {
		for _, other := range m.deployments {
			if other.EntityID == d.EntityID && other.Env == d.Env &&
				other.Status == models.DeploymentActive {
				return fmt.Errorf("active deployment already present for entity %s in %s: %w",
					d.EntityID, d.Env, ErrConflict)
			}
		}
	}
	cp := *d
	m.deployments[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deployments[id]
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", id, ErrDeploymentNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UpdateDeployment(ctx context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[d.ID]; !ok {
		return fmt.Errorf("deployment %s: %w", d.ID, ErrDeploymentNotFound)
	}
	cp := *d
	m.deployments[d.ID] = &cp
	return nil
}

func (m *MemoryStore) ListDeployments(ctx context.Context, filter *models.DeploymentFilter) ([]*models.Deployment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*models.Deployment{}
	for _, d := range m.deployments {
		if filter.EntityID != "" && d.EntityID != filter.EntityID {
			continue
		}
		if filter.Environment != "" && string(d.Env) != filter.Environment {
			continue
		}
		if filter.Status != "" && string(d.Status) != filter.Status {
			continue
		}
		cp := *d
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DeployedAt.Equal(matched[j].DeployedAt) {
			return matched[i].DeployedAt.After(matched[j].DeployedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, filter.Pagination), total, nil
}

func (m *MemoryStore) ActiveDeployments(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Deployment{}
	for _, d := range m.deployments {
		if d.EntityID != entityID || d.Status != models.DeploymentActive {
			continue
		}
		if env != "" && d.Env != env {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Env < out[j].Env })
	return out, nil
}

func (m *MemoryStore) ActiveDeploymentsForUpdate(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error) {
	return m.ActiveDeployments(ctx, entityID, env)
}

func (m *MemoryStore) LatestInactiveDeployment(ctx context.Context, entityID string, env models.Environment, beforeID string) (*models.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	before, ok := m.deployments[beforeID]
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", beforeID, ErrDeploymentNotFound)
	}

	var best *models.Deployment
	for _, d := range m.deployments {
		if d.ID == beforeID || d.EntityID != entityID || d.Env != env {
			continue
		}
		if d.Status != models.DeploymentInactive && d.Status != models.DeploymentRolledBack {
			continue
		}
		if !d.DeployedAt.Before(before.DeployedAt) {
			continue
		}
		if best == nil || d.DeployedAt.After(best.DeployedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no rollback target for deployment %s: %w", beforeID, ErrDeploymentNotFound)
	}
	cp := *best
	return &cp, nil
}

// ---- swaps ----

func (m *MemoryStore) CreateSwap(ctx context.Context, s *models.Swap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.swaps[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSwap(ctx context.Context, id string) (*models.Swap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.swaps[id]
	if !ok {
		return nil, fmt.Errorf("swap %s: %w", id, ErrSwapNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateSwap(ctx context.Context, s *models.Swap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.swaps[s.ID]; !ok {
		return fmt.Errorf("swap %s: %w", s.ID, ErrSwapNotFound)
	}
	cp := *s
	m.swaps[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListSwaps(ctx context.Context, filter *models.SwapFilter) ([]*models.Swap, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := []*models.Swap{}
	for _, s := range m.swaps {
		if filter.FromEntityID != "" && s.FromEntityID != filter.FromEntityID {
			continue
		}
		if filter.ToEntityID != "" && s.ToEntityID != filter.ToEntityID {
			continue
		}
		if filter.EntityID != "" && s.FromEntityID != filter.EntityID && s.ToEntityID != filter.EntityID {
			continue
		}
		if filter.Status != "" && string(s.Status) != filter.Status {
			continue
		}
		cp := *s
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].InitiatedAt.Equal(matched[j].InitiatedAt) {
			return matched[i].InitiatedAt.After(matched[j].InitiatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, filter.Pagination), total, nil
}

// ---- events ----

func (m *MemoryStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryStore) ListEventsForEntity(ctx context.Context, entityID string, limit int) ([]*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	out := []*models.Event{}
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := m.events[i]
		if ev.EntityID != nil && *ev.EntityID == entityID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Events returns all recorded audit rows in insertion order. Test helper.
func (m *MemoryStore) Events() []*models.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.Event(nil), m.events...)
}

// ---- dependencies ----

func (m *MemoryStore) CreateDependency(ctx context.Context, d *models.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.dependencies {
		if other.EntityID == d.EntityID && other.DependsOnEntityID == d.DependsOnEntityID {
			return fmt.Errorf("dependency %s -> %s: %w",
				d.EntityID, d.DependsOnEntityID, ErrDependencyExists)
		}
	}
	cp := *d
	m.dependencies[d.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteDependency(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dependencies[id]; !ok {
		return fmt.Errorf("dependency %s: %w", id, ErrDependencyNotFound)
	}
	delete(m.dependencies, id)
	return nil
}

func (m *MemoryStore) GetDependency(ctx context.Context, id string) (*models.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dependencies[id]
	if !ok {
		return nil, fmt.Errorf("dependency %s: %w", id, ErrDependencyNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) Dependencies(ctx context.Context, entityID string) ([]*models.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Dependency{}
	for _, d := range m.dependencies {
		if d.EntityID == entityID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Dependents(ctx context.Context, entityID string) ([]*models.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Dependency{}
	for _, d := range m.dependencies {
		if d.DependsOnEntityID == entityID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
