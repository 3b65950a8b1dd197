package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/registry"
	"github.com/piwi3910/stratweave/internal/storage"
	"github.com/piwi3910/stratweave/internal/validation"
)

func newService(t *testing.T) (*registry.Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return registry.NewService(store, events.NopPublisher{}, zap.NewNop()), store
}

func createReq(name string) *models.EntityCreateRequest {
	return &models.EntityCreateRequest{
		Name:      name,
		Type:      models.EntityTypeStrategy,
		Version:   "1.0.0",
		Config:    models.JSONMap{"lookback": float64(20)},
		CreatedBy: "quant",
	}
}

func TestService_Create(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	entity, err := svc.Create(ctx, createReq("momentum"))
	require.NoError(t, err)
	assert.NotEmpty(t, entity.ID)
	assert.Equal(t, models.EntityStatusRegistered, entity.Status)
	assert.Equal(t, models.HealthUnknown, entity.HealthStatus)

	t.Run("audit event recorded", func(t *testing.T) {
		all := store.Events()
		require.Len(t, all, 1)
		assert.Equal(t, events.TypeEntityRegistered, all[0].EventType)
		require.NotNil(t, all[0].EntityID)
		assert.Equal(t, entity.ID, *all[0].EntityID)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, createReq("momentum"))
		assert.ErrorIs(t, err, storage.ErrEntityExists)
	})

	t.Run("unknown type fails validation", func(t *testing.T) {
		req := createReq("other")
		req.Type = "widget"
		_, err := svc.Create(ctx, req)

		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, models.CheckFailed, verr.Result.Checks["type"])
	})

	t.Run("empty version fails validation", func(t *testing.T) {
		req := createReq("other")
		req.Version = ""
		_, err := svc.Create(ctx, req)

		var verr *validation.Error
		assert.ErrorAs(t, err, &verr)
	})
}

func TestService_Update(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	entity, err := svc.Create(ctx, createReq("momentum"))
	require.NoError(t, err)

	t.Run("partial update only touches supplied fields", func(t *testing.T) {
		desc := "trend following"
		updated, err := svc.Update(ctx, entity.ID, &models.EntityUpdateRequest{
			Description: &desc,
			UpdatedBy:   "quant",
		})
		require.NoError(t, err)
		assert.Equal(t, "trend following", updated.Description)
		assert.Equal(t, entity.Name, updated.Name)
		assert.Equal(t, entity.Version, updated.Version)
	})

	t.Run("valid status transition", func(t *testing.T) {
		status := models.EntityStatusValidated
		updated, err := svc.Update(ctx, entity.ID, &models.EntityUpdateRequest{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, models.EntityStatusValidated, updated.Status)
	})

	t.Run("off-graph transition rejected and nothing persists", func(t *testing.T) {
		status := models.EntityStatusActive
		name := "renamed"
		_, err := svc.Update(ctx, entity.ID, &models.EntityUpdateRequest{
			Status: &status,
			Name:   &name,
		})
		require.ErrorIs(t, err, registry.ErrInvalidTransition)

		got, err := svc.Get(ctx, entity.ID)
		require.NoError(t, err)
		assert.Equal(t, "momentum", got.Name, "rename must roll back with the failed transition")
		assert.Equal(t, models.EntityStatusValidated, got.Status)
	})

	t.Run("no-op update writes no audit event", func(t *testing.T) {
		before := len(store.Events())
		_, err := svc.Update(ctx, entity.ID, &models.EntityUpdateRequest{})
		require.NoError(t, err)
		assert.Len(t, store.Events(), before)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := svc.Update(ctx, "nope", &models.EntityUpdateRequest{})
		assert.ErrorIs(t, err, storage.ErrEntityNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	entity, err := svc.Create(ctx, createReq("momentum"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, entity.ID, "ops"))

	_, err = svc.Get(ctx, entity.ID)
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, entity.ID, "ops"), storage.ErrEntityNotFound)
}

func TestService_Events(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	entity, err := svc.Create(ctx, createReq("momentum"))
	require.NoError(t, err)

	desc := "updated"
	_, err = svc.Update(ctx, entity.ID, &models.EntityUpdateRequest{Description: &desc})
	require.NoError(t, err)

	trail, err := svc.Events(ctx, entity.ID, 10)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, events.TypeEntityUpdated, trail[0].EventType)
	assert.Equal(t, events.TypeEntityRegistered, trail[1].EventType)

	_, err = svc.Events(ctx, "nope", 10)
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
}

func TestService_Dependencies(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, createReq("strategy-a"))
	require.NoError(t, err)
	b, err := svc.Create(ctx, createReq("feature-b"))
	require.NoError(t, err)
	c, err := svc.Create(ctx, createReq("model-c"))
	require.NoError(t, err)

	t.Run("add and list", func(t *testing.T) {
		dep, err := svc.AddDependency(ctx, a.ID, &models.DependencyCreateRequest{
			DependsOnEntityID: b.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, models.DependencyRequired, dep.DependencyType, "type defaults to required")

		deps, err := svc.Dependencies(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, deps, 1)
		assert.Equal(t, b.ID, deps[0].Entity.ID)

		dependents, err := svc.Dependents(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, dependents, 1)
		assert.Equal(t, a.ID, dependents[0].Entity.ID)
	})

	t.Run("self dependency rejected", func(t *testing.T) {
		_, err := svc.AddDependency(ctx, a.ID, &models.DependencyCreateRequest{
			DependsOnEntityID: a.ID,
		})
		assert.ErrorIs(t, err, registry.ErrSelfDependency)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		// a -> b holds; b -> c is fine, then c -> a would close the loop.
		_, err := svc.AddDependency(ctx, b.ID, &models.DependencyCreateRequest{DependsOnEntityID: c.ID})
		require.NoError(t, err)

		_, err = svc.AddDependency(ctx, c.ID, &models.DependencyCreateRequest{DependsOnEntityID: a.ID})
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, models.CheckFailed, verr.Result.Checks["dependency_cycle"])
	})

	t.Run("unknown peer rejected", func(t *testing.T) {
		_, err := svc.AddDependency(ctx, a.ID, &models.DependencyCreateRequest{
			DependsOnEntityID: "nope",
		})
		assert.ErrorIs(t, err, storage.ErrEntityNotFound)
	})

	t.Run("remove enforces ownership", func(t *testing.T) {
		deps, err := svc.Dependencies(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, deps, 1)

		err = svc.RemoveDependency(ctx, b.ID, deps[0].DependencyID)
		assert.ErrorIs(t, err, storage.ErrDependencyNotFound)

		require.NoError(t, svc.RemoveDependency(ctx, a.ID, deps[0].DependencyID))

		deps, err = svc.Dependencies(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, deps)
	})

	t.Run("soft-deleted peers drop out of the view", func(t *testing.T) {
		_, err := svc.AddDependency(ctx, a.ID, &models.DependencyCreateRequest{DependsOnEntityID: c.ID})
		require.NoError(t, err)
		require.NoError(t, svc.Delete(ctx, c.ID, "ops"))

		deps, err := svc.Dependencies(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, deps)
	})
}

func TestService_List(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := svc.Create(ctx, createReq(name))
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, &models.EntityFilter{
		Pagination: models.Pagination{Page: 1, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 2, list.PageSize)
}
