package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/config"
	"github.com/piwi3910/stratweave/internal/events"
	"github.com/piwi3910/stratweave/internal/models"
	"github.com/piwi3910/stratweave/internal/observability"
	"github.com/piwi3910/stratweave/internal/server"
	"github.com/piwi3910/stratweave/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if _, err := observability.InitLogger("test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*server.Server, *storage.MemoryStore) {
	t.Helper()
	return newTestServerWith(t, events.NopPublisher{})
}

func newTestServerWith(t *testing.T, publisher events.Publisher) (*server.Server, *storage.MemoryStore) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr:      ":0",
			GinMode:         gin.TestMode,
			ShutdownTimeout: time.Second,
		},
		API: config.APIConfig{
			V1Prefix:    "/api/v1",
			PageSizeMax: 100,
		},
		Observability: config.ObservabilityConfig{
			Environment: "test",
			// Keep the Prometheus registry clean across test servers.
			MetricsEnabled: false,
		},
	}

	store := storage.NewMemoryStore()
	return server.New(cfg, zap.NewNop(), store, publisher), store
}

// downPublisher simulates an unreachable bus while mutations keep working.
type downPublisher struct {
	events.NopPublisher
}

func (downPublisher) Ping(ctx context.Context) error { return errors.New("connection refused") }
func (downPublisher) Degraded() bool                 { return true }

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}

func createEntity(t *testing.T, router *gin.Engine, name string) *models.Entity {
	t.Helper()
	w := doRequest(t, router, http.MethodPost, "/api/v1/entities", gin.H{
		"name":       name,
		"type":       "strategy",
		"version":    "1.0.0",
		"config":     gin.H{"lookback": 20},
		"created_by": "quant",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var entity models.Entity
	decode(t, w, &entity)
	return &entity
}

func TestEntityEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	entity := createEntity(t, router, "momentum")
	assert.Equal(t, models.EntityStatusRegistered, entity.Status)

	t.Run("duplicate name is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities", gin.H{
			"name": "momentum", "type": "strategy", "version": "2.0.0",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing required field is a 422", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities", gin.H{
			"type": "strategy", "version": "1.0.0",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unknown type is a 400 with check breakdown", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities", gin.H{
			"name": "other", "type": "widget", "version": "1.0.0",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp struct {
			Detail struct {
				Checks map[string]string `json:"checks"`
				Errors []string          `json:"errors"`
			} `json:"detail"`
		}
		decode(t, w, &resp)
		assert.Equal(t, "failed", resp.Detail.Checks["type"])
		assert.NotEmpty(t, resp.Detail.Errors)
	})

	t.Run("get by id", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities/"+entity.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Entity
		decode(t, w, &got)
		assert.Equal(t, "momentum", got.Name)
	})

	t.Run("unknown id is a 404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities?type=strategy", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list models.EntityList
		decode(t, w, &list)
		assert.Equal(t, 1, list.Total)
		assert.Equal(t, 20, list.PageSize)
	})

	t.Run("bad pagination is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities?page=0", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("search", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities/search?q=moment", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list models.EntityList
		decode(t, w, &list)
		assert.Equal(t, 1, list.Total)

		w = doRequest(t, router, http.MethodGet, "/api/v1/entities/search?q=nomatch", nil)
		decode(t, w, &list)
		assert.Zero(t, list.Total)
	})

	t.Run("update", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPut, "/api/v1/entities/"+entity.ID, gin.H{
			"description": "trend following",
			"status":      "validated",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Entity
		decode(t, w, &got)
		assert.Equal(t, "trend following", got.Description)
		assert.Equal(t, models.EntityStatusValidated, got.Status)
	})

	t.Run("off-graph transition is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPut, "/api/v1/entities/"+entity.ID, gin.H{
			"status": "active",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("events trail", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities/"+entity.ID+"/events", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Items []*models.Event `json:"items"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "entity.updated", resp.Items[0].EventType)

		w = doRequest(t, router, http.MethodGet, "/api/v1/entities/"+entity.ID+"/events?limit=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete then 404", func(t *testing.T) {
		w := doRequest(t, router, http.MethodDelete, "/api/v1/entities/"+entity.ID+"?deleted_by=ops", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doRequest(t, router, http.MethodGet, "/api/v1/entities/"+entity.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDependencyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	a := createEntity(t, router, "strategy-a")
	b := createEntity(t, router, "feature-b")

	t.Run("add and list", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities/"+a.ID+"/dependencies", gin.H{
			"depends_on_entity_id": b.ID,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = doRequest(t, router, http.MethodGet, "/api/v1/entities/"+a.ID+"/dependencies", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Items []*models.DependencyInfo `json:"items"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, b.ID, resp.Items[0].Entity.ID)

		w = doRequest(t, router, http.MethodGet, "/api/v1/entities/"+b.ID+"/dependents", nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &resp)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, a.ID, resp.Items[0].Entity.ID)
	})

	t.Run("self dependency is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities/"+a.ID+"/dependencies", gin.H{
			"depends_on_entity_id": a.ID,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cycle is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/entities/"+b.ID+"/dependencies", gin.H{
			"depends_on_entity_id": a.ID,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remove", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/entities/"+a.ID+"/dependencies", nil)
		var resp struct {
			Items []*models.DependencyInfo `json:"items"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Items, 1)

		w = doRequest(t, router, http.MethodDelete,
			"/api/v1/entities/"+a.ID+"/dependencies/"+resp.Items[0].DependencyID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestDeploymentEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	entity := createEntity(t, router, "momentum")

	var deployment models.Deployment
	t.Run("deploy", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/deployments", gin.H{
			"entity_id":   entity.ID,
			"environment": "production",
			"deployed_by": "quant",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		decode(t, w, &deployment)
		assert.Equal(t, models.DeploymentActive, deployment.Status)
		assert.Equal(t, entity.ID, deployment.EntityID)
	})

	t.Run("unknown environment is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/deployments", gin.H{
			"entity_id":   entity.ID,
			"environment": "qa",
			"deployed_by": "quant",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing deployed_by is a 422", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/deployments", gin.H{
			"entity_id":   entity.ID,
			"environment": "production",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("list and list for entity", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/deployments?environment=production", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list models.DeploymentList
		decode(t, w, &list)
		assert.Equal(t, 1, list.Total)

		w = doRequest(t, router, http.MethodGet,
			"/api/v1/deployments/entity/"+entity.ID+"/deployments", nil)
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &list)
		assert.Equal(t, 1, list.Total)
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/deployments/"+deployment.ID, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, router, http.MethodGet, "/api/v1/deployments/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rollback without a predecessor is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost,
			"/api/v1/deployments/"+deployment.ID+"/rollback", gin.H{
				"reason":         "bad fills",
				"rolled_back_by": "ops",
			})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rollback to the superseded deployment", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/deployments", gin.H{
			"entity_id":   entity.ID,
			"environment": "production",
			"deployed_by": "quant",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var second models.Deployment
		decode(t, w, &second)

		w = doRequest(t, router, http.MethodPost,
			"/api/v1/deployments/"+second.ID+"/rollback", gin.H{
				"reason":         "bad fills",
				"rolled_back_by": "ops",
			})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var rolled models.Deployment
		decode(t, w, &rolled)
		assert.Equal(t, models.DeploymentRolledBack, rolled.Status)
		require.NotNil(t, rolled.PreviousDeploymentID)
		assert.Equal(t, deployment.ID, *rolled.PreviousDeploymentID)
	})
}

func TestSwapEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	alpha := createEntity(t, router, "strategy-alpha")
	beta := createEntity(t, router, "strategy-beta")

	w := doRequest(t, router, http.MethodPost, "/api/v1/deployments", gin.H{
		"entity_id":   alpha.ID,
		"environment": "production",
		"deployed_by": "quant",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("validate only is a 200 and persists nothing", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/swaps", gin.H{
			"from_entity_id": alpha.ID,
			"to_entity_id":   beta.ID,
			"initiated_by":   "ops",
			"validate_only":  true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var swap models.Swap
		decode(t, w, &swap)
		assert.Equal(t, models.SwapValidating, swap.Status)
		require.NotNil(t, swap.ValidationResults)
		assert.True(t, swap.ValidationResults.Compatible)

		var list models.SwapList
		lw := doRequest(t, router, http.MethodGet, "/api/v1/swaps", nil)
		decode(t, lw, &list)
		assert.Zero(t, list.Total)
	})

	var swap models.Swap
	t.Run("execute", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/swaps", gin.H{
			"from_entity_id": alpha.ID,
			"to_entity_id":   beta.ID,
			"initiated_by":   "ops",
			"reason":         "beta outperforms",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		decode(t, w, &swap)
		assert.Equal(t, models.SwapCompleted, swap.Status)
		assert.True(t, swap.Success)
		assert.GreaterOrEqual(t, swap.DowntimeMilliseconds, int64(1))
	})

	t.Run("listed for both participants", func(t *testing.T) {
		for _, id := range []string{alpha.ID, beta.ID} {
			w := doRequest(t, router, http.MethodGet, "/api/v1/swaps/entity/"+id+"/swaps", nil)
			require.Equal(t, http.StatusOK, w.Code)

			var list models.SwapList
			decode(t, w, &list)
			require.Equal(t, 1, list.Total)
			assert.Equal(t, swap.ID, list.Items[0].ID)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/v1/swaps/"+swap.ID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rollback", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/swaps/"+swap.ID+"/rollback", gin.H{
			"reason":         "beta misbehaving",
			"rolled_back_by": "ops",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var rolled models.Swap
		decode(t, w, &rolled)
		assert.Equal(t, models.SwapRolledBack, rolled.Status)
	})

	t.Run("second rollback is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/swaps/"+swap.ID+"/rollback", gin.H{
			"reason":         "again",
			"rolled_back_by": "ops",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("swap onto itself is a 400", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/v1/swaps", gin.H{
			"from_entity_id": alpha.ID,
			"to_entity_id":   alpha.ID,
			"initiated_by":   "ops",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	t.Run("health", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("liveness", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health/live", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("readiness", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("detailed", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health/detailed", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var detail models.HealthDetail
		decode(t, w, &detail)
		assert.Equal(t, "healthy", detail.Status)
		assert.True(t, detail.Store)
		assert.True(t, detail.Bus)
		assert.False(t, detail.PublisherDegraded)
	})
}

func TestHealthEndpoints_BusOutage(t *testing.T) {
	srv, _ := newTestServerWith(t, downPublisher{})
	router := srv.Router()

	t.Run("health degrades instead of failing", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp observability.HealthResponse
		decode(t, w, &resp)
		assert.Equal(t, observability.StatusDegraded, resp.Status)
		assert.Equal(t, observability.StatusDegraded, resp.Components["bus"].Status)
		assert.Equal(t, observability.StatusHealthy, resp.Components["store"].Status)
	})

	t.Run("detailed reports the degraded bus", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/health/detailed", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var detail models.HealthDetail
		decode(t, w, &detail)
		assert.Equal(t, "degraded", detail.Status)
		assert.True(t, detail.Store)
		assert.False(t, detail.Bus)
		assert.True(t, detail.PublisherDegraded)
	})

	t.Run("mutations still served", func(t *testing.T) {
		entity := createEntity(t, router, "registered-during-outage")
		assert.NotEmpty(t, entity.ID)
	})
}
