package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/piwi3910/stratweave/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// PostgresStore is the Store implementation backed by PostgreSQL via
// pgx/stdlib and sqlx. A transactional view shares the struct with ext
// pointed at the open transaction.
type PostgresStore struct {
	db     *sqlx.DB
	ext    sqlx.ExtContext
	logger *zap.Logger
}

// PostgresOptions configures pool sizing for the store.
type PostgresOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresStore opens a connection pool, verifies connectivity and runs
// pending migrations.
func NewPostgresStore(ctx context.Context, url string, opts PostgresOptions, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	if err := runMigrations(db.DB, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db, ext: db, logger: logger}, nil
}

func runMigrations(db *sql.DB, logger *zap.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Store migrations applied")
	return nil
}

// Ping verifies store connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// WithTx runs fn against a transactional view of the store. The
// transaction commits when fn returns nil; errors and panics roll it
// back. Nested calls reuse the enclosing transaction.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if _, nested := p.ext.(*sqlx.Tx); nested {
		return fn(p)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &PostgresStore{db: p.db, ext: tx, logger: p.logger}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.Error("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---- entities ----

const entityColumns = `id, name, entity_type, category, description, version, author,
	tags, config, parameters, requirements, status, health_status,
	deployed_at, deployed_by, deployment_config,
	cpu_request, memory_request, gpu_request,
	created_at, updated_at, created_by, updated_by, deleted_at, deleted_by`

func (p *PostgresStore) CreateEntity(ctx context.Context, e *models.Entity) error {
	query := `INSERT INTO entities (` + entityColumns + `) VALUES (
		:id, :name, :entity_type, :category, :description, :version, :author,
		:tags, :config, :parameters, :requirements, :status, :health_status,
		:deployed_at, :deployed_by, :deployment_config,
		:cpu_request, :memory_request, :gpu_request,
		:created_at, :updated_at, :created_by, :updated_by, :deleted_at, :deleted_by)`

	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, e); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entity named %s: %w", e.Name, ErrEntityExists)
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

func (p *PostgresStore) getEntity(ctx context.Context, id string, forUpdate bool) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var e models.Entity
	if err := sqlx.GetContext(ctx, p.ext, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entity %s: %w", id, ErrEntityNotFound)
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &e, nil
}

func (p *PostgresStore) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return p.getEntity(ctx, id, false)
}

func (p *PostgresStore) GetEntityForUpdate(ctx context.Context, id string) (*models.Entity, error) {
	return p.getEntity(ctx, id, true)
}

func (p *PostgresStore) GetEntityByName(ctx context.Context, name string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities
		WHERE name = $1 AND deleted_at IS NULL`

	var e models.Entity
	if err := sqlx.GetContext(ctx, p.ext, &e, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entity named %s: %w", name, ErrEntityNotFound)
		}
		return nil, fmt.Errorf("failed to get entity by name: %w", err)
	}
	return &e, nil
}

func (p *PostgresStore) UpdateEntity(ctx context.Context, e *models.Entity) error {
	query := `UPDATE entities SET
		name = :name, category = :category, description = :description,
		version = :version, author = :author, tags = :tags,
		config = :config, parameters = :parameters, requirements = :requirements,
		status = :status, health_status = :health_status,
		deployed_at = :deployed_at, deployed_by = :deployed_by,
		deployment_config = :deployment_config,
		cpu_request = :cpu_request, memory_request = :memory_request,
		gpu_request = :gpu_request,
		updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id AND deleted_at IS NULL`

	res, err := sqlx.NamedExecContext(ctx, p.ext, query, e)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entity named %s: %w", e.Name, ErrEntityExists)
		}
		return fmt.Errorf("failed to update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", e.ID, ErrEntityNotFound)
	}
	return nil
}

func (p *PostgresStore) SoftDeleteEntity(ctx context.Context, id, deletedBy string) error {
	query := `UPDATE entities SET deleted_at = now(), deleted_by = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	res, err := p.ext.ExecContext(ctx, query, id, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrEntityNotFound)
	}
	return nil
}

func (p *PostgresStore) ListEntities(ctx context.Context, filter *models.EntityFilter) ([]*models.Entity, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	add := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != "" {
		add("entity_type = $%d", filter.Type)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.HealthStatus != "" {
		add("health_status = $%d", filter.HealthStatus)
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(name ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", n, n))
	}
	if len(filter.Tags) > 0 {
		add("tags && $%d", pq.Array(filter.Tags))
	}

	cond := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT count(*) FROM entities WHERE ` + cond
	if err := sqlx.GetContext(ctx, p.ext, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count entities: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM entities WHERE %s
		ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		entityColumns, cond, len(args)-1, len(args))

	entities := []*models.Entity{}
	if err := sqlx.SelectContext(ctx, p.ext, &entities, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, total, nil
}

// ---- deployments ----

const deploymentColumns = `id, entity_id, version, environment,
	config_snapshot, parameters_snapshot, status,
	deployed_at, deployed_by, deployment_method,
	rolled_back_at, rolled_back_by, rollback_reason, previous_deployment_id,
	validation_results, error_logs, duration_seconds,
	health_checks, last_health_check, created_at, updated_at`

func (p *PostgresStore) CreateDeployment(ctx context.Context, d *models.Deployment) error {
	query := `INSERT INTO deployments (` + deploymentColumns + `) VALUES (
		:id, :entity_id, :version, :environment,
		:config_snapshot, :parameters_snapshot, :status,
		:deployed_at, :deployed_by, :deployment_method,
		:rolled_back_at, :rolled_back_by, :rollback_reason, :previous_deployment_id,
		:validation_results, :error_logs, :duration_seconds,
		:health_checks, :last_health_check, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, d); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active deployment already present for entity %s in %s: %w",
				d.EntityID, d.Env, ErrConflict)
		}
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`

	var d models.Deployment
	if err := sqlx.GetContext(ctx, p.ext, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deployment %s: %w", id, ErrDeploymentNotFound)
		}
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return &d, nil
}

func (p *PostgresStore) UpdateDeployment(ctx context.Context, d *models.Deployment) error {
	query := `UPDATE deployments SET
		status = :status, rolled_back_at = :rolled_back_at,
		rolled_back_by = :rolled_back_by, rollback_reason = :rollback_reason,
		previous_deployment_id = :previous_deployment_id,
		validation_results = :validation_results, error_logs = :error_logs,
		duration_seconds = :duration_seconds, health_checks = :health_checks,
		last_health_check = :last_health_check, updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, p.ext, query, d)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active deployment already present for entity %s in %s: %w",
				d.EntityID, d.Env, ErrConflict)
		}
		return fmt.Errorf("failed to update deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deployment %s: %w", d.ID, ErrDeploymentNotFound)
	}
	return nil
}

func (p *PostgresStore) ListDeployments(ctx context.Context, filter *models.DeploymentFilter) ([]*models.Deployment, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.Environment != "" {
		args = append(args, filter.Environment)
		where = append(where, fmt.Sprintf("environment = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, p.ext, &total,
		`SELECT count(*) FROM deployments WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count deployments: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM deployments WHERE %s
		ORDER BY deployed_at DESC, id LIMIT $%d OFFSET $%d`,
		deploymentColumns, cond, len(args)-1, len(args))

	deployments := []*models.Deployment{}
	if err := sqlx.SelectContext(ctx, p.ext, &deployments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list deployments: %w", err)
	}
	return deployments, total, nil
}

func (p *PostgresStore) activeDeployments(ctx context.Context, entityID string, env models.Environment, forUpdate bool) ([]*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE entity_id = $1 AND status = 'active'`
	args := []interface{}{entityID}
	if env != "" {
		args = append(args, env)
		query += ` AND environment = $2`
	}
	query += ` ORDER BY environment`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	deployments := []*models.Deployment{}
	if err := sqlx.SelectContext(ctx, p.ext, &deployments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load active deployments: %w", err)
	}
	return deployments, nil
}

func (p *PostgresStore) ActiveDeployments(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error) {
	return p.activeDeployments(ctx, entityID, env, false)
}

func (p *PostgresStore) ActiveDeploymentsForUpdate(ctx context.Context, entityID string, env models.Environment) ([]*models.Deployment, error) {
	return p.activeDeployments(ctx, entityID, env, true)
}

func (p *PostgresStore) LatestInactiveDeployment(ctx context.Context, entityID string, env models.Environment, beforeID string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE entity_id = $1 AND environment = $2 AND id != $3
		  AND status IN ('inactive', 'rolled_back')
		  AND deployed_at < (SELECT deployed_at FROM deployments WHERE id = $3)
		ORDER BY deployed_at DESC, created_at DESC LIMIT 1`

	var d models.Deployment
	if err := sqlx.GetContext(ctx, p.ext, &d, query, entityID, env, beforeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no rollback target for deployment %s: %w", beforeID, ErrDeploymentNotFound)
		}
		return nil, fmt.Errorf("failed to find rollback target: %w", err)
	}
	return &d, nil
}

// ---- swaps ----

const swapColumns = `id, from_entity_id, to_entity_id, from_deployment_id, to_deployment_id,
	swap_type, status, reason, initiated_by, initiated_at, completed_at,
	duration_seconds, downtime_milliseconds, success, error_message,
	validation_results, affected_deployments,
	rolled_back_at, rolled_back_by, rollback_reason, target_environment,
	created_at, updated_at`

func (p *PostgresStore) CreateSwap(ctx context.Context, s *models.Swap) error {
	query := `INSERT INTO swaps (` + swapColumns + `) VALUES (
		:id, :from_entity_id, :to_entity_id, :from_deployment_id, :to_deployment_id,
		:swap_type, :status, :reason, :initiated_by, :initiated_at, :completed_at,
		:duration_seconds, :downtime_milliseconds, :success, :error_message,
		:validation_results, :affected_deployments,
		:rolled_back_at, :rolled_back_by, :rollback_reason, :target_environment,
		:created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, s); err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSwap(ctx context.Context, id string) (*models.Swap, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps WHERE id = $1`

	var s models.Swap
	if err := sqlx.GetContext(ctx, p.ext, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("swap %s: %w", id, ErrSwapNotFound)
		}
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) UpdateSwap(ctx context.Context, s *models.Swap) error {
	query := `UPDATE swaps SET
		from_deployment_id = :from_deployment_id, to_deployment_id = :to_deployment_id,
		status = :status, completed_at = :completed_at,
		duration_seconds = :duration_seconds, downtime_milliseconds = :downtime_milliseconds,
		success = :success, error_message = :error_message,
		validation_results = :validation_results, affected_deployments = :affected_deployments,
		rolled_back_at = :rolled_back_at, rolled_back_by = :rolled_back_by,
		rollback_reason = :rollback_reason, updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, p.ext, query, s)
	if err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("swap %s: %w", s.ID, ErrSwapNotFound)
	}
	return nil
}

func (p *PostgresStore) ListSwaps(ctx context.Context, filter *models.SwapFilter) ([]*models.Swap, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.FromEntityID != "" {
		args = append(args, filter.FromEntityID)
		where = append(where, fmt.Sprintf("from_entity_id = $%d", len(args)))
	}
	if filter.ToEntityID != "" {
		args = append(args, filter.ToEntityID)
		where = append(where, fmt.Sprintf("to_entity_id = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		n := len(args)
		where = append(where, fmt.Sprintf("(from_entity_id = $%d OR to_entity_id = $%d)", n, n))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, p.ext, &total,
		`SELECT count(*) FROM swaps WHERE `+cond, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count swaps: %w", err)
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM swaps WHERE %s
		ORDER BY initiated_at DESC, id LIMIT $%d OFFSET $%d`,
		swapColumns, cond, len(args)-1, len(args))

	swaps := []*models.Swap{}
	if err := sqlx.SelectContext(ctx, p.ext, &swaps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list swaps: %w", err)
	}
	return swaps, total, nil
}

// ---- events ----

const eventColumns = `id, event_type, event_category, severity,
	entity_id, deployment_id, swap_id, message, details,
	user_id, source, occurred_at`

func (p *PostgresStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	query := `INSERT INTO events (` + eventColumns + `) VALUES (
		:id, :event_type, :event_category, :severity,
		:entity_id, :deployment_id, :swap_id, :message, :details,
		:user_id, :source, :occurred_at)`

	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, ev); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListEventsForEntity(ctx context.Context, entityID string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE entity_id = $1 ORDER BY occurred_at DESC LIMIT $2`

	events := []*models.Event{}
	if err := sqlx.SelectContext(ctx, p.ext, &events, query, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// ---- dependencies ----

const dependencyColumns = `id, entity_id, depends_on_entity_id, dependency_type,
	min_version, max_version, status, created_at`

func (p *PostgresStore) CreateDependency(ctx context.Context, d *models.Dependency) error {
	query := `INSERT INTO dependencies (` + dependencyColumns + `) VALUES (
		:id, :entity_id, :depends_on_entity_id, :dependency_type,
		:min_version, :max_version, :status, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, d); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("dependency %s -> %s: %w",
				d.EntityID, d.DependsOnEntityID, ErrDependencyExists)
		}
		return fmt.Errorf("failed to create dependency: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteDependency(ctx context.Context, id string) error {
	res, err := p.ext.ExecContext(ctx, `DELETE FROM dependencies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dependency %s: %w", id, ErrDependencyNotFound)
	}
	return nil
}

func (p *PostgresStore) GetDependency(ctx context.Context, id string) (*models.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE id = $1`

	var d models.Dependency
	if err := sqlx.GetContext(ctx, p.ext, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dependency %s: %w", id, ErrDependencyNotFound)
		}
		return nil, fmt.Errorf("failed to get dependency: %w", err)
	}
	return &d, nil
}

func (p *PostgresStore) Dependencies(ctx context.Context, entityID string) ([]*models.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies
		WHERE entity_id = $1 ORDER BY created_at`

	deps := []*models.Dependency{}
	if err := sqlx.SelectContext(ctx, p.ext, &deps, query, entityID); err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	return deps, nil
}

func (p *PostgresStore) Dependents(ctx context.Context, entityID string) ([]*models.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies
		WHERE depends_on_entity_id = $1 ORDER BY created_at`

	deps := []*models.Dependency{}
	if err := sqlx.SelectContext(ctx, p.ext, &deps, query, entityID); err != nil {
		return nil, fmt.Errorf("failed to list dependents: %w", err)
	}
	return deps, nil
}
