package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
)

// DB is the subset of *sql.DB the registry needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Registry tracks which property tables exist. Creation is an idempotent
// ensure-exists on top of CREATE ... IF NOT EXISTS, so many processes may
// race on it safely. Positive lookups are cached; negative ones are not.
type Registry struct {
	db      DB
	dialect querysql.Dialect
	logger  *slog.Logger
	known   sync.Map // uuid.UUID -> TableDefinition
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry over db.
func NewRegistry(db DB, d querysql.Dialect, opts ...RegistryOption) *Registry {
	r := &Registry{db: db, dialect: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dialect returns the registry's dialect.
func (r *Registry) Dialect() querysql.Dialect {
	return r.dialect
}

// EnsureBaseTables creates ids and edges.
func (r *Registry) EnsureBaseTables(ctx context.Context) error {
	for _, stmt := range SplitStatements(BaseScript(r.dialect)) {
		if err := r.exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure base tables: %w", err)
		}
	}
	return nil
}

// EnsurePropertyTable creates the table for pt if it does not exist.
func (r *Registry) EnsurePropertyTable(ctx context.Context, pt edm.PropertyType) (TableDefinition, error) {
	if def, ok := r.known.Load(pt.ID); ok {
		return def.(TableDefinition), nil
	}
	def, err := BuildPropertyTable(pt)
	if err != nil {
		return TableDefinition{}, err
	}
	for _, stmt := range def.Render(r.dialect) {
		if err := r.exec(ctx, stmt); err != nil {
			return TableDefinition{}, fmt.Errorf("ensure property table %s: %w", def.Name, err)
		}
	}
	r.known.Store(pt.ID, def)
	r.logger.Debug("property table ready", "table", def.Name, "fqn", pt.Type.String())
	return def, nil
}

// EnsurePropertyTables creates tables for every property type. All
// definitions are validated before any DDL runs.
func (r *Registry) EnsurePropertyTables(ctx context.Context, pts []edm.PropertyType) error {
	for _, pt := range pts {
		if _, err := BuildPropertyTable(pt); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pt := range pts {
		g.Go(func() error {
			_, err := r.EnsurePropertyTable(gctx, pt)
			return err
		})
	}
	return g.Wait()
}

// EnsureEntitySetView (re)creates the es_ view for an entity set. The
// property tables it reads must already exist.
func (r *Registry) EnsureEntitySetView(ctx context.Context, es edm.EntitySet, pts []edm.PropertyType) error {
	for _, pt := range pts {
		if err := r.Require(ctx, pt); err != nil {
			return err
		}
	}
	view, err := BuildEntitySetView(es, pts)
	if err != nil {
		return err
	}
	for _, stmt := range view.Render(r.dialect) {
		if err := r.exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure entity set view %s: %w", view.Name, err)
		}
	}
	return nil
}

// Require fails with a CodeTableNotFound error when pt has no backing
// table.
func (r *Registry) Require(ctx context.Context, pt edm.PropertyType) error {
	if _, ok := r.known.Load(pt.ID); ok {
		return nil
	}
	def, err := BuildPropertyTable(pt)
	if err != nil {
		return err
	}
	exists, err := r.tableExists(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("check table %s: %w", def.Name, err)
	}
	if !exists {
		return &TableError{
			Code:           CodeTableNotFound,
			Table:          def.Name,
			PropertyTypeID: pt.ID,
			Message:        fmt.Sprintf("property type %s has no backing table", pt.Type),
		}
	}
	r.known.Store(pt.ID, def)
	return nil
}

// RequireAll checks every property type, failing on the first missing
// table.
func (r *Registry) RequireAll(ctx context.Context, pts edm.PropertyTypes) error {
	for _, pt := range pts {
		if err := r.Require(ctx, pt); err != nil {
			return err
		}
	}
	return nil
}

// Forget drops a cached entry, for callers that dropped a table out of
// band.
func (r *Registry) Forget(propertyTypeID uuid.UUID) {
	r.known.Delete(propertyTypeID)
}

func (r *Registry) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.dialect.TableExistsSQL(), name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Registry) exec(ctx context.Context, stmt string) error {
	r.logger.Debug("ddl", "statement", stmt)
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}
