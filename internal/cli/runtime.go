package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/config"
	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/deletion"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/version"
)

var (
	errCatalog         = errors.New("catalog unavailable")
	errInvalidArgument = errors.New("invalid argument")
)

// settings loads the configuration and applies the global flag overrides.
func (o *RootOptions) settings() (config.Config, error) {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	if o.DSN != "" {
		if cfg.Driver == querysql.PostgresName {
			cfg.PostgresDSN = o.DSN
		} else {
			cfg.SQLitePath = o.DSN
		}
	}
	if o.Catalog != "" {
		cfg.Catalog = o.Catalog
	}
	return cfg, cfg.Validate()
}

// loadCatalog reads the configured catalog. Every failure wraps errCatalog.
func loadCatalog(cfg config.Config) (*edm.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, fmt.Errorf("%w: pass --catalog or set LATTICE_CATALOG", errCatalog)
	}
	cat, err := edm.LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCatalog, err)
	}
	return cat, nil
}

// runtime is the wired set of services one command invocation uses.
type runtime struct {
	cfg     config.Config
	catalog *edm.Catalog
	store   *store.Store
	data    *data.Datastore
	graph   *graph.Service
	deleter *deletion.Service
	metrics *metrics.Prometheus
	logger  *slog.Logger
}

// openRuntime loads configuration and the catalog, installs the default
// logger, and opens the store with its services.
func openRuntime(ctx context.Context, cmd *cobra.Command, o *RootOptions) (*runtime, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, o.Verbose)
	slog.SetDefault(logger)

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening store", "driver", cfg.Driver, "citus", cfg.Citus)
	st, err := store.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		return nil, err
	}
	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	clock := version.NewClock()
	rec := metrics.NewPrometheus()
	ds := data.New(st,
		data.WithLogger(logger),
		data.WithClock(clock),
		data.WithMetrics(rec),
		data.WithBlobStore(blobs),
		data.WithCatalog(cat),
	)
	gs := graph.New(st,
		graph.WithLogger(logger),
		graph.WithClock(clock),
		graph.WithMetrics(rec),
	)
	return &runtime{
		cfg:     cfg,
		catalog: cat,
		store:   st,
		data:    ds,
		graph:   gs,
		deleter: deletion.New(ds, gs, logger),
		metrics: rec,
		logger:  logger,
	}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Error("error closing database", "error", err)
	}
}

// entitySet resolves a name or id argument together with full access to
// its property types.
func (r *runtime) entitySet(nameOrID string) (edm.EntitySet, edm.PropertyTypes, error) {
	es, err := r.catalog.ResolveEntitySet(nameOrID)
	if err != nil {
		return es, nil, err
	}
	pts, err := r.catalog.PropertyTypesOf(es.ID)
	return es, pts, err
}

// entitySets resolves several name or id arguments.
func (r *runtime) entitySets(args []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		es, err := r.catalog.ResolveEntitySet(a)
		if err != nil {
			return nil, err
		}
		out = append(out, es.ID)
	}
	return out, nil
}

// authorizedAll grants full access to every entity set in the catalog.
func (r *runtime) authorizedAll() map[uuid.UUID]edm.PropertyTypes {
	out := make(map[uuid.UUID]edm.PropertyTypes)
	for _, es := range r.catalog.EntitySets() {
		if pts, err := r.catalog.PropertyTypesOf(es.ID); err == nil {
			out[es.ID] = pts
		}
	}
	return out
}

// entityKey parses "<entity-set>:<entity-key-id>" where the entity set is
// a name or id.
func (r *runtime) entityKey(s string) (edm.EntityDataKey, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return edm.EntityDataKey{}, fmt.Errorf("%q: expected <entity-set>:<entity-key-id>: %w", s, errInvalidArgument)
	}
	es, err := r.catalog.ResolveEntitySet(s[:i])
	if err != nil {
		return edm.EntityDataKey{}, err
	}
	id, err := uuid.Parse(s[i+1:])
	if err != nil {
		return edm.EntityDataKey{}, fmt.Errorf("%q: %w", s, errInvalidArgument)
	}
	return edm.EntityDataKey{EntitySetID: es.ID, EntityKeyID: id}, nil
}

// parseIDs parses entity key id arguments.
func parseIDs(args []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("entity key id %q: %w", a, errInvalidArgument)
		}
		out = append(out, id)
	}
	return out, nil
}

// sortedFQNs returns the keys of m in FQN order.
func sortedFQNs[V any](m map[edm.FQN]V) []edm.FQN {
	out := make([]edm.FQN, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b edm.FQN) int { return strings.Compare(a.String(), b.String()) })
	return out
}
