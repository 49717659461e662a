package expiration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants"

	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/deletion"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
)

// DefaultWorkers is the number of entity sets swept concurrently.
const DefaultWorkers = 4

// Sweeper applies the expiration policies of a catalog.
type Sweeper struct {
	st      *store.Store
	data    *data.Datastore
	deleter *deletion.Service
	catalog *edm.Catalog
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
	workers int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithNow sets the time source used to compute cutoffs.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithWorkers bounds how many entity sets are swept at once.
func WithWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Sweeper) { s.metrics = r }
}

// NewSweeper creates a sweeper over the entity sets of cat.
func NewSweeper(st *store.Store, ds *data.Datastore, deleter *deletion.Service, cat *edm.Catalog, opts ...Option) *Sweeper {
	s := &Sweeper{
		st:      st,
		data:    ds,
		deleter: deleter,
		catalog: cat,
		logger:  st.Logger(),
		metrics: metrics.Noop{},
		now:     time.Now,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs every policy once and reports what each entity set lost.
// Entity sets without expired entities are absent from the result. A
// failing entity set does not stop the others; their errors are joined.
func (s *Sweeper) Sweep(ctx context.Context) (map[uuid.UUID]deletion.Result, error) {
	policies, err := Policies(s.catalog)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[uuid.UUID]deletion.Result)
		errs    []error
	)
	now := s.now()
	for _, p := range policies {
		wg.Add(1)
		job := func() {
			defer wg.Done()
			res, n, err := s.apply(ctx, p, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("expire entity set %s: %w", p.EntitySetID, err))
				return
			}
			if n > 0 {
				results[p.EntitySetID] = res
			}
		}
		if err := pool.Submit(job); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("schedule entity set %s: %w", p.EntitySetID, err))
			mu.Unlock()
		}
	}
	wg.Wait()
	return results, errors.Join(errs...)
}

// Run sweeps immediately and then every interval until ctx is done.
// Sweep failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		results, err := s.Sweep(ctx)
		if err != nil {
			s.logger.Error("expiration sweep failed", "error", err)
		}
		for es, res := range results {
			s.logger.Info("expired entities",
				"entity_set_id", es,
				"entities_affected", res.EntitiesAffected,
				"edges_affected", res.EdgesAffected,
				"associations_affected", res.AssociationsAffected,
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// apply expires one entity set. It returns the deletion result and the
// number of expired entities.
func (s *Sweeper) apply(ctx context.Context, p Policy, now time.Time) (res deletion.Result, n int, err error) {
	done := metrics.Track(ctx, s.metrics, "expire_entity_set")
	defer func() { done(err) }()

	ids, err := s.Expired(ctx, p, now)
	if err != nil {
		return res, 0, err
	}
	if len(ids) == 0 {
		return res, 0, nil
	}
	res, err = s.deleter.ClearOrDeleteEntitiesAndNeighbors(ctx, p.EntitySetID, ids, p.DeleteType, s.authorized())
	if err != nil {
		return res, 0, err
	}
	s.logger.Debug("expiration applied",
		"entity_set_id", p.EntitySetID,
		"type", p.Type,
		"delete_type", p.DeleteType,
		"expired", len(ids),
	)
	return res, len(ids), nil
}

// Expired returns the live entities of p's entity set whose retention
// period ended before now.
func (s *Sweeper) Expired(ctx context.Context, p Policy, now time.Time) ([]uuid.UUID, error) {
	cutoff := p.Cutoff(now)
	switch p.Type {
	case edm.ExpireFirstWrite, edm.ExpireLastWrite:
		q, args := expiredIDsSQL(s.st.Dialect(), p, cutoff)
		return store.Collect(store.Stream(ctx, s.st.DB(), s.logger, q, args, scanID))
	case edm.ExpireDateProperty:
		return s.expiredByProperty(ctx, p, cutoff)
	default:
		return nil, fmt.Errorf("expiration type %q: %w", p.Type, ErrInvalidPolicy)
	}
}

// expiredByProperty reads the start date property through the datastore.
// An entity expires when any of its values lies before the cutoff; Date
// values compare by calendar day.
func (s *Sweeper) expiredByProperty(ctx context.Context, p Policy, cutoff time.Time) ([]uuid.UUID, error) {
	pt := p.StartDateProperty
	cutoffDay := value.NewDate(cutoff.UTC()).Time()
	var ids []uuid.UUID
	for rec, err := range s.data.GetEntitySetData(ctx, p.EntitySetID, edm.NewPropertyTypes(pt)) {
		if err != nil {
			return nil, err
		}
		for _, v := range rec.Properties[pt.Type] {
			if expiredValue(v, cutoff, cutoffDay) {
				ids = append(ids, rec.Key.EntityKeyID)
				break
			}
		}
	}
	return ids, nil
}

func expiredValue(v value.Value, cutoff, cutoffDay time.Time) bool {
	switch t := v.(type) {
	case value.Date:
		return t.Time().Before(cutoffDay)
	case value.DateTimeOffset:
		return t.Time().Before(cutoff)
	default:
		return false
	}
}

func (s *Sweeper) authorized() map[uuid.UUID]edm.PropertyTypes {
	out := make(map[uuid.UUID]edm.PropertyTypes)
	for _, es := range s.catalog.EntitySets() {
		pts, err := s.catalog.PropertyTypesOf(es.ID)
		if err != nil {
			s.logger.Warn("skipping entity set without property types", "entity_set_id", es.ID, "error", err)
			continue
		}
		out[es.ID] = pts
	}
	return out
}

// expiredIDsSQL selects live ids by first write or last write.
func expiredIDsSQL(d querysql.Dialect, p Policy, cutoff time.Time) (string, []any) {
	b := querysql.NewBuilder(d)
	var cond string
	if p.Type == edm.ExpireFirstWrite {
		cond = fmt.Sprintf("ABS(%s) < %s",
			d.FirstVersion(querysql.Quote(schema.ColVersions)),
			schema.VersionArg(b.Arg(cutoff.UnixMicro())))
	} else {
		cond = fmt.Sprintf("%s < %s", querysql.Quote(schema.ColLastWrite), b.Time(cutoff))
	}
	b.Write("SELECT %s FROM %s WHERE %s = %s AND %s > 0 AND %s ORDER BY %s",
		querysql.Quote(schema.ColID),
		querysql.Quote(schema.IDsTable),
		querysql.Quote(schema.ColEntitySetID), b.Arg(p.EntitySetID),
		querysql.Quote(schema.ColVersion),
		cond,
		querysql.Quote(schema.ColID),
	)
	return b.SQL(), b.Args()
}

func scanID(rows *sql.Rows) (uuid.UUID, error) {
	var id uuid.UUID
	err := rows.Scan(&id)
	return id, err
}
