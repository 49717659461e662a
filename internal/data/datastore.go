package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
	"github.com/roach88/lattice/internal/version"
)

// DefaultChunkSize bounds the number of entity key ids bound in one query.
const DefaultChunkSize = 1000

var (
	// ErrUnknownPropertyType is returned when a payload names a property
	// type outside the authorized set.
	ErrUnknownPropertyType = errors.New("property type not authorized")

	// ErrDatatypeMismatch is returned when a value does not match its
	// property type's datatype.
	ErrDatatypeMismatch = errors.New("value does not match property datatype")
)

// Entity is the live state of one entity: property FQN to values. A
// property type with no live values is absent, never an empty slice.
type Entity map[edm.FQN][]value.Value

// Record is an entity read from a bulk sequence, with its key.
type Record struct {
	Key        edm.EntityDataKey
	Properties Entity
}

// PropertyValues is a write payload: property type id to values.
type PropertyValues map[uuid.UUID][]value.Value

// HashReplacement replaces the stored value whose content hash is Old.
type HashReplacement struct {
	Old value.Hash
	New value.Value
}

// PropertyMetadata is one stored row of a property type, live or not.
type PropertyMetadata struct {
	Hash      value.Hash
	Value     value.Value
	Version   int64
	Versions  []int64
	LastWrite time.Time
}

// Datastore reads and writes entities.
type Datastore struct {
	st        *store.Store
	db        *sql.DB
	dialect   querysql.Dialect
	registry  *schema.Registry
	clock     version.Source
	blobs     blob.Store
	scopes    Scopes
	metrics   metrics.Recorder
	logger    *slog.Logger
	chunkSize int
}

// Option configures a Datastore.
type Option func(*Datastore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Datastore) { d.logger = l }
}

// WithClock sets the version source. Defaults to a wall-clock
// version.Clock.
func WithClock(c version.Source) Option {
	return func(d *Datastore) { d.clock = c }
}

// WithBlobStore offloads Binary values to s. Without it they are stored
// inline.
func WithBlobStore(s blob.Store) Option {
	return func(d *Datastore) { d.blobs = s }
}

// Scopes resolves the full set of property types of an entity set.
// *edm.Catalog satisfies it.
type Scopes interface {
	PropertyTypesOf(entitySetID uuid.UUID) (edm.PropertyTypes, error)
}

// WithCatalog lets entity-wide clears and deletes retire an entity's ids
// row when the caller is authorized for every property type of the entity
// set. Without it the ids rows are never retired by those operations.
func WithCatalog(c Scopes) Option {
	return func(d *Datastore) { d.scopes = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(d *Datastore) { d.metrics = r }
}

// WithChunkSize sets how many ids are bound per query.
func WithChunkSize(n int) Option {
	return func(d *Datastore) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// New creates a datastore over st.
func New(st *store.Store, opts ...Option) *Datastore {
	d := &Datastore{
		st:        st,
		db:        st.DB(),
		dialect:   st.Dialect(),
		registry:  st.Registry(),
		clock:     version.NewClock(),
		metrics:   metrics.Noop{},
		logger:    st.Logger(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dialect returns the datastore's SQL dialect.
func (d *Datastore) Dialect() querysql.Dialect {
	return d.dialect
}

// sortedTypes orders property types by id so generated SQL is stable.
func sortedTypes(pts edm.PropertyTypes) []edm.PropertyType {
	out := make([]edm.PropertyType, 0, len(pts))
	for _, pt := range pts {
		out = append(out, pt)
	}
	slices.SortFunc(out, func(a, b edm.PropertyType) int {
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

// uniqueIDs drops duplicates, keeping first occurrence order.
// compareIDs orders ids the way the ids table's key column sorts.
func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
