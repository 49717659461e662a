// Package graph stores typed edges between entities and answers neighbor
// and ranking queries over them.
//
// An edge is keyed by its (src, dst, edge) triple, where the edge member
// is the association entity carrying the relationship's properties. Edge
// rows follow the same signed-version rules as property rows: a positive
// version is live, a negative one is tombstoned, and the larger magnitude
// wins regardless of arrival order.
package graph

import (
	"database/sql"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/version"
)

// DefaultChunkSize bounds the number of entity key ids bound in one query.
const DefaultChunkSize = 1000

// Edge is a stored edge row.
type Edge struct {
	Key       edm.EdgeKey `json:"key"`
	Version   int64       `json:"version"`
	LastWrite time.Time   `json:"last_write"`
}

// Live reports whether the edge is visible to readers.
func (e Edge) Live() bool {
	return version.IsLive(e.Version)
}

// EntityNeighborsFilter narrows a neighbor expansion.
//
// With neither SrcEntitySetIDs nor DstEntitySetIDs set, a vertex matches as
// src, dst, or edge entity. SrcEntitySetIDs selects edges where the vertex
// is the dst and the neighbor's src is in the list; DstEntitySetIDs selects
// edges where the vertex is the src and the neighbor's dst is in the list.
// AssociationEntitySetIDs further restricts the edge entity set. An empty
// EntityKeyIDs matches every entity of the requested entity sets.
type EntityNeighborsFilter struct {
	EntityKeyIDs            []uuid.UUID `json:"entity_key_ids,omitempty" yaml:"entity_key_ids,omitempty"`
	SrcEntitySetIDs         []uuid.UUID `json:"src_entity_set_ids,omitempty" yaml:"src_entity_set_ids,omitempty"`
	DstEntitySetIDs         []uuid.UUID `json:"dst_entity_set_ids,omitempty" yaml:"dst_entity_set_ids,omitempty"`
	AssociationEntitySetIDs []uuid.UUID `json:"association_entity_set_ids,omitempty" yaml:"association_entity_set_ids,omitempty"`
	IncludeTombstoned       bool        `json:"include_tombstoned,omitempty" yaml:"include_tombstoned,omitempty"`
}

// NeighborSets is one (src, association, dst) entity set combination with
// at least one live edge.
type NeighborSets struct {
	SrcEntitySetID         uuid.UUID `json:"src_entity_set_id"`
	AssociationEntitySetID uuid.UUID `json:"association_entity_set_id"`
	DstEntitySetID         uuid.UUID `json:"dst_entity_set_id"`
}

// Service reads and writes edges.
type Service struct {
	st        *store.Store
	db        *sql.DB
	dialect   querysql.Dialect
	registry  *schema.Registry
	clock     version.Source
	metrics   metrics.Recorder
	logger    *slog.Logger
	chunkSize int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the version source.
func WithClock(c version.Source) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithChunkSize sets how many ids are bound per query.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New creates a graph service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
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
		opt(s)
	}
	return s
}

func uniqueKeys(keys []edm.EdgeKey) []edm.EdgeKey {
	seen := make(map[edm.EdgeKey]struct{}, len(keys))
	out := make([]edm.EdgeKey, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// sortedIDs returns a sorted copy without duplicates.
func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return slices.Compact(out)
}

func keyArgs(k edm.EdgeKey) []any {
	return []any{
		k.Src.EntitySetID, k.Src.EntityKeyID,
		k.Dst.EntitySetID, k.Dst.EntityKeyID,
		k.Edge.EntitySetID, k.Edge.EntityKeyID,
	}
}
