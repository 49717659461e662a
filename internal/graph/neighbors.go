package graph

import (
	"context"
	"database/sql"
	"iter"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/store"
)

// GetEdgesAndNeighborsForVertex streams the live edges where vertexID is
// the src, the dst, or the edge entity.
func (s *Service) GetEdgesAndNeighborsForVertex(ctx context.Context, entitySetID, vertexID uuid.UUID) iter.Seq2[Edge, error] {
	return s.neighbors(ctx, "get_edges_and_neighbors_for_vertex", []uuid.UUID{entitySetID}, EntityNeighborsFilter{
		EntityKeyIDs: []uuid.UUID{vertexID},
	})
}

// GetEdgesAndNeighborsForVertices streams the edges matched by filter for
// vertices of one entity set.
func (s *Service) GetEdgesAndNeighborsForVertices(ctx context.Context, entitySetID uuid.UUID, filter EntityNeighborsFilter) iter.Seq2[Edge, error] {
	return s.neighbors(ctx, "get_edges_and_neighbors_for_vertices", []uuid.UUID{entitySetID}, filter)
}

// GetEdgesAndNeighborsForVerticesBulk streams the edges matched by filter
// for vertices of any of the entity sets.
func (s *Service) GetEdgesAndNeighborsForVerticesBulk(ctx context.Context, entitySetIDs []uuid.UUID, filter EntityNeighborsFilter) iter.Seq2[Edge, error] {
	if len(entitySetIDs) == 0 {
		return store.Empty[Edge]()
	}
	return s.neighbors(ctx, "get_edges_and_neighbors_for_vertices_bulk", sortedIDs(entitySetIDs), filter)
}

func (s *Service) neighbors(ctx context.Context, op string, entitySetIDs []uuid.UUID, filter EntityNeighborsFilter) iter.Seq2[Edge, error] {
	chunks := [][]uuid.UUID{nil}
	if len(filter.EntityKeyIDs) > 0 {
		chunks = store.Chunk(sortedIDs(filter.EntityKeyIDs), s.chunkSize)
	}
	return func(yield func(Edge, error) bool) {
		var err error
		done := metrics.Track(ctx, s.metrics, op)
		defer func() { done(err) }()

		for e, serr := range s.streamChunks(ctx, chunks, func(chunk []uuid.UUID) (string, []any) {
			return neighborsSQL(s.dialect, entitySetIDs, chunk, filter)
		}) {
			if serr != nil {
				err = serr
				yield(Edge{}, serr)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// GetNeighborEntitySets lists the (src, association, dst) entity set
// combinations that have live edges touching any of entitySetIDs as src or
// dst. It describes which sets can neighbor each other, not which
// entities do.
func (s *Service) GetNeighborEntitySets(ctx context.Context, entitySetIDs []uuid.UUID) (out []NeighborSets, err error) {
	done := metrics.Track(ctx, s.metrics, "get_neighbor_entity_sets")
	defer func() { done(err) }()

	if len(entitySetIDs) == 0 {
		return []NeighborSets{}, nil
	}
	q, args := neighborSetsSQL(s.dialect, sortedIDs(entitySetIDs))
	return store.Collect(store.Stream(ctx, s.db, s.logger, q, args, func(rows *sql.Rows) (NeighborSets, error) {
		var n NeighborSets
		err := rows.Scan(&n.SrcEntitySetID, &n.AssociationEntitySetID, &n.DstEntitySetID)
		return n, err
	}))
}
