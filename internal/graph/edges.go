package graph

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/version"
)

// ScanOption configures an edge key scan.
type ScanOption func(*scanOptions)

type scanOptions struct {
	includeTombstoned bool
}

// IncludeTombstoned makes a scan return tombstoned edges as well as live
// ones.
func IncludeTombstoned() ScanOption {
	return func(o *scanOptions) { o.includeTombstoned = true }
}

// CreateEdges writes keys at one new version. Writing an existing edge
// again only appends to its version history.
func (s *Service) CreateEdges(ctx context.Context, keys []edm.EdgeKey) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, s.metrics, "create_edges")
	defer func() { done(err) }()

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return store.WriteEvent{}, nil
	}
	v := s.clock.Next()
	n, err := s.execEach(ctx, upsertEdgeSQL(s.dialect), keys, v)
	if err != nil {
		return store.WriteEvent{}, fmt.Errorf("create edges: %w", err)
	}
	s.logger.Debug("edges created", "count", n, "version", v)
	return store.WriteEvent{Count: n, Version: v}, nil
}

// DeleteEdges tombstones the live edges among keys. The count is edges
// tombstoned; already tombstoned or missing edges are not counted.
func (s *Service) DeleteEdges(ctx context.Context, keys []edm.EdgeKey) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, s.metrics, "delete_edges")
	defer func() { done(err) }()

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return store.WriteEvent{}, nil
	}
	v := version.Tombstone(s.clock)
	n, err := s.execEach(ctx, tombstoneEdgeSQL(s.dialect), keys, v)
	if err != nil {
		return store.WriteEvent{}, fmt.Errorf("delete edges: %w", err)
	}
	s.logger.Debug("edges tombstoned", "count", n, "version", v)
	return store.WriteEvent{Count: n, Version: v}, nil
}

// ClearEdges physically removes keys, live or tombstoned. Returns the
// number of rows removed.
func (s *Service) ClearEdges(ctx context.Context, keys []edm.EdgeKey) (n int64, err error) {
	done := metrics.Track(ctx, s.metrics, "clear_edges")
	defer func() { done(err) }()

	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}
	if n, err = s.execEach(ctx, deleteEdgeSQL(s.dialect), keys, 0); err != nil {
		return 0, fmt.Errorf("clear edges: %w", err)
	}
	s.logger.Debug("edges cleared", "count", n)
	return n, nil
}

// execEach runs a prepared per-key statement for every key in one
// transaction. A non-zero v binds the version and its write time as
// parameters 7 and 8.
func (s *Service) execEach(ctx context.Context, query string, keys []edm.EdgeKey, v int64) (int64, error) {
	var n int64
	err := s.st.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, k := range keys {
			args := keyArgs(k)
			if v != 0 {
				args = append(args, v, s.dialect.TimeArg(version.Time(v)))
			}
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("edge %s -> %s via %s: %w", k.Src, k.Dst, k.Edge, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			n += affected
		}
		return nil
	})
	return n, err
}

// GetEdgeKeysOfEntitySet streams the live edges with the entity set at any
// side.
func (s *Service) GetEdgeKeysOfEntitySet(ctx context.Context, entitySetID uuid.UUID, opts ...ScanOption) iter.Seq2[edm.EdgeKey, error] {
	return s.edgeKeys(ctx, "get_edge_keys_of_entity_set", entitySetID, nil, opts)
}

// GetEdgeKeysContainingEntities streams the live edges with one of the
// given entities at any side.
func (s *Service) GetEdgeKeysContainingEntities(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, opts ...ScanOption) iter.Seq2[edm.EdgeKey, error] {
	if len(entityKeyIDs) == 0 {
		return store.Empty[edm.EdgeKey]()
	}
	return s.edgeKeys(ctx, "get_edge_keys_containing_entities", entitySetID, sortedIDs(entityKeyIDs), opts)
}

func (s *Service) edgeKeys(ctx context.Context, op string, entitySetID uuid.UUID, ids []uuid.UUID, opts []ScanOption) iter.Seq2[edm.EdgeKey, error] {
	var o scanOptions
	for _, opt := range opts {
		opt(&o)
	}
	chunks := [][]uuid.UUID{nil}
	if ids != nil {
		chunks = store.Chunk(ids, s.chunkSize)
	}
	return func(yield func(edm.EdgeKey, error) bool) {
		var err error
		done := metrics.Track(ctx, s.metrics, op)
		defer func() { done(err) }()

		for e, serr := range s.streamChunks(ctx, chunks, func(chunk []uuid.UUID) (string, []any) {
			return edgeKeysSQL(s.dialect, entitySetID, chunk, !o.includeTombstoned)
		}) {
			if serr != nil {
				err = serr
				yield(edm.EdgeKey{}, serr)
				return
			}
			if !yield(e.Key, nil) {
				return
			}
		}
	}
}

// streamChunks runs one query per chunk and yields each edge once, even
// when it matches several chunks.
func (s *Service) streamChunks(ctx context.Context, chunks [][]uuid.UUID, render func([]uuid.UUID) (string, []any)) iter.Seq2[Edge, error] {
	return func(yield func(Edge, error) bool) {
		var t *chunkTracker
		if len(chunks) > 1 {
			t = newChunkTracker(chunks)
		}
		for j, chunk := range chunks {
			q, args := render(chunk)
			for e, err := range store.Stream(ctx, s.db, s.logger, q, args, scanEdge) {
				if err != nil {
					yield(Edge{}, err)
					return
				}
				if t != nil && !t.first(e.Key, j) {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// chunkTracker dedupes edges across chunks of distinct ids. It remembers
// only edges with a vertex in a later chunk, and forgets each one after
// the last chunk that can match it.
type chunkTracker struct {
	chunkOf map[uuid.UUID]int
	pending map[edm.EdgeKey]struct{}
}

func newChunkTracker(chunks [][]uuid.UUID) *chunkTracker {
	t := &chunkTracker{chunkOf: make(map[uuid.UUID]int), pending: make(map[edm.EdgeKey]struct{})}
	for i, chunk := range chunks {
		for _, id := range chunk {
			if _, ok := t.chunkOf[id]; !ok {
				t.chunkOf[id] = i
			}
		}
	}
	return t
}

// first reports whether chunk j is the first to yield k.
func (t *chunkTracker) first(k edm.EdgeKey, j int) bool {
	later := false
	for _, id := range [...]uuid.UUID{k.Src.EntityKeyID, k.Dst.EntityKeyID, k.Edge.EntityKeyID} {
		if c, ok := t.chunkOf[id]; ok && c > j {
			later = true
		}
	}
	if _, dup := t.pending[k]; dup {
		if !later {
			delete(t.pending, k)
		}
		return false
	}
	if later {
		t.pending[k] = struct{}{}
	}
	return true
}

func scanEdge(rows *sql.Rows) (Edge, error) {
	var (
		e  Edge
		at querysql.Time
	)
	err := rows.Scan(
		&e.Key.Src.EntitySetID, &e.Key.Src.EntityKeyID,
		&e.Key.Dst.EntitySetID, &e.Key.Dst.EntityKeyID,
		&e.Key.Edge.EntitySetID, &e.Key.Edge.EntityKeyID,
		&e.Version, &at,
	)
	e.LastWrite = at.Time
	return e, err
}
