// Package deletion removes entities together with the edges that touch
// them and the association entities those edges carry.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lattice/internal/data"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/store"
)

// ErrInvalidDeleteType is returned for a delete type other than Soft or
// Hard.
var ErrInvalidDeleteType = errors.New("invalid delete type")

// Result reports what a deletion touched. Entity and association counts
// are property rows affected, as reported by the datastore.
type Result struct {
	EdgesAffected        int64 `json:"edges_affected"`
	EntitiesAffected     int64 `json:"entities_affected"`
	AssociationsAffected int64 `json:"associations_affected"`
}

// Service coordinates the datastore and the graph for deletions.
type Service struct {
	data   *data.Datastore
	graph  *graph.Service
	logger *slog.Logger
}

// New creates a deletion service.
func New(ds *data.Datastore, gs *graph.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{data: ds, graph: gs, logger: logger}
}

// ClearOrDeleteEntitiesAndNeighbors removes the given entities, every edge
// touching them, and the association entities of those edges.
//
// A soft delete tombstones everything and keeps history; a hard delete
// removes rows physically, tombstoned edges included. Association
// entities are processed per association entity set, concurrently, with
// that set's authorized property types; the entities themselves go last.
// An association entity set with no authorized property types keeps its
// entities, and only an entity set's full property scope retires ids rows.
func (s *Service) ClearOrDeleteEntitiesAndNeighbors(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, deleteType edm.DeleteType, authorized map[uuid.UUID]edm.PropertyTypes) (Result, error) {
	var res Result
	if deleteType != edm.SoftDelete && deleteType != edm.HardDelete {
		return res, fmt.Errorf("%q: %w", deleteType, ErrInvalidDeleteType)
	}
	if len(entityKeyIDs) == 0 {
		return res, nil
	}

	var scan []graph.ScanOption
	if deleteType == edm.HardDelete {
		scan = append(scan, graph.IncludeTombstoned())
	}
	// Collected up front: the writes below must not run while a cursor is
	// open on a single-connection store.
	keys, err := store.Collect(s.graph.GetEdgeKeysContainingEntities(ctx, entitySetID, entityKeyIDs, scan...))
	if err != nil {
		return res, fmt.Errorf("find edges: %w", err)
	}

	targets := make(map[uuid.UUID]struct{}, len(entityKeyIDs))
	for _, id := range entityKeyIDs {
		targets[id] = struct{}{}
	}
	associations := make(map[uuid.UUID][]uuid.UUID)
	seen := make(map[edm.EntityDataKey]struct{})
	for _, k := range keys {
		if _, own := targets[k.Edge.EntityKeyID]; own && k.Edge.EntitySetID == entitySetID {
			continue
		}
		if _, dup := seen[k.Edge]; dup {
			continue
		}
		seen[k.Edge] = struct{}{}
		associations[k.Edge.EntitySetID] = append(associations[k.Edge.EntitySetID], k.Edge.EntityKeyID)
	}

	if deleteType == edm.HardDelete {
		res.EdgesAffected, err = s.graph.ClearEdges(ctx, keys)
	} else {
		var ev store.WriteEvent
		ev, err = s.graph.DeleteEdges(ctx, keys)
		res.EdgesAffected = ev.Count
	}
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for assocSetID, ids := range associations {
		g.Go(func() error {
			ev, err := s.remove(gctx, assocSetID, ids, deleteType, authorized[assocSetID])
			if err != nil {
				return fmt.Errorf("association entity set %s: %w", assocSetID, err)
			}
			mu.Lock()
			res.AssociationsAffected += ev.Count
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	ev, err := s.remove(ctx, entitySetID, entityKeyIDs, deleteType, authorized[entitySetID])
	if err != nil {
		return res, err
	}
	res.EntitiesAffected = ev.Count

	s.logger.Info("entities and neighbors removed",
		"entity_set_id", entitySetID,
		"entities", len(entityKeyIDs),
		"delete_type", deleteType,
		"edges", res.EdgesAffected,
		"association_sets", len(associations),
	)
	return res, nil
}

func (s *Service) remove(ctx context.Context, entitySetID uuid.UUID, ids []uuid.UUID, deleteType edm.DeleteType, pts edm.PropertyTypes) (store.WriteEvent, error) {
	if deleteType == edm.HardDelete {
		return s.data.DeleteEntities(ctx, entitySetID, ids, pts)
	}
	return s.data.ClearEntities(ctx, entitySetID, ids, pts)
}
