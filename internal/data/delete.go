package data

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/version"
)

// ClearEntitySet tombstones every live row of the authorized property
// types for the entity set. The entity set's ids rows are tombstoned too
// when authorized spans the whole entity set. The count is property rows
// affected.
func (d *Datastore) ClearEntitySet(ctx context.Context, entitySetID uuid.UUID, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "clear_entity_set")
	defer func() { done(err) }()
	return d.tombstone(ctx, entitySetID, nil, authorized, d.coversEntitySet(entitySetID, authorized))
}

// ClearEntities tombstones the live rows of the authorized property types
// for the given entities. Their ids rows are tombstoned too when
// authorized spans the whole entity set; otherwise values of other
// property types stay visible.
func (d *Datastore) ClearEntities(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "clear_entities")
	defer func() { done(err) }()
	if len(entityKeyIDs) == 0 {
		return store.WriteEvent{}, nil
	}
	return d.tombstone(ctx, entitySetID, entityKeyIDs, authorized, d.coversEntitySet(entitySetID, authorized))
}

// ClearEntityProperties tombstones the live values of the given property
// types only. The entities themselves stay live.
func (d *Datastore) ClearEntityProperties(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, propertyTypes edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "clear_entity_properties")
	defer func() { done(err) }()
	if len(entityKeyIDs) == 0 {
		return store.WriteEvent{}, nil
	}
	return d.tombstone(ctx, entitySetID, entityKeyIDs, propertyTypes, false)
}

// DeleteEntitySetData physically removes every row of the authorized
// property types for the entity set, and its ids rows when authorized
// spans the whole entity set. History is lost.
func (d *Datastore) DeleteEntitySetData(ctx context.Context, entitySetID uuid.UUID, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "delete_entity_set_data")
	defer func() { done(err) }()
	return d.remove(ctx, entitySetID, nil, authorized, d.coversEntitySet(entitySetID, authorized))
}

// DeleteEntities physically removes the given entities' rows of the
// authorized property types, and their ids rows when authorized spans the
// whole entity set. History is lost.
func (d *Datastore) DeleteEntities(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "delete_entities")
	defer func() { done(err) }()
	if len(entityKeyIDs) == 0 {
		return store.WriteEvent{}, nil
	}
	return d.remove(ctx, entitySetID, entityKeyIDs, authorized, d.coversEntitySet(entitySetID, authorized))
}

// DeleteEntityProperties physically removes the rows of the given
// property types only.
func (d *Datastore) DeleteEntityProperties(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, propertyTypes edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "delete_entity_properties")
	defer func() { done(err) }()
	if len(entityKeyIDs) == 0 {
		return store.WriteEvent{}, nil
	}
	return d.remove(ctx, entitySetID, entityKeyIDs, propertyTypes, false)
}

// coversEntitySet reports whether pts includes every property type of the
// entity set. Only then may an entity-wide removal retire ids rows.
func (d *Datastore) coversEntitySet(entitySetID uuid.UUID, pts edm.PropertyTypes) bool {
	if d.scopes == nil || len(pts) == 0 {
		return false
	}
	all, err := d.scopes.PropertyTypesOf(entitySetID)
	if err != nil {
		d.logger.Debug("entity set scope unknown, keeping ids rows", "entity_set_id", entitySetID, "error", err)
		return false
	}
	for id := range all {
		if _, ok := pts[id]; !ok {
			return false
		}
	}
	return true
}

// idChunks dedupes ids, sorts them by key and splits them for binding, so
// chunked reads come back in one global key order. A nil ids yields one
// nil chunk, which rowFilter reads as "the whole entity set".
func (d *Datastore) idChunks(ids []uuid.UUID) [][]uuid.UUID {
	if ids == nil {
		return [][]uuid.UUID{nil}
	}
	ids = uniqueIDs(ids)
	slices.SortFunc(ids, compareIDs)
	return store.Chunk(ids, d.chunkSize)
}

func (d *Datastore) tombstone(ctx context.Context, entitySetID uuid.UUID, ids []uuid.UUID, pts edm.PropertyTypes, withIDs bool) (store.WriteEvent, error) {
	if len(pts) == 0 {
		return store.WriteEvent{}, nil
	}
	if err := d.registry.RequireAll(ctx, pts); err != nil {
		return store.WriteEvent{}, err
	}
	v := version.Tombstone(d.clock)
	at := version.Time(v)
	ev := store.WriteEvent{Version: v}

	chunks := d.idChunks(ids)
	for _, pt := range sortedTypes(pts) {
		table := schema.PropertyTableName(pt.ID)
		for _, chunk := range chunks {
			n, err := d.exec(ctx, d.db)(tombstoneSQL(d.dialect, table, rowFilter{entitySetID: entitySetID, ids: chunk}, v, at))
			if err != nil {
				return ev, fmt.Errorf("tombstone %s: %w", pt.Type, err)
			}
			ev.Count += n
		}
	}
	if withIDs {
		for _, chunk := range chunks {
			if _, err := d.exec(ctx, d.db)(tombstoneSQL(d.dialect, schema.IDsTable, rowFilter{entitySetID: entitySetID, ids: chunk}, v, at)); err != nil {
				return ev, fmt.Errorf("tombstone ids: %w", err)
			}
		}
	}
	d.logger.Debug("entities tombstoned", "entity_set_id", entitySetID, "version", v, "rows", ev.Count)
	return ev, nil
}

func (d *Datastore) remove(ctx context.Context, entitySetID uuid.UUID, ids []uuid.UUID, pts edm.PropertyTypes, withIDs bool) (store.WriteEvent, error) {
	if len(pts) == 0 {
		return store.WriteEvent{}, nil
	}
	if err := d.registry.RequireAll(ctx, pts); err != nil {
		return store.WriteEvent{}, err
	}
	var ev store.WriteEvent

	chunks := d.idChunks(ids)
	for _, pt := range sortedTypes(pts) {
		table := schema.PropertyTableName(pt.ID)
		for _, chunk := range chunks {
			f := rowFilter{entitySetID: entitySetID, ids: chunk}
			var keys []string
			if d.blobs != nil && pt.Datatype == edm.Binary {
				var err error
				if keys, err = d.blobKeys(ctx, pt, f); err != nil {
					return ev, err
				}
			}
			n, err := d.exec(ctx, d.db)(deleteSQL(d.dialect, table, f))
			if err != nil {
				return ev, fmt.Errorf("delete %s: %w", pt.Type, err)
			}
			ev.Count += n
			for _, key := range keys {
				if err := d.blobs.Delete(ctx, key); err != nil {
					d.logger.Warn("failed to delete offloaded value", "key", key, "error", err)
				}
			}
		}
	}
	if withIDs {
		for _, chunk := range chunks {
			if _, err := d.exec(ctx, d.db)(deleteSQL(d.dialect, schema.IDsTable, rowFilter{entitySetID: entitySetID, ids: chunk})); err != nil {
				return ev, fmt.Errorf("delete ids: %w", err)
			}
		}
	}
	d.logger.Debug("entities deleted", "entity_set_id", entitySetID, "rows", ev.Count)
	return ev, nil
}

// blobKeys lists the offloaded objects referenced by rows matching f.
func (d *Datastore) blobKeys(ctx context.Context, pt edm.PropertyType, f rowFilter) ([]string, error) {
	q, args := valueSelectSQL(d.dialect, pt, f)
	keys, err := store.Collect(store.Stream(ctx, d.db, d.logger, q, args, func(rows *sql.Rows) (string, error) {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return "", err
		}
		key, _ := blob.ParseRef(raw)
		return key, nil
	}))
	if err != nil {
		return nil, fmt.Errorf("list offloaded values: %w", err)
	}
	out := keys[:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// exec returns a func that runs one rendered statement on db and reports
// rows affected. It composes with the (sql, args) pairs renderers return.
func (d *Datastore) exec(ctx context.Context, db execer) func(string, []any) (int64, error) {
	return func(q string, args []any) (int64, error) {
		res, err := db.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
}
