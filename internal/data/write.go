package data

import (
	"context"
	"database/sql"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/codec"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
	"github.com/roach88/lattice/internal/version"
)

type writeMode int

const (
	// modeReplace tombstones every other live value of every authorized
	// property type.
	modeReplace writeMode = iota
	// modePartial tombstones other live values only of the property types
	// in the payload.
	modePartial
	// modeMerge never tombstones.
	modeMerge
)

// encodedRow is a value ready to bind.
type encodedRow struct {
	hash value.Hash
	arg  any
}

// ReplaceEntity makes values the entity's complete state across the
// authorized property types: every live value not in values is
// tombstoned, and each new value is written idempotently.
func (d *Datastore) ReplaceEntity(ctx context.Context, entitySetID, entityKeyID uuid.UUID, values PropertyValues, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "replace_entity")
	defer func() { done(err) }()
	return d.writeEntity(ctx, entitySetID, entityKeyID, values, authorized, modeReplace)
}

// PartialReplaceEntity replaces only the property types present in values.
// Property types absent from the payload are untouched; a property type
// present with no values is cleared.
func (d *Datastore) PartialReplaceEntity(ctx context.Context, entitySetID, entityKeyID uuid.UUID, values PropertyValues, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "partial_replace_entity")
	defer func() { done(err) }()
	return d.writeEntity(ctx, entitySetID, entityKeyID, values, authorized, modePartial)
}

// MergeIntoEntity adds values without tombstoning anything.
func (d *Datastore) MergeIntoEntity(ctx context.Context, entitySetID, entityKeyID uuid.UUID, values PropertyValues, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "merge_into_entity")
	defer func() { done(err) }()
	return d.writeEntity(ctx, entitySetID, entityKeyID, values, authorized, modeMerge)
}

// ReplaceEntityProperties replaces individual stored values identified by
// content hash, leaving sibling values alone. A replacement with a nil New
// only removes the old value.
func (d *Datastore) ReplaceEntityProperties(ctx context.Context, entitySetID, entityKeyID uuid.UUID, replacements map[uuid.UUID][]HashReplacement, authorized edm.PropertyTypes) (ev store.WriteEvent, err error) {
	done := metrics.Track(ctx, d.metrics, "replace_entity_properties")
	defer func() { done(err) }()

	values := make(PropertyValues, len(replacements))
	for ptID, reps := range replacements {
		values[ptID] = []value.Value{}
		for _, r := range reps {
			if r.New != nil {
				values[ptID] = append(values[ptID], r.New)
			}
		}
	}
	if err := validatePayload(values, authorized); err != nil {
		return store.WriteEvent{}, err
	}
	touched := make(edm.PropertyTypes, len(values))
	for ptID := range values {
		touched[ptID] = authorized[ptID]
	}
	if len(touched) == 0 {
		return store.WriteEvent{}, nil
	}
	if err := d.registry.RequireAll(ctx, touched); err != nil {
		return store.WriteEvent{}, err
	}

	v := d.clock.Next()
	ev = store.WriteEvent{Version: v}
	for _, pt := range sortedTypes(touched) {
		rows, err := d.encodeValues(ctx, entitySetID, entityKeyID, pt, values[pt.ID])
		if err != nil {
			return ev, err
		}
		written := make(map[value.Hash]bool, len(rows))
		for _, r := range rows {
			written[r.hash] = true
		}
		var olds [][]byte
		for _, r := range replacements[pt.ID] {
			if !written[r.Old] {
				olds = append(olds, r.Old.Bytes())
			}
		}
		var tomb *rowFilter
		if len(olds) > 0 {
			tomb = &rowFilter{entitySetID: entitySetID, ids: []uuid.UUID{entityKeyID}, only: olds}
		}
		n, err := d.writeProperty(ctx, entitySetID, entityKeyID, pt, rows, tomb, v)
		if err != nil {
			return ev, fmt.Errorf("write %s: %w", pt.Type, err)
		}
		ev.Count += n
	}
	if err := d.upsertIDs(ctx, entitySetID, []uuid.UUID{entityKeyID}, v); err != nil {
		return ev, err
	}
	return ev, nil
}

func (d *Datastore) writeEntity(ctx context.Context, entitySetID, entityKeyID uuid.UUID, values PropertyValues, authorized edm.PropertyTypes, mode writeMode) (store.WriteEvent, error) {
	if err := validatePayload(values, authorized); err != nil {
		return store.WriteEvent{}, err
	}

	touched := make(edm.PropertyTypes)
	if mode == modeReplace {
		maps.Copy(touched, authorized)
	}
	for ptID := range values {
		touched[ptID] = authorized[ptID]
	}
	if len(touched) == 0 {
		return store.WriteEvent{}, nil
	}
	// Every table must exist before anything is written.
	if err := d.registry.RequireAll(ctx, touched); err != nil {
		return store.WriteEvent{}, err
	}

	v := d.clock.Next()
	ev := store.WriteEvent{Version: v}
	for _, pt := range sortedTypes(touched) {
		rows, err := d.encodeValues(ctx, entitySetID, entityKeyID, pt, values[pt.ID])
		if err != nil {
			return ev, err
		}
		var tomb *rowFilter
		if mode != modeMerge {
			keep := make([][]byte, len(rows))
			for i, r := range rows {
				keep[i] = r.hash.Bytes()
			}
			tomb = &rowFilter{entitySetID: entitySetID, ids: []uuid.UUID{entityKeyID}, keep: keep}
		}
		n, err := d.writeProperty(ctx, entitySetID, entityKeyID, pt, rows, tomb, v)
		if err != nil {
			return ev, fmt.Errorf("write %s: %w", pt.Type, err)
		}
		ev.Count += n
	}
	if err := d.upsertIDs(ctx, entitySetID, []uuid.UUID{entityKeyID}, v); err != nil {
		return ev, err
	}
	d.logger.Debug("entity written",
		"entity_set_id", entitySetID,
		"entity_key_id", entityKeyID,
		"version", v,
		"rows", ev.Count,
	)
	return ev, nil
}

func validatePayload(values PropertyValues, authorized edm.PropertyTypes) error {
	for ptID, vs := range values {
		pt, ok := authorized[ptID]
		if !ok {
			return fmt.Errorf("property type %s: %w", ptID, ErrUnknownPropertyType)
		}
		for _, v := range vs {
			if v == nil {
				return fmt.Errorf("%s: nil value: %w", pt.Type, ErrDatatypeMismatch)
			}
			if v.Datatype() != pt.Datatype {
				return fmt.Errorf("%s: expected %s, got %s: %w", pt.Type, pt.Datatype, v.Datatype(), ErrDatatypeMismatch)
			}
			if f, ok := v.(value.Double); ok && !codec.Finite(f) {
				return fmt.Errorf("%s: %v is not a storable %s: %w", pt.Type, float64(f), pt.Datatype, ErrDatatypeMismatch)
			}
		}
	}
	return nil
}

// encodeValues hashes and encodes vs, dropping duplicates. Binary values
// are offloaded first when a blob store is configured.
func (d *Datastore) encodeValues(ctx context.Context, entitySetID, entityKeyID uuid.UUID, pt edm.PropertyType, vs []value.Value) ([]encodedRow, error) {
	rows := make([]encodedRow, 0, len(vs))
	seen := make(map[value.Hash]struct{}, len(vs))
	for _, v := range vs {
		h := value.ContentHash(v)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		arg, err := codec.Encode(d.dialect, v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", pt.Type, err)
		}
		if d.blobs != nil && pt.Datatype == edm.Binary {
			key := blob.Key(entitySetID, entityKeyID, h)
			if err := d.blobs.Put(ctx, key, []byte(v.(value.Binary))); err != nil {
				return nil, fmt.Errorf("offload %s: %w", pt.Type, err)
			}
			arg = blob.Ref(key)
		}
		rows = append(rows, encodedRow{hash: h, arg: arg})
	}
	return rows, nil
}

// writeProperty tombstones the rows selected by tomb (if any) with -v and
// upserts rows at v, in one transaction.
func (d *Datastore) writeProperty(ctx context.Context, entitySetID, entityKeyID uuid.UUID, pt edm.PropertyType, rows []encodedRow, tomb *rowFilter, v int64) (int64, error) {
	at := version.Time(v)
	table := schema.PropertyTableName(pt.ID)
	var count int64
	err := d.st.InTx(ctx, func(tx *sql.Tx) error {
		if tomb != nil {
			q, args := tombstoneSQL(d.dialect, table, *tomb, -v, at)
			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return fmt.Errorf("tombstone: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			count += n
		}
		if len(rows) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, upsertPropertySQL(d.dialect, pt))
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, entitySetID, entityKeyID, r.hash.Bytes(), r.arg, v, d.dialect.TimeArg(at)); err != nil {
				return fmt.Errorf("upsert: %w", err)
			}
			count++
		}
		return nil
	})
	return count, err
}

// upsertIDs records a write of version v for each entity.
func (d *Datastore) upsertIDs(ctx context.Context, entitySetID uuid.UUID, ids []uuid.UUID, v int64) error {
	at := d.dialect.TimeArg(version.Time(v))
	return d.st.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertIDsSQL(d.dialect))
		if err != nil {
			return fmt.Errorf("prepare ids upsert: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, entitySetID, id, v, at); err != nil {
				return fmt.Errorf("upsert ids: %w", err)
			}
		}
		return nil
	})
}
