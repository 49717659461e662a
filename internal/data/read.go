package data

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lattice/internal/blob"
	"github.com/roach88/lattice/internal/codec"
	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/value"
)

// MetadataField selects a system value to include in read results.
type MetadataField int

const (
	// LastWrite adds openlattice.@lastWrite.
	LastWrite MetadataField = iota + 1
	// LastIndex adds openlattice.@lastIndex when the entity was indexed.
	LastIndex
	// EntityKeyID adds openlattice.@id.
	EntityKeyID
)

type readOptions struct {
	metadata map[MetadataField]bool
}

// ReadOption configures a read.
type ReadOption func(*readOptions)

// WithMetadata includes system metadata in each entity's property map.
func WithMetadata(fields ...MetadataField) ReadOption {
	return func(o *readOptions) {
		for _, f := range fields {
			o.metadata[f] = true
		}
	}
}

func newReadOptions(opts []ReadOption) readOptions {
	o := readOptions{metadata: map[MetadataField]bool{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetEntity returns the live values of one entity. A missing or cleared
// entity yields an empty map, not an error.
func (d *Datastore) GetEntity(ctx context.Context, entitySetID, entityKeyID uuid.UUID, authorized edm.PropertyTypes, opts ...ReadOption) (Entity, error) {
	for rec, err := range d.GetEntities(ctx, entitySetID, []uuid.UUID{entityKeyID}, authorized, opts...) {
		if err != nil {
			return nil, err
		}
		return rec.Properties, nil
	}
	return Entity{}, nil
}

// GetEntities streams the live entities among ids, ordered by entity key
// id. Ids without a live entity are skipped. Each range over the result
// runs the queries again.
func (d *Datastore) GetEntities(ctx context.Context, entitySetID uuid.UUID, ids []uuid.UUID, authorized edm.PropertyTypes, opts ...ReadOption) iter.Seq2[Record, error] {
	if len(ids) == 0 {
		return store.Empty[Record]()
	}
	return d.streamEntities(ctx, "get_entities", entitySetID, ids, authorized, newReadOptions(opts))
}

// GetEntitySetData streams every live entity of an entity set.
func (d *Datastore) GetEntitySetData(ctx context.Context, entitySetID uuid.UUID, authorized edm.PropertyTypes, opts ...ReadOption) iter.Seq2[Record, error] {
	return d.streamEntities(ctx, "get_entity_set_data", entitySetID, nil, authorized, newReadOptions(opts))
}

// GetEntitiesAcrossEntitySets reads entities from several entity sets,
// applying each set's authorized property types independently. Entity
// sets without an authorized set contribute nothing.
func (d *Datastore) GetEntitiesAcrossEntitySets(ctx context.Context, idsByEntitySet map[uuid.UUID][]uuid.UUID, authorizedByEntitySet map[uuid.UUID]edm.PropertyTypes, opts ...ReadOption) (out map[edm.EntityDataKey]Entity, err error) {
	done := metrics.Track(ctx, d.metrics, "get_entities_across_entity_sets")
	defer func() { done(err) }()

	var mu sync.Mutex
	out = make(map[edm.EntityDataKey]Entity)
	g, gctx := errgroup.WithContext(ctx)
	for esID, ids := range idsByEntitySet {
		authorized := authorizedByEntitySet[esID]
		if len(authorized) == 0 || len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			recs, err := store.Collect(d.GetEntities(gctx, esID, ids, authorized, opts...))
			if err != nil {
				return fmt.Errorf("entity set %s: %w", esID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rec := range recs {
				out[rec.Key] = rec.Properties
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPropertyMetadata returns every stored row of one property type for
// one entity, tombstoned rows included, ordered by content hash.
func (d *Datastore) GetPropertyMetadata(ctx context.Context, entitySetID, entityKeyID uuid.UUID, pt edm.PropertyType) (out []PropertyMetadata, err error) {
	done := metrics.Track(ctx, d.metrics, "get_property_metadata")
	defer func() { done(err) }()

	if err := d.registry.Require(ctx, pt); err != nil {
		return nil, err
	}
	b := querysql.NewBuilder(d.dialect)
	b.Write("SELECT %s, %s, %s, %s, %s FROM %s WHERE %s ORDER BY %s",
		querysql.Quote(schema.ColHash), querysql.Quote(schema.ValueColumn(pt)),
		querysql.Quote(schema.ColVersion), querysql.Quote(schema.ColVersions), querysql.Quote(schema.ColLastWrite),
		querysql.Quote(schema.PropertyTableName(pt.ID)),
		rowFilter{entitySetID: entitySetID, ids: []uuid.UUID{entityKeyID}}.where(b),
		querysql.Quote(schema.ColHash),
	)
	return store.Collect(store.Stream(ctx, d.db, d.logger, b.SQL(), b.Args(), func(rows *sql.Rows) (PropertyMetadata, error) {
		var (
			m         PropertyMetadata
			rawHash   []byte
			raw       any
			lastWrite querysql.Time
		)
		if err := rows.Scan(&rawHash, &raw, &m.Version, d.dialect.ScanVersions(&m.Versions), &lastWrite); err != nil {
			return m, err
		}
		h, err := value.HashFromBytes(rawHash)
		if err != nil {
			return m, err
		}
		if pt.Datatype == edm.Binary {
			if payload, ok := raw.([]byte); ok {
				if raw, err = d.resolveBlob(ctx, payload); err != nil {
					return m, err
				}
			}
		}
		v, err := codec.Decode(pt.Datatype, raw)
		if err != nil {
			return m, err
		}
		m.Hash, m.Value, m.LastWrite = h, v, lastWrite.Time
		return m, nil
	}))
}

func (d *Datastore) streamEntities(ctx context.Context, op string, entitySetID uuid.UUID, ids []uuid.UUID, authorized edm.PropertyTypes, o readOptions) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var err error
		done := metrics.Track(ctx, d.metrics, op)
		defer func() { done(err) }()

		if len(authorized) == 0 {
			return
		}
		if err = d.registry.RequireAll(ctx, authorized); err != nil {
			yield(Record{}, err)
			return
		}
		pts := sortedTypes(authorized)
		scan := d.entityScanner(ctx, pts, o)
		for _, chunk := range d.idChunks(ids) {
			q, args := entityQuery(d.dialect, entitySetID, chunk, pts)
			for rec, serr := range store.Stream(ctx, d.db, d.logger, q, args, scan) {
				if serr != nil {
					err = serr
					yield(Record{}, serr)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (d *Datastore) entityScanner(ctx context.Context, pts []edm.PropertyType, o readOptions) store.ScanFunc[Record] {
	return func(rows *sql.Rows) (Record, error) {
		var (
			key                  edm.EntityDataKey
			lastWrite, lastIndex querysql.Time
		)
		raws := make([][]byte, len(pts))
		dest := make([]any, 0, 4+len(pts))
		dest = append(dest, &key.EntitySetID, &key.EntityKeyID, &lastWrite, &lastIndex)
		for i := range raws {
			dest = append(dest, &raws[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return Record{}, err
		}

		rec := Record{Key: key, Properties: Entity{}}
		for i, pt := range pts {
			vals, err := codec.DecodeArray(pt.Datatype, raws[i])
			if err == nil && pt.Datatype == edm.Binary {
				vals, err = d.resolveBlobs(ctx, vals)
			}
			if err != nil {
				d.logger.Warn("omitting undecodable property",
					"entity_key_id", key.EntityKeyID,
					"property_type_id", pt.ID,
					"datatype", pt.Datatype,
					"error", err,
				)
				continue
			}
			if len(vals) > 0 {
				rec.Properties[pt.Type] = vals
			}
		}

		if o.metadata[EntityKeyID] {
			rec.Properties[edm.IDFQN] = []value.Value{value.Guid(key.EntityKeyID)}
		}
		if o.metadata[LastWrite] {
			rec.Properties[edm.LastWriteFQN] = []value.Value{value.DateTimeOffset(lastWrite.Time)}
		}
		if o.metadata[LastIndex] && !lastIndex.IsZero() {
			rec.Properties[edm.LastIndexFQN] = []value.Value{value.DateTimeOffset(lastIndex.Time)}
		}
		return rec, nil
	}
}

// resolveBlobs replaces blob references with their payloads.
func (d *Datastore) resolveBlobs(ctx context.Context, vals []value.Value) ([]value.Value, error) {
	for i, v := range vals {
		payload, err := d.resolveBlob(ctx, []byte(v.(value.Binary)))
		if err != nil {
			return nil, err
		}
		vals[i] = value.Binary(payload)
	}
	return vals, nil
}

func (d *Datastore) resolveBlob(ctx context.Context, raw []byte) ([]byte, error) {
	key, ok := blob.ParseRef(raw)
	if !ok {
		return raw, nil
	}
	if d.blobs == nil {
		return nil, fmt.Errorf("value references %s but no blob store is configured", key)
	}
	return d.blobs.Get(ctx, key)
}
