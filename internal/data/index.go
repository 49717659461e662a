package data

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/metrics"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
)

// SetLinkingIDs records identity resolution output: each entity's linking
// id. Entities without an ids row are skipped. Returns rows updated.
func (d *Datastore) SetLinkingIDs(ctx context.Context, links map[edm.EntityDataKey]uuid.UUID) (n int64, err error) {
	done := metrics.Track(ctx, d.metrics, "set_linking_ids")
	defer func() { done(err) }()

	keys := make([]edm.EntityDataKey, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b edm.EntityDataKey) int {
		return cmp.Compare(a.String(), b.String())
	})

	q := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s AND %s = %s",
		querysql.Quote(schema.IDsTable),
		querysql.Quote(schema.ColLinkingID), d.dialect.Placeholder(1),
		querysql.Quote(schema.ColEntitySetID), d.dialect.Placeholder(2),
		querysql.Quote(schema.ColID), d.dialect.Placeholder(3),
	)
	err = d.st.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range keys {
			res, err := stmt.ExecContext(ctx, links[k], k.EntitySetID, k.EntityKeyID)
			if err != nil {
				return fmt.Errorf("set linking id of %s: %w", k, err)
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

// MarkIndexed records that the given entities were indexed at at.
func (d *Datastore) MarkIndexed(ctx context.Context, entitySetID uuid.UUID, entityKeyIDs []uuid.UUID, at time.Time) (n int64, err error) {
	done := metrics.Track(ctx, d.metrics, "mark_indexed")
	defer func() { done(err) }()

	for _, chunk := range store.Chunk(uniqueIDs(entityKeyIDs), d.chunkSize) {
		b := querysql.NewBuilder(d.dialect)
		b.Write("UPDATE %s SET %s = %s WHERE %s",
			querysql.Quote(schema.IDsTable),
			querysql.Quote(schema.ColLastIndex), b.Time(at),
			rowFilter{entitySetID: entitySetID, ids: chunk}.where(b),
		)
		affected, err := d.exec(ctx, d.db)(b.SQL(), b.Args())
		if err != nil {
			return n, fmt.Errorf("mark indexed: %w", err)
		}
		n += affected
	}
	return n, nil
}

// GetDirtyEntityKeyIDs streams live entities written since they were last
// indexed, or never indexed.
func (d *Datastore) GetDirtyEntityKeyIDs(ctx context.Context, entitySetID uuid.UUID) iter.Seq2[uuid.UUID, error] {
	b := querysql.NewBuilder(d.dialect)
	b.Write("SELECT %s FROM %s WHERE %s AND (%s IS NULL OR %s < %s) ORDER BY %s",
		querysql.Quote(schema.ColID),
		querysql.Quote(schema.IDsTable),
		rowFilter{entitySetID: entitySetID, live: true}.where(b),
		querysql.Quote(schema.ColLastIndex), querysql.Quote(schema.ColLastIndex), querysql.Quote(schema.ColLastWrite),
		querysql.Quote(schema.ColID),
	)
	return store.Stream(ctx, d.db, d.logger, b.SQL(), b.Args(), func(rows *sql.Rows) (uuid.UUID, error) {
		var id uuid.UUID
		err := rows.Scan(&id)
		return id, err
	})
}
