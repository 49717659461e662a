package data

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
)

// rowFilter selects rows of a property table or of ids for one entity set.
type rowFilter struct {
	entitySetID uuid.UUID
	// ids restricts to entity key ids; nil means the whole entity set.
	ids []uuid.UUID
	// live restricts to rows with a positive version.
	live bool
	// keep excludes rows with these content hashes (property tables only).
	keep [][]byte
	// only restricts to rows with these content hashes (property tables only).
	only [][]byte
}

func (f rowFilter) where(b *querysql.Builder) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = %s", querysql.Quote(schema.ColEntitySetID), b.Arg(f.entitySetID))
	if f.ids != nil {
		fmt.Fprintf(&sb, " AND %s IN %s", querysql.Quote(schema.ColID), querysql.List(b, f.ids))
	}
	if f.live {
		fmt.Fprintf(&sb, " AND %s > 0", querysql.Quote(schema.ColVersion))
	}
	if len(f.keep) > 0 {
		fmt.Fprintf(&sb, " AND %s NOT IN %s", querysql.Quote(schema.ColHash), querysql.List(b, f.keep))
	}
	if len(f.only) > 0 {
		fmt.Fprintf(&sb, " AND %s IN %s", querysql.Quote(schema.ColHash), querysql.List(b, f.only))
	}
	return sb.String()
}

// tombstoneSQL applies the negative version v to every live row matching f.
func tombstoneSQL(d querysql.Dialect, table string, f rowFilter, v int64, at time.Time) (string, []any) {
	f.live = true
	b := querysql.NewBuilder(d)
	b.Write("UPDATE %s SET %s WHERE %s",
		querysql.Quote(table),
		schema.ApplyVersionSet(d, schema.VersionArg(b.Arg(v)), b.Time(at)),
		f.where(b),
	)
	return b.SQL(), b.Args()
}

// deleteSQL physically removes every row matching f.
func deleteSQL(d querysql.Dialect, table string, f rowFilter) (string, []any) {
	b := querysql.NewBuilder(d)
	b.Write("DELETE FROM %s WHERE %s", querysql.Quote(table), f.where(b))
	return b.SQL(), b.Args()
}

// upsertPropertySQL writes one value row. Parameters: 1 entity set id,
// 2 entity key id, 3 content hash, 4 value, 5 version, 6 last write.
func upsertPropertySQL(d querysql.Dialect, pt edm.PropertyType) string {
	table := schema.PropertyTableName(pt.ID)
	v := schema.VersionArg(d.Placeholder(5))
	empty := d.EmptyUUIDSet()
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s) ON CONFLICT (%s, %s, %s) DO UPDATE SET %s",
		querysql.Quote(table),
		querysql.Quote(schema.ColEntitySetID), querysql.Quote(schema.ColID), querysql.Quote(schema.ColHash),
		querysql.Quote(schema.ValueColumn(pt)),
		querysql.Quote(schema.ColVersion), querysql.Quote(schema.ColVersions), querysql.Quote(schema.ColLastWrite),
		querysql.Quote(schema.ColReaders), querysql.Quote(schema.ColWriters), querysql.Quote(schema.ColOwners),
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4),
		v, d.VersionsOf(v), d.Placeholder(6),
		empty, empty, empty,
		querysql.Quote(schema.ColEntitySetID), querysql.Quote(schema.ColID), querysql.Quote(schema.ColHash),
		schema.UpsertVersionSet(d, table),
	)
}

// upsertIDsSQL writes one ids row. Parameters: 1 entity set id, 2 entity
// key id, 3 version, 4 last write.
func upsertIDsSQL(d querysql.Dialect) string {
	v := schema.VersionArg(d.Placeholder(3))
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (%s, %s, %s, %s, %s) ON CONFLICT (%s, %s) DO UPDATE SET %s",
		querysql.Quote(schema.IDsTable),
		querysql.Quote(schema.ColEntitySetID), querysql.Quote(schema.ColID),
		querysql.Quote(schema.ColVersion), querysql.Quote(schema.ColVersions), querysql.Quote(schema.ColLastWrite),
		d.Placeholder(1), d.Placeholder(2), v, d.VersionsOf(v), d.Placeholder(4),
		querysql.Quote(schema.ColEntitySetID), querysql.Quote(schema.ColID),
		schema.UpsertVersionSet(d, schema.IDsTable),
	)
}

// entityQuery selects live ids rows of an entity set, with one JSON array
// column per property type (aliased p0, p1, ...). A nil ids selects the
// whole entity set.
func entityQuery(d querysql.Dialect, entitySetID uuid.UUID, ids []uuid.UUID, pts []edm.PropertyType) (string, []any) {
	b := querysql.NewBuilder(d)
	b.Write("SELECT i.%s, i.%s, i.%s, i.%s",
		querysql.Quote(schema.ColEntitySetID), querysql.Quote(schema.ColID),
		querysql.Quote(schema.ColLastWrite), querysql.Quote(schema.ColLastIndex))
	for n, pt := range pts {
		b.Write(", %s AS p%d", schema.LiveValuesSubquery(d, pt, "i"), n)
	}
	b.Write(" FROM %s AS i WHERE i.%s = %s",
		querysql.Quote(schema.IDsTable), querysql.Quote(schema.ColEntitySetID), b.Arg(entitySetID))
	if ids != nil {
		b.Write(" AND i.%s IN %s", querysql.Quote(schema.ColID), querysql.List(b, ids))
	}
	b.Write(" AND i.%s > 0 ORDER BY i.%s", querysql.Quote(schema.ColVersion), querysql.Quote(schema.ColID))
	return b.SQL(), b.Args()
}

// valueSelectSQL selects the raw value column of rows matching f.
func valueSelectSQL(d querysql.Dialect, pt edm.PropertyType, f rowFilter) (string, []any) {
	b := querysql.NewBuilder(d)
	b.Write("SELECT %s FROM %s WHERE %s",
		querysql.Quote(schema.ValueColumn(pt)), querysql.Quote(schema.PropertyTableName(pt.ID)), f.where(b))
	return b.SQL(), b.Args()
}
