package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
)

var edgeColumns = func() string {
	cols := make([]string, 0, len(schema.EdgeKeyColumns)+2)
	for _, c := range schema.EdgeKeyColumns {
		cols = append(cols, "e."+querysql.Quote(c))
	}
	cols = append(cols, "e."+querysql.Quote(schema.ColVersion), "e."+querysql.Quote(schema.ColLastWrite))
	return strings.Join(cols, ", ")
}()

// keyMatch renders the six key columns compared against placeholders 1..6.
func keyMatch(d querysql.Dialect) string {
	parts := make([]string, len(schema.EdgeKeyColumns))
	for i, c := range schema.EdgeKeyColumns {
		parts[i] = fmt.Sprintf("%s = %s", querysql.Quote(c), d.Placeholder(i+1))
	}
	return strings.Join(parts, " AND ")
}

// upsertEdgeSQL writes one edge. Parameters: 1..6 the key, 7 version,
// 8 last write.
func upsertEdgeSQL(d querysql.Dialect) string {
	cols := make([]string, 0, len(schema.EdgeKeyColumns)+3)
	vals := make([]string, 0, cap(cols))
	for i, c := range schema.EdgeKeyColumns {
		cols = append(cols, querysql.Quote(c))
		vals = append(vals, d.Placeholder(i+1))
	}
	v := schema.VersionArg(d.Placeholder(7))
	cols = append(cols, querysql.Quote(schema.ColVersion), querysql.Quote(schema.ColVersions), querysql.Quote(schema.ColLastWrite))
	vals = append(vals, v, d.VersionsOf(v), d.Placeholder(8))

	conflict := make([]string, len(schema.EdgeKeyColumns))
	for i, c := range schema.EdgeKeyColumns {
		conflict[i] = querysql.Quote(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		querysql.Quote(schema.EdgesTable),
		strings.Join(cols, ", "), strings.Join(vals, ", "), strings.Join(conflict, ", "),
		schema.UpsertVersionSet(d, schema.EdgesTable),
	)
}

// tombstoneEdgeSQL applies a negative version to one live edge.
// Parameters: 1..6 the key, 7 version, 8 last write.
func tombstoneEdgeSQL(d querysql.Dialect) string {
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s AND %s > 0",
		querysql.Quote(schema.EdgesTable),
		schema.ApplyVersionSet(d, schema.VersionArg(d.Placeholder(7)), d.Placeholder(8)),
		keyMatch(d),
		querysql.Quote(schema.ColVersion),
	)
}

// deleteEdgeSQL removes one edge. Parameters: 1..6 the key.
func deleteEdgeSQL(d querysql.Dialect) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", querysql.Quote(schema.EdgesTable), keyMatch(d))
}

// side names one end of an edge.
type side struct {
	setCol, keyCol string
}

var (
	srcSide  = side{schema.ColSrcEntitySetID, schema.ColSrcEntityKeyID}
	dstSide  = side{schema.ColDstEntitySetID, schema.ColDstEntityKeyID}
	edgeSide = side{schema.ColEdgeEntitySetID, schema.ColEdgeEntityKeyID}
)

func (s side) set(alias string) string { return alias + "." + querysql.Quote(s.setCol) }
func (s side) key(alias string) string { return alias + "." + querysql.Quote(s.keyCol) }

// match renders "the vertex at this side is one of ids in one of sets". A
// nil ids matches every entity of the sets.
func (s side) match(b *querysql.Builder, alias string, sets, ids []uuid.UUID) string {
	clause := fmt.Sprintf("%s IN %s", s.set(alias), querysql.List(b, sets))
	if ids != nil {
		clause += fmt.Sprintf(" AND %s IN %s", s.key(alias), querysql.List(b, ids))
	}
	return clause
}

// edgeKeysSQL selects edges touching any of ids in entitySetID, at any
// side. A nil ids selects every edge touching the entity set.
func edgeKeysSQL(d querysql.Dialect, entitySetID uuid.UUID, ids []uuid.UUID, live bool) (string, []any) {
	b := querysql.NewBuilder(d)
	sets := []uuid.UUID{entitySetID}
	b.Write("SELECT %s FROM %s AS e WHERE ((%s) OR (%s) OR (%s))",
		edgeColumns, querysql.Quote(schema.EdgesTable),
		srcSide.match(b, "e", sets, ids),
		dstSide.match(b, "e", sets, ids),
		edgeSide.match(b, "e", sets, ids),
	)
	if live {
		b.Write(" AND e.%s > 0", querysql.Quote(schema.ColVersion))
	}
	b.Write(" ORDER BY %s", orderByKey)
	return b.SQL(), b.Args()
}

var orderByKey = func() string {
	cols := make([]string, len(schema.EdgeKeyColumns))
	for i, c := range schema.EdgeKeyColumns {
		cols[i] = "e." + querysql.Quote(c)
	}
	return strings.Join(cols, ", ")
}()

// neighborsSQL selects the edges matched by f for vertices in entitySetIDs.
// ids is one chunk of f.EntityKeyIDs, or nil for every entity.
func neighborsSQL(d querysql.Dialect, entitySetIDs []uuid.UUID, ids []uuid.UUID, f EntityNeighborsFilter) (string, []any) {
	b := querysql.NewBuilder(d)
	var sides []string
	if len(f.SrcEntitySetIDs) == 0 && len(f.DstEntitySetIDs) == 0 {
		sides = append(sides,
			srcSide.match(b, "e", entitySetIDs, ids),
			dstSide.match(b, "e", entitySetIDs, ids),
			edgeSide.match(b, "e", entitySetIDs, ids),
		)
	}
	if len(f.SrcEntitySetIDs) > 0 {
		sides = append(sides, fmt.Sprintf("%s AND %s IN %s",
			dstSide.match(b, "e", entitySetIDs, ids), srcSide.set("e"), querysql.List(b, f.SrcEntitySetIDs)))
	}
	if len(f.DstEntitySetIDs) > 0 {
		sides = append(sides, fmt.Sprintf("%s AND %s IN %s",
			srcSide.match(b, "e", entitySetIDs, ids), dstSide.set("e"), querysql.List(b, f.DstEntitySetIDs)))
	}

	b.Write("SELECT %s FROM %s AS e WHERE ((%s))",
		edgeColumns, querysql.Quote(schema.EdgesTable), strings.Join(sides, ") OR ("))
	if len(f.AssociationEntitySetIDs) > 0 {
		b.Write(" AND %s IN %s", edgeSide.set("e"), querysql.List(b, f.AssociationEntitySetIDs))
	}
	if !f.IncludeTombstoned {
		b.Write(" AND e.%s > 0", querysql.Quote(schema.ColVersion))
	}
	b.Write(" ORDER BY %s", orderByKey)
	return b.SQL(), b.Args()
}

// neighborSetsSQL selects the distinct entity set combinations of live
// edges touching entitySetIDs as src or dst.
func neighborSetsSQL(d querysql.Dialect, entitySetIDs []uuid.UUID) (string, []any) {
	b := querysql.NewBuilder(d)
	b.Write("SELECT DISTINCT %s, %s, %s FROM %s AS e WHERE (%s IN %s OR %s IN %s) AND e.%s > 0 ORDER BY 1, 2, 3",
		srcSide.set("e"), edgeSide.set("e"), dstSide.set("e"),
		querysql.Quote(schema.EdgesTable),
		srcSide.set("e"), querysql.List(b, entitySetIDs),
		dstSide.set("e"), querysql.List(b, entitySetIDs),
		querysql.Quote(schema.ColVersion),
	)
	return b.SQL(), b.Args()
}
