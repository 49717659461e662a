package schema

import (
	"github.com/roach88/lattice/internal/querysql"
)

// Shared table names.
const (
	IDsTable   = "ids"
	EdgesTable = "edges"
)

// Edge columns.
const (
	ColSrcEntitySetID  = "src_entity_set_id"
	ColSrcEntityKeyID  = "src_entity_key_id"
	ColDstEntitySetID  = "dst_entity_set_id"
	ColDstEntityKeyID  = "dst_entity_key_id"
	ColEdgeEntitySetID = "edge_entity_set_id"
	ColEdgeEntityKeyID = "edge_entity_key_id"
)

// EdgeKeyColumns lists the edge key columns in (src, dst, edge) order.
var EdgeKeyColumns = []string{
	ColSrcEntitySetID, ColSrcEntityKeyID,
	ColDstEntitySetID, ColDstEntityKeyID,
	ColEdgeEntitySetID, ColEdgeEntityKeyID,
}

// IDs is the entity bookkeeping table. Every entity with at least one write
// has a row here; the row's version follows the same rules as property
// rows. It is the co-location anchor for all distributed tables.
func IDs() TableDefinition {
	return TableDefinition{
		Name: IDsTable,
		Columns: []Column{
			{Name: ColEntitySetID, Kind: KindUUID},
			{Name: ColID, Kind: KindUUID},
			{Name: ColLinkingID, Kind: KindUUID, Nullable: true},
			{Name: ColVersion, Kind: KindVersion},
			{Name: ColVersions, Kind: KindVersions},
			{Name: ColLastWrite, Kind: KindTimestamp},
			{Name: ColLastIndex, Kind: KindTimestamp, Nullable: true},
		},
		PrimaryKey:   []string{ColEntitySetID, ColID},
		Distribution: ColID,
		ColocateWith: IDsTable,
		Indexes: []Index{
			{Name: IDsTable + "_id_idx", Columns: []string{ColID}},
			{Name: IDsTable + "_linking_id_idx", Columns: []string{ColLinkingID}},
			{Name: IDsTable + "_version_idx", Columns: []string{ColVersion}},
			{Name: IDsTable + "_last_write_idx", Columns: []string{ColLastWrite}, Descending: true},
		},
	}
}

// Edges stores the (src, dst, edge) triples.
func Edges() TableDefinition {
	cols := make([]Column, 0, len(EdgeKeyColumns)+3)
	for _, c := range EdgeKeyColumns {
		cols = append(cols, Column{Name: c, Kind: KindUUID})
	}
	cols = append(cols,
		Column{Name: ColVersion, Kind: KindVersion},
		Column{Name: ColVersions, Kind: KindVersions},
		Column{Name: ColLastWrite, Kind: KindTimestamp},
	)
	return TableDefinition{
		Name:         EdgesTable,
		Columns:      cols,
		PrimaryKey:   EdgeKeyColumns,
		Distribution: ColSrcEntityKeyID,
		ColocateWith: IDsTable,
		Indexes: []Index{
			{Name: EdgesTable + "_src_idx", Columns: []string{ColSrcEntitySetID, ColSrcEntityKeyID}},
			{Name: EdgesTable + "_dst_idx", Columns: []string{ColDstEntitySetID, ColDstEntityKeyID}},
			{Name: EdgesTable + "_edge_idx", Columns: []string{ColEdgeEntitySetID, ColEdgeEntityKeyID}},
			{Name: EdgesTable + "_version_idx", Columns: []string{ColVersion}},
			{Name: EdgesTable + "_versions_idx", Columns: []string{ColVersions}, Inverted: true},
		},
	}
}

// BaseScript renders the shared tables as one script, ids first.
func BaseScript(d querysql.Dialect) string {
	var stmts []string
	stmts = append(stmts, "-- entity bookkeeping")
	stmts = append(stmts, IDs().Render(d)...)
	stmts = append(stmts, "-- edges")
	stmts = append(stmts, Edges().Render(d)...)
	return Script(stmts)
}
