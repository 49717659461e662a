package schema

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
)

// Table name prefixes. They are part of the on-disk contract.
const (
	PropertyTablePrefix = "pt_"
	EntitySetViewPrefix = "es_"
)

// System column names shared by property tables, ids, and edges.
const (
	ColEntitySetID = "entity_set_id"
	ColID          = "id"
	ColHash        = "hash"
	ColVersion     = "version"
	ColVersions    = "versions"
	ColLastWrite   = "last_write"
	ColLastIndex   = "last_index"
	ColLinkingID   = "linking_id"
	ColReaders     = "readers"
	ColWriters     = "writers"
	ColOwners      = "owners"
)

// PropertyTableName returns the table backing a property type. It depends
// on the id alone, so it never needs a lookup.
func PropertyTableName(propertyTypeID uuid.UUID) string {
	return PropertyTablePrefix + propertyTypeID.String()
}

// EntitySetViewName returns the view name for an entity set.
func EntitySetViewName(entitySetID uuid.UUID) string {
	return EntitySetViewPrefix + entitySetID.String()
}

// ValueColumn returns the value column name of a property type: its FQN.
func ValueColumn(pt edm.PropertyType) string {
	return pt.Type.String()
}

// BuildPropertyTable produces the table definition for pt. Malformed
// property types fail here, before any DDL is attempted.
func BuildPropertyTable(pt edm.PropertyType) (TableDefinition, error) {
	if pt.ID == uuid.Nil {
		return TableDefinition{}, invalid(pt.ID, "property type has no id")
	}
	if !pt.Type.Valid() {
		return TableDefinition{}, invalid(pt.ID, "property type %s is missing its namespace or name", pt.ID)
	}
	if !pt.Datatype.Valid() {
		return TableDefinition{}, invalid(pt.ID, "property type %s has unsupported datatype %q", pt.Type, pt.Datatype)
	}

	name := PropertyTableName(pt.ID)
	value := ValueColumn(pt)

	def := TableDefinition{
		Name: name,
		Columns: []Column{
			{Name: ColEntitySetID, Kind: KindUUID},
			{Name: ColID, Kind: KindUUID},
			{Name: ColHash, Kind: KindHash},
			{Name: value, Kind: KindValue, Datatype: pt.Datatype},
			{Name: ColVersion, Kind: KindVersion},
			{Name: ColVersions, Kind: KindVersions},
			{Name: ColLastWrite, Kind: KindTimestamp},
			{Name: ColReaders, Kind: KindUUIDSet},
			{Name: ColWriters, Kind: KindUUIDSet},
			{Name: ColOwners, Kind: KindUUIDSet},
		},
		PrimaryKey:   []string{ColEntitySetID, ColID, ColHash},
		Distribution: ColID,
		ColocateWith: IDsTable,
		Indexes: []Index{
			{Name: name + "_id_idx", Columns: []string{ColID}},
			{Name: name + "_entity_set_id_idx", Columns: []string{ColEntitySetID}},
			{Name: name + "_version_idx", Columns: []string{ColVersion}},
			{Name: name + "_last_write_idx", Columns: []string{ColLastWrite}, Descending: true},
			{Name: name + "_versions_idx", Columns: []string{ColVersions}, Inverted: true},
			{Name: name + "_readers_idx", Columns: []string{ColReaders}, Inverted: true},
			{Name: name + "_writers_idx", Columns: []string{ColWriters}, Inverted: true},
			{Name: name + "_owners_idx", Columns: []string{ColOwners}, Inverted: true},
		},
	}
	if pt.Indexed {
		def.Indexes = append(def.Indexes, Index{Name: name + "_value_idx", Columns: []string{value}})
	}
	return def, nil
}

// LiveValuesSubquery renders a correlated subquery that aggregates the live
// values of pt for the entity identified by outer's entity_set_id and id
// columns into a JSON array.
func LiveValuesSubquery(d querysql.Dialect, pt edm.PropertyType, outer string) string {
	return fmt.Sprintf(
		"(SELECT %s FROM %s AS p WHERE p.%s = %s.%s AND p.%s = %s.%s AND p.%s > 0)",
		d.JSONArrayAgg("p."+querysql.Quote(ValueColumn(pt)), pt.Datatype),
		querysql.Quote(PropertyTableName(pt.ID)),
		querysql.Quote(ColEntitySetID), outer, querysql.Quote(ColEntitySetID),
		querysql.Quote(ColID), outer, querysql.Quote(ColID),
		querysql.Quote(ColVersion),
	)
}
