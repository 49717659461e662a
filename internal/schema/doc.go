// Package schema generates the physical tables behind the store.
//
// Every property type gets its own table, named pt_<property-type-uuid>,
// keyed by (entity_set_id, id, hash) and distributed on id. Two shared
// tables sit beside them: ids, one row per entity and the co-location
// anchor, and edges. Entity sets may additionally get a read-only view named
// es_<entity-set-uuid> that joins their property tables.
//
// Definitions are engine-neutral values; Render turns them into DDL for a
// querysql.Dialect. Registry applies DDL idempotently and answers whether a
// property table exists.
package schema
