// Package data is the entity datastore: reads and writes of multi-valued
// entities over per-property-type tables.
//
// Every operation takes the property types the caller is already
// authorized for; the datastore performs no permission checks and treats
// an empty authorized set as "nothing". Writes to one property type run in
// a single transaction (tombstone, then upsert); writes spanning property
// types are not atomic across tables and rely on idempotent rows for retry.
//
// Bulk reads return iter.Seq2 sequences over live cursors. Ranging runs
// the query; breaking out of the loop closes the cursor. On SQLite the
// store has a single connection, so a loop body must not issue other
// queries while a sequence is open: collect first.
package data
