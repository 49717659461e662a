// Package store owns the database handle: opening it for a driver,
// preparing the shared tables, and streaming query results lazily.
//
// Two engines are supported. SQLite (mattn/go-sqlite3) runs with WAL and a
// single connection and backs tests and single-node use. Postgres (pgx),
// optionally with Citus, is the production target.
package store
