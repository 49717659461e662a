package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/schema"
)

// ErrUnsupportedDriver is returned by Open for unknown drivers.
var ErrUnsupportedDriver = errors.New("unsupported driver")

// Schema version tracking for SQLite files (PRAGMA user_version):
// 0 - empty file
// 1 - ids and edges tables
const currentSchemaVersion = 1

// Options selects and configures the backing engine.
type Options struct {
	// Driver is querysql.SQLiteName or querysql.PostgresName.
	Driver string
	// DSN is a file path for SQLite or a connection string for Postgres.
	DSN string
	// Citus distributes tables across workers (Postgres only).
	Citus bool
	// MaxOpenConns bounds the Postgres pool. SQLite always uses one.
	MaxOpenConns int
	Logger       *slog.Logger
}

// WriteEvent reports the outcome of a mutating operation: rows affected
// and the version assigned. Tombstoning operations report the negative
// version they wrote; hard deletes report zero.
type WriteEvent struct {
	Count   int64 `json:"count"`
	Version int64 `json:"version"`
}

// Add accumulates another event's count, keeping the receiver's version
// unless it is unset.
func (e WriteEvent) Add(o WriteEvent) WriteEvent {
	e.Count += o.Count
	if e.Version == 0 {
		e.Version = o.Version
	}
	return e
}

// Store is an open database with its dialect and schema registry.
type Store struct {
	db       *sql.DB
	dialect  querysql.Dialect
	registry *schema.Registry
	logger   *slog.Logger
}

// Open connects to the configured engine and ensures the shared tables.
// It is idempotent: opening an existing database changes nothing.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case querysql.SQLiteName:
		db, err = openSQLite(ctx, opts.DSN)
	case querysql.PostgresName:
		db, err = openPostgres(ctx, opts.DSN, opts.MaxOpenConns)
	default:
		return nil, fmt.Errorf("open %q: %w", opts.Driver, ErrUnsupportedDriver)
	}
	if err != nil {
		return nil, err
	}

	dialect, err := querysql.ForName(opts.Driver, opts.Citus)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		dialect:  dialect,
		registry: schema.NewRegistry(db, dialect, schema.WithLogger(logger)),
		logger:   logger,
	}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Debug("store opened", "driver", opts.Driver, "citus", opts.Citus)
	return s, nil
}

// OpenSQLite opens or creates a SQLite database file at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, Options{Driver: querysql.SQLiteName, DSN: path})
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres: empty connection string")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 16
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the engine dialect.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Registry returns the schema registry bound to this store.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// InTx runs fn in a transaction, committing if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the shared tables. On SQLite it also records the
// schema version so later releases can migrate older files.
func (s *Store) applySchema(ctx context.Context) error {
	if err := s.registry.EnsureBaseTables(ctx); err != nil {
		return err
	}
	if s.dialect.Name() != querysql.SQLiteName {
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
