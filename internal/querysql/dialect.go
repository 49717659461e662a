package querysql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lattice/internal/edm"
)

// Dialect captures everything that differs between the supported engines.
type Dialect interface {
	// Name is the driver-independent engine name.
	Name() string
	// Placeholder renders the n-th (1-based) bind parameter. Both engines
	// use numbered parameters, so one parameter may appear several times.
	Placeholder(n int) string

	// ColumnType maps a property datatype to a column type.
	ColumnType(dt edm.Datatype) string
	UUIDType() string
	HashType() string
	VersionsType() string
	UUIDSetType() string
	TimestampType() string

	// VersionsOf wraps a single version expression as a one-element versions
	// value.
	VersionsOf(expr string) string
	// AppendVersion appends a version expression to a versions column.
	AppendVersion(column, expr string) string
	// FirstVersion extracts the oldest recorded version of a row.
	FirstVersion(column string) string
	// EmptyUUIDSet is the literal for an empty reader/writer/owner set.
	EmptyUUIDSet() string
	// JSONArrayAgg aggregates a value column into a JSON array.
	JSONArrayAgg(expr string, dt edm.Datatype) string
	// NumericCast casts a value expression for arithmetic aggregation.
	NumericCast(expr string) string

	// NativeTemporal reports whether dates and timestamps bind as
	// time.Time. When false they bind as text.
	NativeTemporal() bool
	// TimeArg converts a system timestamp (last_write, last_index) to a
	// bind argument for TimestampType columns.
	TimeArg(t time.Time) any
	// ScanVersions returns a scanner that decodes a versions column.
	ScanVersions(dst *[]int64) sql.Scanner

	// SupportsInvertedIndex reports whether GIN indexes are available.
	SupportsInvertedIndex() bool
	// Distribute returns the statement that distributes table on column,
	// co-located with colocateWith. It returns "" when the engine does not
	// distribute tables.
	Distribute(table, column, colocateWith string) string
	// TableExistsSQL is a query with one parameter (the unquoted table
	// name) returning a single count.
	TableExistsSQL() string
}

// Engine names.
const (
	PostgresName = "postgres"
	SQLiteName   = "sqlite"
)

// Quote double-quotes an identifier, doubling embedded quotes.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Qualify renders table.column with both parts quoted.
func Qualify(table, column string) string {
	return Quote(table) + "." + Quote(column)
}

// ForName returns the dialect for an engine name.
func ForName(name string, citus bool) (Dialect, error) {
	switch name {
	case PostgresName:
		return Postgres{Citus: citus}, nil
	case SQLiteName:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}
