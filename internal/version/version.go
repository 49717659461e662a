// Package version holds the versioning rules shared by every writer and
// reader of property rows and edges.
//
// A version is a signed 64-bit counter. Positive means live, negative means
// tombstoned. Magnitudes only grow, so when two writers race on one row the
// larger magnitude wins regardless of arrival order. At equal magnitude the
// positive version wins.
package version

import "fmt"

// Source hands out versions. Clock is the production implementation.
type Source interface {
	Next() int64
}

// Tombstone returns the soft-delete version for the next tick of src.
func Tombstone(src Source) int64 {
	return -src.Next()
}

// IsLive reports whether a row carrying v is visible to readers.
func IsLive(v int64) bool {
	return v > 0
}

// Resolve returns the version a row holds after incoming is applied to a
// row currently at current. The losing version is still recorded in the
// row's audit trail by the caller; Resolve only decides the winner.
func Resolve(current, incoming int64) int64 {
	ac, ai := abs(current), abs(incoming)
	switch {
	case ai > ac:
		return incoming
	case ai == ac && incoming > 0:
		return incoming
	default:
		return current
	}
}

// Wins reports whether incoming replaces current under Resolve.
func Wins(current, incoming int64) bool {
	return Resolve(current, incoming) == incoming && incoming != current
}

// ResolveSQL renders Resolve as a SQL CASE expression over two column or
// parameter expressions. It is portable across Postgres and SQLite.
func ResolveSQL(current, incoming string) string {
	return fmt.Sprintf(
		"CASE WHEN abs(%[2]s) > abs(%[1]s) OR (abs(%[2]s) = abs(%[1]s) AND %[2]s > 0) THEN %[2]s ELSE %[1]s END",
		current, incoming,
	)
}

// WinsSQL renders the boolean condition under which incoming replaces
// current, for columns that follow the winning version (such as
// last_write).
func WinsSQL(current, incoming string) string {
	return fmt.Sprintf("(abs(%[2]s) > abs(%[1]s) OR (abs(%[2]s) = abs(%[1]s) AND %[2]s > 0))", current, incoming)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
