package querysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/lattice/internal/edm"
)

// SQLite renders SQL for SQLite. Arrays are JSON text, timestamps are
// integer microseconds, and there is no distribution.
type SQLite struct{}

func (SQLite) Name() string { return SQLiteName }

func (SQLite) Placeholder(n int) string { return fmt.Sprintf("?%d", n) }

func (SQLite) ColumnType(dt edm.Datatype) string {
	switch dt {
	case edm.String, edm.Guid, edm.Date, edm.DateTimeOffset:
		// Declared TEXT so the driver never reinterprets dates.
		return "TEXT"
	case edm.Byte, edm.Int16, edm.Int32, edm.Int64, edm.Duration, edm.Boolean:
		return "INTEGER"
	case edm.Double:
		return "REAL"
	case edm.Binary:
		return "BLOB"
	default:
		return ""
	}
}

func (SQLite) UUIDType() string      { return "TEXT" }
func (SQLite) HashType() string      { return "BLOB" }
func (SQLite) VersionsType() string  { return "TEXT" }
func (SQLite) UUIDSetType() string   { return "TEXT" }
func (SQLite) TimestampType() string { return "INTEGER" }

func (SQLite) VersionsOf(expr string) string {
	return fmt.Sprintf("json_array(%s)", expr)
}

func (SQLite) AppendVersion(column, expr string) string {
	return fmt.Sprintf("json_insert(%s, '$[#]', %s)", column, expr)
}

func (SQLite) FirstVersion(column string) string {
	return fmt.Sprintf("json_extract(%s, '$[0]')", column)
}

func (SQLite) EmptyUUIDSet() string { return "'[]'" }

func (SQLite) JSONArrayAgg(expr string, dt edm.Datatype) string {
	if dt == edm.Binary {
		return fmt.Sprintf("json_group_array(hex(%s))", expr)
	}
	return fmt.Sprintf("json_group_array(%s)", expr)
}

func (SQLite) NumericCast(expr string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", expr)
}

func (SQLite) NativeTemporal() bool { return false }

func (SQLite) TimeArg(t time.Time) any { return t.UnixMicro() }

func (SQLite) ScanVersions(dst *[]int64) sql.Scanner {
	return &jsonVersions{dst: dst}
}

func (SQLite) SupportsInvertedIndex() bool { return false }

func (SQLite) Distribute(string, string, string) string { return "" }

func (SQLite) TableExistsSQL() string {
	return "SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?1"
}

type jsonVersions struct {
	dst *[]int64
}

func (j *jsonVersions) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j.dst = []int64{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan versions: unexpected %T", src)
	}
	out := []int64{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan versions: %w", err)
	}
	*j.dst = out
	return nil
}
