package querysql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/roach88/lattice/internal/edm"
)

// Postgres renders SQL for PostgreSQL. With Citus set, tables are
// distributed and co-located.
type Postgres struct {
	Citus bool
}

func (Postgres) Name() string { return PostgresName }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) ColumnType(dt edm.Datatype) string {
	switch dt {
	case edm.String:
		return "text"
	case edm.Guid:
		return "uuid"
	case edm.Byte, edm.Int16:
		return "smallint"
	case edm.Int32:
		return "integer"
	case edm.Int64, edm.Duration:
		return "bigint"
	case edm.Date:
		return "date"
	case edm.DateTimeOffset:
		return "timestamp with time zone"
	case edm.Double:
		return "double precision"
	case edm.Boolean:
		return "boolean"
	case edm.Binary:
		return "bytea"
	default:
		return ""
	}
}

func (Postgres) UUIDType() string      { return "uuid" }
func (Postgres) HashType() string      { return "bytea" }
func (Postgres) VersionsType() string  { return "bigint[]" }
func (Postgres) UUIDSetType() string   { return "uuid[]" }
func (Postgres) TimestampType() string { return "timestamp with time zone" }

func (Postgres) VersionsOf(expr string) string {
	return fmt.Sprintf("ARRAY[%s]::bigint[]", expr)
}

func (Postgres) AppendVersion(column, expr string) string {
	return fmt.Sprintf("array_append(%s, %s::bigint)", column, expr)
}

func (Postgres) FirstVersion(column string) string {
	return column + "[1]"
}

func (Postgres) EmptyUUIDSet() string { return "'{}'::uuid[]" }

func (Postgres) JSONArrayAgg(expr string, dt edm.Datatype) string {
	if dt == edm.Binary {
		return fmt.Sprintf("json_agg(encode(%s, 'hex'))", expr)
	}
	return fmt.Sprintf("json_agg(%s)", expr)
}

func (Postgres) NumericCast(expr string) string {
	return fmt.Sprintf("CAST(%s AS double precision)", expr)
}

func (Postgres) NativeTemporal() bool { return true }

func (Postgres) TimeArg(t time.Time) any { return t.UTC() }

// ScanVersions decodes bigint[] through a pgx type map. Maps cache scan
// plans and are not safe for concurrent use, so each scan gets its own.
func (Postgres) ScanVersions(dst *[]int64) sql.Scanner {
	return pgtype.NewMap().SQLScanner(dst)
}

func (Postgres) SupportsInvertedIndex() bool { return true }

func (p Postgres) Distribute(table, column, colocateWith string) string {
	if !p.Citus {
		return ""
	}
	rel := strings.ReplaceAll(Quote(table), "'", "''")
	if colocateWith == "" || colocateWith == table {
		return fmt.Sprintf(
			"SELECT create_distributed_table('%[1]s', '%[2]s') WHERE NOT EXISTS (SELECT 1 FROM pg_dist_partition WHERE logicalrelid = '%[1]s'::regclass);",
			rel, column)
	}
	return fmt.Sprintf(
		"SELECT create_distributed_table('%[1]s', '%[2]s', colocate_with => '%[3]s') WHERE NOT EXISTS (SELECT 1 FROM pg_dist_partition WHERE logicalrelid = '%[1]s'::regclass);",
		rel, column, colocateWith)
}

func (Postgres) TableExistsSQL() string {
	return "SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
}
