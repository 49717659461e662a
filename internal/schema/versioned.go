package schema

import (
	"fmt"

	"github.com/roach88/lattice/internal/querysql"
	"github.com/roach88/lattice/internal/version"
)

// VersionArg casts a bound version parameter to a 64-bit integer so both
// engines type it the same wherever it appears.
func VersionArg(placeholder string) string {
	return "CAST(" + placeholder + " AS BIGINT)"
}

// UpsertVersionSet renders the DO UPDATE SET body of an upsert into table.
// The incoming version is always appended to versions; version and
// last_write follow the resolve rule.
func UpsertVersionSet(d querysql.Dialect, table string) string {
	cur := querysql.Qualify(table, ColVersion)
	inc := "excluded." + querysql.Quote(ColVersion)
	return fmt.Sprintf("%s = %s, %s = CASE WHEN %s THEN excluded.%s ELSE %s END, %s = %s",
		querysql.Quote(ColVersions), d.AppendVersion(querysql.Qualify(table, ColVersions), inc),
		querysql.Quote(ColLastWrite), version.WinsSQL(cur, inc), querysql.Quote(ColLastWrite), querysql.Qualify(table, ColLastWrite),
		querysql.Quote(ColVersion), version.ResolveSQL(cur, inc),
	)
}

// ApplyVersionSet renders the SET body of an UPDATE that applies the
// version expression v written at time expression at. It is used for
// tombstones, where v is negative.
func ApplyVersionSet(d querysql.Dialect, v, at string) string {
	cur := querysql.Quote(ColVersion)
	return fmt.Sprintf("%s = %s, %s = CASE WHEN %s THEN %s ELSE %s END, %s = %s",
		querysql.Quote(ColVersions), d.AppendVersion(querysql.Quote(ColVersions), v),
		querysql.Quote(ColLastWrite), version.WinsSQL(cur, v), at, querysql.Quote(ColLastWrite),
		querysql.Quote(ColVersion), version.ResolveSQL(cur, v),
	)
}
