package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
)

// ColumnKind selects how a column's type is rendered per dialect.
type ColumnKind int

const (
	KindUUID ColumnKind = iota
	KindHash
	KindValue
	KindVersion
	KindVersions
	KindTimestamp
	KindUUIDSet
)

// Column is one column of a table definition.
type Column struct {
	Name     string
	Kind     ColumnKind
	Datatype edm.Datatype // KindValue only
	Nullable bool
}

// Index is one secondary index.
type Index struct {
	Name       string
	Columns    []string
	Descending bool
	// Inverted requests a GIN index. Engines without GIN get a plain index.
	Inverted bool
}

// TableDefinition is an engine-neutral table description.
type TableDefinition struct {
	Name         string
	Columns      []Column
	PrimaryKey   []string
	Distribution string
	ColocateWith string
	Indexes      []Index
}

// Column returns the named column.
func (t TableDefinition) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the named index.
func (t TableDefinition) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Render produces the DDL statements for d, in execution order. Every
// statement is idempotent.
func (t TableDefinition) Render(d querysql.Dialect) []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", querysql.Quote(t.Name))
	for _, c := range t.Columns {
		fmt.Fprintf(&sb, "  %s %s,\n", querysql.Quote(c.Name), columnSQL(d, c))
	}
	fmt.Fprintf(&sb, "  PRIMARY KEY (%s)\n);", quoteAll(t.PrimaryKey))

	stmts := []string{sb.String()}
	if t.Distribution != "" {
		if dist := d.Distribute(t.Name, t.Distribution, t.ColocateWith); dist != "" {
			stmts = append(stmts, dist)
		}
	}
	for _, idx := range t.Indexes {
		stmts = append(stmts, indexSQL(d, t.Name, idx))
	}
	return stmts
}

// Script renders the statements as one newline-separated script.
func Script(stmts []string) string {
	return strings.Join(stmts, "\n") + "\n"
}

func columnSQL(d querysql.Dialect, c Column) string {
	var typ, def string
	switch c.Kind {
	case KindUUID:
		typ = d.UUIDType()
	case KindHash:
		typ = d.HashType()
	case KindValue:
		typ = d.ColumnType(c.Datatype)
	case KindVersion:
		typ = d.ColumnType(edm.Int64)
	case KindVersions:
		typ = d.VersionsType()
	case KindTimestamp:
		typ = d.TimestampType()
	case KindUUIDSet:
		typ = d.UUIDSetType()
		def = " DEFAULT " + d.EmptyUUIDSet()
	}
	if c.Nullable {
		return typ + def
	}
	return typ + " NOT NULL" + def
}

func indexSQL(d querysql.Dialect, table string, idx Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = querysql.Quote(c)
		if idx.Descending {
			cols[i] += " DESC"
		}
	}
	using := ""
	if idx.Inverted && d.SupportsInvertedIndex() {
		using = "USING GIN "
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s %s(%s);",
		querysql.Quote(idx.Name), querysql.Quote(table), using, strings.Join(cols, ", "))
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = querysql.Quote(n)
	}
	return strings.Join(quoted, ", ")
}
