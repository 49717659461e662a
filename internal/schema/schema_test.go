package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/edm"
	"github.com/roach88/lattice/internal/querysql"
)

var agePT = edm.PropertyType{
	ID:       uuid.MustParse("8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02"),
	Type:     edm.NewFQN("general", "age"),
	Datatype: edm.Int32,
	Indexed:  true,
}

var namePT = edm.PropertyType{
	ID:       uuid.MustParse("8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e01"),
	Type:     edm.NewFQN("general", "name"),
	Datatype: edm.String,
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPropertyTableName(t *testing.T) {
	assert.Equal(t, "pt_8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02", PropertyTableName(agePT.ID))
	assert.Equal(t, "es_8f1c3a52-3f0b-4a5e-9d6e-3a2b1c0d9e02", EntitySetViewName(agePT.ID))
}

func TestBuildPropertyTable_Shape(t *testing.T) {
	def, err := BuildPropertyTable(agePT)
	require.NoError(t, err)

	assert.Equal(t, []string{ColEntitySetID, ColID, ColHash}, def.PrimaryKey)
	assert.Equal(t, ColID, def.Distribution)
	assert.Equal(t, IDsTable, def.ColocateWith)

	value, ok := def.Column("general.age")
	require.True(t, ok)
	assert.Equal(t, KindValue, value.Kind)
	assert.Equal(t, edm.Int32, value.Datatype)

	lastWrite, ok := def.Index(def.Name + "_last_write_idx")
	require.True(t, ok)
	assert.True(t, lastWrite.Descending)

	versions, ok := def.Index(def.Name + "_versions_idx")
	require.True(t, ok)
	assert.True(t, versions.Inverted)

	for _, acl := range []string{"_readers_idx", "_writers_idx", "_owners_idx", "_id_idx"} {
		_, ok := def.Index(def.Name + acl)
		assert.True(t, ok, "missing index %s", acl)
	}
	_, ok = def.Index(def.Name + "_value_idx")
	assert.True(t, ok)
}

func TestBuildPropertyTable_ValueIndexOnlyWhenIndexed(t *testing.T) {
	def, err := BuildPropertyTable(namePT)
	require.NoError(t, err)

	_, ok := def.Index(def.Name + "_value_idx")
	assert.False(t, ok)
}

func TestBuildPropertyTable_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		pt   edm.PropertyType
	}{
		{"no id", edm.PropertyType{Type: edm.NewFQN("general", "age"), Datatype: edm.Int32}},
		{"no namespace", edm.PropertyType{ID: uuid.New(), Type: edm.FQN{Name: "age"}, Datatype: edm.Int32}},
		{"no name", edm.PropertyType{ID: uuid.New(), Type: edm.FQN{Namespace: "general"}, Datatype: edm.Int32}},
		{"bad datatype", edm.PropertyType{ID: uuid.New(), Type: edm.NewFQN("general", "age"), Datatype: "Decimal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPropertyTable(tt.pt)
			require.Error(t, err)
			assert.True(t, IsInvalid(err))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
			assert.False(t, IsNotFound(err))
		})
	}
}

func TestRender_PostgresCitusGolden(t *testing.T) {
	def, err := BuildPropertyTable(agePT)
	require.NoError(t, err)

	script := Script(def.Render(querysql.Postgres{Citus: true}))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "postgres_citus_property_table", []byte(script))
}

func TestRender_PostgresWithoutCitusSkipsDistribution(t *testing.T) {
	def, err := BuildPropertyTable(agePT)
	require.NoError(t, err)

	for _, stmt := range def.Render(querysql.Postgres{}) {
		assert.NotContains(t, stmt, "create_distributed_table")
	}
}

func TestRender_SQLitePlainIndexes(t *testing.T) {
	def, err := BuildPropertyTable(agePT)
	require.NoError(t, err)

	stmts := def.Render(querysql.SQLite{})
	require.Len(t, stmts, 1+len(def.Indexes))
	for _, stmt := range stmts {
		assert.NotContains(t, stmt, "USING GIN")
	}
	assert.Contains(t, stmts[0], `"general.age" INTEGER NOT NULL`)
	assert.Contains(t, stmts[0], `"readers" TEXT NOT NULL DEFAULT '[]'`)
}

func TestSplitStatements(t *testing.T) {
	script := BaseScript(querysql.Postgres{Citus: true})
	stmts := SplitStatements(script)

	// ids: table + distribution + 4 indexes; edges: table + distribution + 5 indexes.
	require.Len(t, stmts, 6+7)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "ids"`)
	assert.Contains(t, stmts[1], `create_distributed_table('"ids"', 'id')`)
	assert.Contains(t, stmts[6], `CREATE TABLE IF NOT EXISTS "edges"`)
	assert.Contains(t, stmts[7], "colocate_with => 'ids'")
	for _, stmt := range stmts {
		assert.NotContains(t, stmt, "--")
	}
}

func TestRegistry_EnsureAndRequire(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := NewRegistry(db, querysql.SQLite{})

	require.NoError(t, reg.EnsureBaseTables(ctx))

	err := reg.Require(ctx, agePT)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = reg.EnsurePropertyTable(ctx, agePT)
	require.NoError(t, err)
	_, err = reg.EnsurePropertyTable(ctx, agePT)
	require.NoError(t, err, "ensure must be idempotent")

	require.NoError(t, reg.Require(ctx, agePT))

	// A fresh registry sees the table through the catalog probe.
	fresh := NewRegistry(db, querysql.SQLite{})
	require.NoError(t, fresh.Require(ctx, agePT))
}

func TestRegistry_EnsurePropertyTablesValidatesFirst(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := NewRegistry(db, querysql.SQLite{})

	bad := edm.PropertyType{ID: uuid.New(), Type: edm.FQN{Name: "orphan"}, Datatype: edm.String}
	err := reg.EnsurePropertyTables(ctx, []edm.PropertyType{agePT, bad})
	require.Error(t, err)
	assert.True(t, IsInvalid(err))

	// Nothing was created for the valid property type either.
	assert.True(t, IsNotFound(reg.Require(ctx, agePT)))

	require.NoError(t, reg.EnsurePropertyTables(ctx, []edm.PropertyType{agePT, namePT}))
	require.NoError(t, reg.RequireAll(ctx, edm.NewPropertyTypes(agePT, namePT)))
}

func TestRegistry_EntitySetView(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := NewRegistry(db, querysql.SQLite{})
	require.NoError(t, reg.EnsureBaseTables(ctx))

	es := edm.EntitySet{ID: uuid.New(), Name: "people"}
	err := reg.EnsureEntitySetView(ctx, es, []edm.PropertyType{agePT})
	assert.True(t, IsNotFound(err), "view requires its property tables")

	require.NoError(t, reg.EnsurePropertyTables(ctx, []edm.PropertyType{agePT, namePT}))
	require.NoError(t, reg.EnsureEntitySetView(ctx, es, []edm.PropertyType{namePT, agePT}))
	require.NoError(t, reg.EnsureEntitySetView(ctx, es, []edm.PropertyType{namePT, agePT}), "views are recreated")

	entityID := uuid.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO "ids" ("entity_set_id", "id", "version", "versions", "last_write") VALUES (?1, ?2, 5, '[5]', 0)`,
		es.ID.String(), entityID.String())
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO "`+PropertyTableName(agePT.ID)+`" ("entity_set_id", "id", "hash", "general.age", "version", "versions", "last_write") VALUES (?1, ?2, x'01', 30, 5, '[5]', 0), (?1, ?2, x'02', 29, -6, '[4,-6]', 0)`,
		es.ID.String(), entityID.String())
	require.NoError(t, err)

	var gotID, ages, names string
	row := db.QueryRowContext(ctx, `SELECT "@id", "general.age", "general.name" FROM "`+EntitySetViewName(es.ID)+`"`)
	require.NoError(t, row.Scan(&gotID, &ages, &names))
	assert.Equal(t, entityID.String(), gotID)
	assert.Equal(t, "[30]", ages, "tombstoned values are not visible")
	assert.Equal(t, "[]", names)
}

func TestVersionedSQL_ResolvesOnSQLite(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	d := querysql.SQLite{}
	reg := NewRegistry(db, d)
	require.NoError(t, reg.EnsureBaseTables(ctx))

	es, id := uuid.New().String(), uuid.New().String()
	v := VersionArg(d.Placeholder(3))
	upsert := `INSERT INTO "ids" ("entity_set_id", "id", "version", "versions", "last_write") VALUES (?1, ?2, ` +
		v + `, ` + d.VersionsOf(v) + `, ?4) ON CONFLICT ("entity_set_id", "id") DO UPDATE SET ` + UpsertVersionSet(d, IDsTable)
	tombstone := `UPDATE "ids" SET ` + ApplyVersionSet(d, VersionArg("?1"), "?2") + ` WHERE "entity_set_id" = ?3 AND "id" = ?4`

	read := func() (int64, string, int64) {
		var version, lastWrite int64
		var versions string
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT "version", "versions", "last_write" FROM "ids" WHERE "entity_set_id" = ?1 AND "id" = ?2`, es, id,
		).Scan(&version, &versions, &lastWrite))
		return version, versions, lastWrite
	}

	_, err := db.ExecContext(ctx, upsert, es, id, 10, 100)
	require.NoError(t, err)

	// An older write arrives late: audited, but does not win.
	_, err = db.ExecContext(ctx, upsert, es, id, 7, 70)
	require.NoError(t, err)
	version, versions, lastWrite := read()
	assert.Equal(t, int64(10), version)
	assert.Equal(t, "[10,7]", versions)
	assert.Equal(t, int64(100), lastWrite)

	// A newer tombstone wins.
	_, err = db.ExecContext(ctx, tombstone, -12, 120, es, id)
	require.NoError(t, err)
	version, versions, lastWrite = read()
	assert.Equal(t, int64(-12), version)
	assert.Equal(t, "[10,7,-12]", versions)
	assert.Equal(t, int64(120), lastWrite)

	// A live write at equal magnitude beats the tombstone.
	_, err = db.ExecContext(ctx, upsert, es, id, 12, 121)
	require.NoError(t, err)
	version, _, lastWrite = read()
	assert.Equal(t, int64(12), version)
	assert.Equal(t, int64(121), lastWrite)
}
