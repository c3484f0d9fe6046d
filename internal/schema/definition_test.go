package schema

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCreateSQL(t *testing.T) {
	def := TableDef{
		Name: "files",
		Columns: []ColumnDef{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "project_id", Type: "INTEGER", NotNull: true},
			{Name: "file_path", Type: "TEXT", NotNull: true},
			{Name: "dirty", Type: "INTEGER", NotNull: true, Default: strptr("0")},
		},
		ForeignKeys: []ForeignKeyDef{
			{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"},
		},
		Uniques: [][]string{{"project_id", "file_path"}},
	}

	sqlText := def.CreateSQL()
	assert.Contains(t, sqlText, "CREATE TABLE files")
	assert.Contains(t, sqlText, "id INTEGER PRIMARY KEY")
	assert.Contains(t, sqlText, "project_id INTEGER NOT NULL")
	assert.Contains(t, sqlText, "dirty INTEGER NOT NULL DEFAULT 0")
	assert.Contains(t, sqlText, "UNIQUE (project_id, file_path)")
	assert.Contains(t, sqlText, "FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE")
}

func TestIndexCreateSQL(t *testing.T) {
	idx := IndexDef{Name: "idx_files_project", Columns: []string{"project_id"}}
	assert.Equal(t, "CREATE INDEX idx_files_project ON files (project_id)", idx.CreateSQL("files"))

	uidx := IndexDef{Name: "idx_files_path", Columns: []string{"project_id", "file_path"}, Unique: true}
	assert.Equal(t, "CREATE UNIQUE INDEX idx_files_path ON files (project_id, file_path)", uidx.CreateSQL("files"))
}

func TestVirtualTableCreateSQL(t *testing.T) {
	vt := VirtualTableDef{
		Name:    "symbols_fts",
		Module:  "fts5",
		Columns: []string{"name", "signature"},
		Args:    []string{"content='symbols'", "content_rowid='id'"},
	}
	assert.Equal(t,
		"CREATE VIRTUAL TABLE symbols_fts USING fts5(name, signature, content='symbols', content_rowid='id')",
		vt.CreateSQL())
}

func TestDefinitionTableLookup(t *testing.T) {
	def := Platform()

	tbl, ok := def.Table("symbols")
	require.True(t, ok)
	assert.Equal(t, "symbols", tbl.Name)

	col, ok := tbl.Column("kind")
	require.True(t, ok)
	assert.True(t, col.NotNull)

	_, ok = def.Table("nonexistent")
	assert.False(t, ok)
}

func TestPlatformDefinitionVersion(t *testing.T) {
	def := Platform()
	_, err := semver.NewVersion(def.Version)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, def.Version)
	assert.NotEmpty(t, def.Tables)

	// The reserved settings table must never appear in a definition.
	_, ok := def.Table(SettingsTable)
	assert.False(t, ok)
}

func TestRegisterMigrationOrdering(t *testing.T) {
	const defName = "ordering-test"
	defer delete(versionMigrations, defName)

	noop := func(ctx context.Context, tx *sql.Tx) error { return nil }
	RegisterMigration(defName, "1.2.0", noop)
	RegisterMigration(defName, "1.0.5", noop)
	RegisterMigration(defName, "1.1.0", noop)

	list := versionMigrations[defName]
	require.Len(t, list, 3)
	assert.Equal(t, "1.0.5", list[0].version.String())
	assert.Equal(t, "1.1.0", list[1].version.String())
	assert.Equal(t, "1.2.0", list[2].version.String())

	pending := migrationsFor(defName, semver.MustParse("1.0.5"), semver.MustParse("1.2.0"))
	require.Len(t, pending, 2)
	assert.Equal(t, "1.1.0", pending[0].version.String())

	assert.Empty(t, migrationsFor(defName, semver.MustParse("1.2.0"), semver.MustParse("1.2.0")))
}

func TestMigrationsScopedToDefinition(t *testing.T) {
	const defName = "scoping-test"
	defer delete(versionMigrations, defName)

	noop := func(ctx context.Context, tx *sql.Tx) error { return nil }
	RegisterMigration(defName, "1.1.0", noop)

	// Another definition's callbacks never leak in.
	assert.Empty(t, migrationsFor("other", semver.MustParse("1.0.0"), semver.MustParse("2.0.0")))

	// Callbacks past the target version are held back.
	assert.Empty(t, migrationsFor(defName, semver.MustParse("1.0.0"), semver.MustParse("1.0.5")))
	assert.Len(t, migrationsFor(defName, semver.MustParse("1.0.0"), semver.MustParse("1.1.0")), 1)
}
