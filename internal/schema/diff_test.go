package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/pkg/types"
)

func liveTable(name string, cols ...types.Column) types.TableSchema {
	return types.TableSchema{Name: name, Columns: cols}
}

func TestCompareMissingTable(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{Name: "projects", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}}},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{}}

	diff := Compare(def, live)
	assert.Equal(t, []string{"projects"}, diff.MissingTables)
	assert.True(t, diff.HasChanges())
}

func TestCompareExtraTableIsObservationOnly(t *testing.T) {
	def := &Definition{Version: "1.0.0"}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"scratch": liveTable("scratch", types.Column{Name: "id", Type: "INTEGER"}),
	}}

	diff := Compare(def, live)
	assert.Equal(t, []string{"scratch"}, diff.ExtraTables)
	assert.False(t, diff.HasChanges(), "extra tables never trigger a migration")
}

func TestCompareMissingColumn(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{Name: "files", Columns: []ColumnDef{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "content_hash", Type: "TEXT", NotNull: true, Default: strptr("''")},
			}},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"files": liveTable("files", types.Column{Name: "id", Type: "INTEGER"}),
	}}

	diff := Compare(def, live)
	require.Contains(t, diff.ColumnDiffs, "files")
	cd := diff.ColumnDiffs["files"]
	require.Len(t, cd.Missing, 1)
	assert.Equal(t, "content_hash", cd.Missing[0].Name)
	assert.True(t, diff.HasChanges())
}

func TestCompareExtraColumnIsObservationOnly(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{Name: "files", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}}},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"files": liveTable("files",
			types.Column{Name: "id", Type: "INTEGER"},
			types.Column{Name: "legacy", Type: "TEXT"},
		),
	}}

	diff := Compare(def, live)
	require.Contains(t, diff.ColumnDiffs, "files")
	assert.Equal(t, []string{"legacy"}, diff.ColumnDiffs["files"].Extra)
	assert.False(t, diff.HasChanges())
}

func TestCompareChangedColumnType(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{Name: "files", Columns: []ColumnDef{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "size_bytes", Type: "INTEGER"},
			}},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"files": liveTable("files",
			types.Column{Name: "id", Type: "INTEGER"},
			types.Column{Name: "size_bytes", Type: "TEXT"},
		),
	}}

	diff := Compare(def, live)
	cd := diff.ColumnDiffs["files"]
	require.Len(t, cd.Changed, 1)
	assert.Equal(t, "size_bytes", cd.Changed[0].Column)
	assert.Equal(t, "TEXT", cd.Changed[0].FromType)
	assert.Equal(t, "INTEGER", cd.Changed[0].ToType)
	assert.True(t, diff.HasChanges())
}

func TestCompareIndexes(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{
				Name:    "symbols",
				Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "name", Type: "TEXT"}},
				Indexes: []IndexDef{{Name: "idx_symbols_name", Columns: []string{"name"}}},
			},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"symbols": {
			Name: "symbols",
			Columns: []types.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "TEXT"},
			},
			Indexes: []types.Index{{Name: "idx_symbols_stale", Columns: []string{"name"}}},
		},
	}}

	diff := Compare(def, live)
	require.Len(t, diff.MissingIndexes, 1)
	assert.Equal(t, "idx_symbols_name", diff.MissingIndexes[0].Index.Name)
	require.Len(t, diff.ExtraIndexes, 1)
	assert.Equal(t, "idx_symbols_stale", diff.ExtraIndexes[0].Index.Name)
	assert.True(t, diff.HasChanges())
}

func TestCompareIndexShapeChanged(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{
				Name:    "files",
				Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "file_path", Type: "TEXT"}},
				Indexes: []IndexDef{{Name: "idx_files_path", Columns: []string{"file_path"}, Unique: true}},
			},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"files": {
			Name: "files",
			Columns: []types.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "file_path", Type: "TEXT"},
			},
			// Same name but not unique: must be dropped and recreated.
			Indexes: []types.Index{{Name: "idx_files_path", Columns: []string{"file_path"}}},
		},
	}}

	diff := Compare(def, live)
	require.Len(t, diff.ExtraIndexes, 1)
	require.Len(t, diff.MissingIndexes, 1)
	assert.Equal(t, "idx_files_path", diff.MissingIndexes[0].Index.Name)
	assert.True(t, diff.MissingIndexes[0].Index.Unique)
}

func TestCompareForeignKeys(t *testing.T) {
	def := &Definition{
		Version: "1.0.0",
		Tables: []TableDef{
			{
				Name:    "files",
				Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "project_id", Type: "INTEGER"}},
				ForeignKeys: []ForeignKeyDef{
					{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"},
				},
			},
		},
	}
	live := &LiveSchema{Tables: map[string]types.TableSchema{
		"files": liveTable("files",
			types.Column{Name: "id", Type: "INTEGER"},
			types.Column{Name: "project_id", Type: "INTEGER"},
		),
	}}

	diff := Compare(def, live)
	require.Len(t, diff.ConstraintDiffs, 1)
	assert.Equal(t, "files", diff.ConstraintDiffs[0].Table)
	assert.Contains(t, diff.ConstraintDiffs[0].Description, "missing foreign key project_id")
	assert.True(t, diff.HasChanges())
}

func TestCompareVirtualTables(t *testing.T) {
	vt := VirtualTableDef{
		Name:    "symbols_fts",
		Module:  "fts5",
		Columns: []string{"name"},
	}
	def := &Definition{Version: "1.0.0", VirtualTables: []VirtualTableDef{vt}}

	live := &LiveSchema{
		Tables:        map[string]types.TableSchema{},
		VirtualTables: map[string]string{},
	}
	diff := Compare(def, live)
	assert.Equal(t, []string{"symbols_fts"}, diff.VirtualTables)

	live.VirtualTables["symbols_fts"] = normalizeSQL(vt.CreateSQL())
	diff = Compare(def, live)
	assert.Empty(t, diff.VirtualTables)
	assert.False(t, diff.HasChanges())

	// Different column set on the live side forces a rebuild.
	live.VirtualTables["symbols_fts"] = normalizeSQL("CREATE VIRTUAL TABLE symbols_fts USING fts5(name, signature)")
	diff = Compare(def, live)
	assert.Equal(t, []string{"symbols_fts"}, diff.VirtualTables)
}

func TestDiffSummary(t *testing.T) {
	diff := &Diff{
		MissingTables: []string{"chunks"},
		ExtraTables:   []string{"scratch"},
		ColumnDiffs: map[string]ColumnDiff{
			"files": {
				Missing: []ColumnDef{{Name: "dirty", Type: "INTEGER"}},
				Changed: []ColumnChange{{Column: "size_bytes", FromType: "TEXT", ToType: "INTEGER"}},
			},
		},
		VirtualTables: []string{"symbols_fts"},
	}

	lines := diff.Summary()
	assert.Contains(t, lines, "create table chunks")
	assert.Contains(t, lines, "extra table scratch (left untouched)")
	assert.Contains(t, lines, "add column files.dirty")
	assert.Contains(t, lines, "rebuild files: column size_bytes TEXT -> INTEGER")
	assert.Contains(t, lines, "rebuild virtual table symbols_fts")
}
