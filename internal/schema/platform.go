package schema

func strptr(s string) *string { return &s }

// PlatformName keys the platform definition's migration callbacks.
const PlatformName = "platform"

// Platform returns the schema definition for the codescope index database:
// projects, tracked files, extracted symbols with a full-text index, code
// chunks and their embeddings. Static per build; SyncSchema reconciles the
// live database against it on first connect.
func Platform() *Definition {
	return &Definition{
		Name:    PlatformName,
		Version: CurrentVersion,
		Tables: []TableDef{
			{
				Name: "projects",
				Columns: []ColumnDef{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "root_path", Type: "TEXT", NotNull: true},
					{Name: "module_name", Type: "TEXT"},
					{Name: "go_version", Type: "TEXT"},
					{Name: "total_files", Type: "INTEGER", NotNull: true, Default: strptr("0")},
					{Name: "last_indexed_at", Type: "TIMESTAMP"},
					{Name: "created_at", Type: "TIMESTAMP", Default: strptr("CURRENT_TIMESTAMP")},
				},
				Uniques: [][]string{{"root_path"}},
				Indexes: []IndexDef{
					{Name: "idx_projects_root_path", Columns: []string{"root_path"}},
				},
			},
			{
				Name: "files",
				Columns: []ColumnDef{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "project_id", Type: "INTEGER", NotNull: true},
					{Name: "file_path", Type: "TEXT", NotNull: true},
					{Name: "package_name", Type: "TEXT"},
					{Name: "content_hash", Type: "TEXT", NotNull: true, Default: strptr("''")},
					{Name: "size_bytes", Type: "INTEGER"},
					{Name: "dirty", Type: "INTEGER", NotNull: true, Default: strptr("0")},
					{Name: "mod_time", Type: "TIMESTAMP"},
					{Name: "indexed_at", Type: "TIMESTAMP"},
				},
				ForeignKeys: []ForeignKeyDef{
					{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"},
				},
				Uniques: [][]string{{"project_id", "file_path"}},
				Indexes: []IndexDef{
					{Name: "idx_files_project", Columns: []string{"project_id"}},
					{Name: "idx_files_dirty", Columns: []string{"dirty"}},
				},
			},
			{
				Name: "symbols",
				Columns: []ColumnDef{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "file_id", Type: "INTEGER", NotNull: true},
					{Name: "name", Type: "TEXT", NotNull: true},
					{Name: "kind", Type: "TEXT", NotNull: true},
					{Name: "package_name", Type: "TEXT", NotNull: true, Default: strptr("''")},
					{Name: "signature", Type: "TEXT"},
					{Name: "doc_comment", Type: "TEXT"},
					{Name: "receiver", Type: "TEXT"},
					{Name: "start_line", Type: "INTEGER"},
					{Name: "start_col", Type: "INTEGER"},
					{Name: "end_line", Type: "INTEGER"},
					{Name: "end_col", Type: "INTEGER"},
				},
				ForeignKeys: []ForeignKeyDef{
					{Column: "file_id", RefTable: "files", RefColumn: "id", OnDelete: "CASCADE"},
				},
				Indexes: []IndexDef{
					{Name: "idx_symbols_file", Columns: []string{"file_id"}},
					{Name: "idx_symbols_name", Columns: []string{"name"}},
					{Name: "idx_symbols_kind", Columns: []string{"kind"}},
				},
			},
			{
				Name: "chunks",
				Columns: []ColumnDef{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "file_id", Type: "INTEGER", NotNull: true},
					{Name: "content", Type: "TEXT", NotNull: true},
					{Name: "start_line", Type: "INTEGER", NotNull: true},
					{Name: "end_line", Type: "INTEGER", NotNull: true},
					{Name: "embedded", Type: "INTEGER", NotNull: true, Default: strptr("0")},
				},
				ForeignKeys: []ForeignKeyDef{
					{Column: "file_id", RefTable: "files", RefColumn: "id", OnDelete: "CASCADE"},
				},
				Uniques: [][]string{{"file_id", "start_line", "end_line"}},
				Indexes: []IndexDef{
					{Name: "idx_chunks_file", Columns: []string{"file_id"}},
					{Name: "idx_chunks_embedded", Columns: []string{"embedded"}},
				},
			},
			{
				Name: "embeddings",
				Columns: []ColumnDef{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "chunk_id", Type: "INTEGER", NotNull: true},
					{Name: "vector", Type: "BLOB", NotNull: true},
					{Name: "dimension", Type: "INTEGER", NotNull: true},
					{Name: "model", Type: "TEXT", NotNull: true},
				},
				ForeignKeys: []ForeignKeyDef{
					{Column: "chunk_id", RefTable: "chunks", RefColumn: "id", OnDelete: "CASCADE"},
				},
				Uniques: [][]string{{"chunk_id"}},
				Indexes: []IndexDef{
					{Name: "idx_embeddings_chunk", Columns: []string{"chunk_id"}},
				},
			},
		},
		VirtualTables: []VirtualTableDef{
			{
				Name:    "symbols_fts",
				Module:  "fts5",
				Columns: []string{"name", "signature", "doc_comment"},
				Args:    []string{"content='symbols'", "content_rowid='id'"},
			},
		},
	}
}
