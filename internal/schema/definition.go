package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CurrentVersion is the schema version this build ships.
const CurrentVersion = "1.2.0"

// SettingsTable is the reserved table holding the applied schema version.
// It never appears in definitions and is ignored by introspection.
const SettingsTable = "codescope_settings"

// Definition is the structural description of the intended database
// schema. It is the single source of truth the comparator diffs the live
// database against. Static per build. Name ties the definition to its
// registered version migration callbacks.
type Definition struct {
	Name          string            `json:"name,omitempty"`
	Version       string            `json:"version"`
	Tables        []TableDef        `json:"tables"`
	VirtualTables []VirtualTableDef `json:"virtual_tables,omitempty"`
}

// TableDef describes one ordinary table.
type TableDef struct {
	Name        string          `json:"name"`
	Columns     []ColumnDef     `json:"columns"`
	PrimaryKey  []string        `json:"primary_key,omitempty"` // composite PK; single-column PKs use ColumnDef.PrimaryKey
	ForeignKeys []ForeignKeyDef `json:"foreign_keys,omitempty"`
	Uniques     [][]string      `json:"uniques,omitempty"`
	Checks      []string        `json:"checks,omitempty"`
	Indexes     []IndexDef      `json:"indexes,omitempty"`
}

// ColumnDef describes one column.
type ColumnDef struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null,omitempty"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key,omitempty"`
}

// IndexDef describes one index on its owning table.
type IndexDef struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKeyDef describes one foreign key constraint.
type ForeignKeyDef struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
	OnDelete  string `json:"on_delete,omitempty"`
	OnUpdate  string `json:"on_update,omitempty"`
}

// VirtualTableDef describes a virtual (full-text) table. FTS tables cannot
// be altered in place; any change rebuilds them.
type VirtualTableDef struct {
	Name    string   `json:"name"`
	Module  string   `json:"module"` // e.g. "fts5"
	Columns []string `json:"columns"`
	Args    []string `json:"args,omitempty"` // extra module arguments, e.g. content='symbols'
}

// Table returns the named table definition, if present.
func (d *Definition) Table(name string) (TableDef, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDef{}, false
}

// Column returns the named column definition, if present.
func (t *TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// CreateSQL renders the CREATE TABLE statement for the table.
func (t *TableDef) CreateSQL() string {
	var parts []string
	for _, c := range t.Columns {
		parts = append(parts, c.columnSQL())
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(t.PrimaryKey, ", ")))
	}
	for _, u := range t.Uniques {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(u, ", ")))
	}
	for _, ck := range t.Checks {
		parts = append(parts, fmt.Sprintf("CHECK (%s)", ck))
	}
	for _, fk := range t.ForeignKeys {
		clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)", fk.Column, fk.RefTable, fk.RefColumn)
		if fk.OnDelete != "" {
			clause += " ON DELETE " + fk.OnDelete
		}
		if fk.OnUpdate != "" {
			clause += " ON UPDATE " + fk.OnUpdate
		}
		parts = append(parts, clause)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", t.Name, strings.Join(parts, ",\n    "))
}

func (c *ColumnDef) columnSQL() string {
	sqlStr := c.Name + " " + c.Type
	if c.PrimaryKey {
		sqlStr += " PRIMARY KEY"
	}
	if c.NotNull {
		sqlStr += " NOT NULL"
	}
	if c.Default != nil {
		sqlStr += " DEFAULT " + *c.Default
	}
	return sqlStr
}

// CreateSQL renders the CREATE INDEX statement for the index.
func (i *IndexDef) CreateSQL(table string) string {
	unique := ""
	if i.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, i.Name, table, strings.Join(i.Columns, ", "))
}

// CreateSQL renders the CREATE VIRTUAL TABLE statement.
func (v *VirtualTableDef) CreateSQL() string {
	args := append([]string{}, v.Columns...)
	args = append(args, v.Args...)
	return fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s(%s)", v.Name, v.Module, strings.Join(args, ", "))
}

// MigrationFunc is a version-specific migration callback for changes that
// cannot be expressed as pure structural diffs (data reshaping). Callbacks
// run inside the sync transaction, before the generic diff migration.
type MigrationFunc func(ctx context.Context, tx *sql.Tx) error

type versionMigration struct {
	version *semver.Version
	fn      MigrationFunc
}

var versionMigrations = make(map[string][]versionMigration)

// RegisterMigration registers a migration callback for one version of the
// named definition. Callbacks never fire for other definitions. Panics on
// an invalid version string; registrations happen at init time.
func RegisterMigration(defName, version string, fn MigrationFunc) {
	v := semver.MustParse(version)
	list := append(versionMigrations[defName], versionMigration{version: v, fn: fn})
	sort.Slice(list, func(a, b int) bool {
		return list[a].version.LessThan(list[b].version)
	})
	versionMigrations[defName] = list
}

// migrationsFor returns the named definition's callbacks newer than
// current and no newer than target, in version order.
func migrationsFor(defName string, current, target *semver.Version) []versionMigration {
	var out []versionMigration
	for _, m := range versionMigrations[defName] {
		if current.LessThan(m.version) && !target.LessThan(m.version) {
			out = append(out, m)
		}
	}
	return out
}
