package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/codescope/codescope/pkg/types"
)

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// LiveSchema is the introspected structure of the whole database.
type LiveSchema struct {
	Tables        map[string]types.TableSchema
	VirtualTables map[string]string // name -> normalized CREATE VIRTUAL TABLE sql
}

// Introspect enumerates the live tables, columns, indexes, constraints and
// virtual tables via engine pragmas. The reserved settings table, sqlite
// internals and virtual-table shadow tables are excluded.
func Introspect(ctx context.Context, q querier) (*LiveSchema, error) {
	live := &LiveSchema{
		Tables:        make(map[string]types.TableSchema),
		VirtualTables: make(map[string]string),
	}

	rows, err := q.QueryContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		var createSQL sql.NullString
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, err
		}
		if name == SettingsTable {
			continue
		}
		if createSQL.Valid && isVirtualTableSQL(createSQL.String) {
			live.VirtualTables[name] = normalizeSQL(createSQL.String)
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		if isShadowTable(name, live.VirtualTables) {
			continue
		}
		table, err := introspectTable(ctx, q, name)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect table %s: %w", name, err)
		}
		live.Tables[name] = table
	}
	return live, nil
}

// TableInfo introspects a single table. Returns sql.ErrNoRows if the table
// does not exist.
func TableInfo(ctx context.Context, q querier, name string) (types.TableSchema, error) {
	var createSQL sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&createSQL)
	if err != nil {
		return types.TableSchema{}, err
	}
	if createSQL.Valid && isVirtualTableSQL(createSQL.String) {
		return types.TableSchema{Name: name, Virtual: true}, nil
	}
	return introspectTable(ctx, q, name)
}

func introspectTable(ctx context.Context, q querier, name string) (types.TableSchema, error) {
	table := types.TableSchema{Name: name}

	cols, err := introspectColumns(ctx, q, name)
	if err != nil {
		return table, err
	}
	table.Columns = cols

	idx, err := introspectIndexes(ctx, q, name)
	if err != nil {
		return table, err
	}
	table.Indexes = idx

	fks, err := introspectForeignKeys(ctx, q, name)
	if err != nil {
		return table, err
	}
	table.ForeignKeys = fks

	if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&table.RowCount); err != nil {
		return table, err
	}
	return table, nil
}

func introspectColumns(ctx context.Context, q querier, table string) ([]types.Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []types.Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		col := types.Column{
			Name:       name,
			Type:       strings.ToUpper(colType),
			NotNull:    notNull != 0,
			PrimaryKey: pk > 0,
		}
		if dflt.Valid {
			v := dflt.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func introspectIndexes(ctx context.Context, q querier, table string) ([]types.Index, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	type listed struct {
		name   string
		unique bool
	}
	var found []listed
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, err
		}
		// Auto-generated PK/unique-constraint indexes are not part of the diff.
		if strings.HasPrefix(name, "sqlite_autoindex") {
			continue
		}
		found = append(found, listed{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []types.Index
	for _, li := range found {
		cols, err := indexColumns(ctx, q, li.name)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}
		indexes = append(indexes, types.Index{Name: li.name, Columns: cols, Unique: li.unique})
	}
	return indexes, nil
}

func indexColumns(ctx context.Context, q querier, index string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func introspectForeignKeys(ctx context.Context, q querier, table string) ([]types.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var fks []types.ForeignKey
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		fk := types.ForeignKey{Column: from, RefTable: refTable, OnDelete: onDelete, OnUpdate: onUpdate}
		if to.Valid {
			fk.RefColumn = to.String
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// IsEmpty reports whether the database holds no user data: either no user
// tables exist, or every user table has zero rows. Syncing an empty
// database skips the backup step.
func IsEmpty(ctx context.Context, q querier) (bool, error) {
	live, err := Introspect(ctx, q)
	if err != nil {
		return false, err
	}
	for _, t := range live.Tables {
		if t.RowCount > 0 {
			return false, nil
		}
	}
	return true, nil
}

func isVirtualTableSQL(createSQL string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(createSQL)), "CREATE VIRTUAL TABLE")
}

// isShadowTable reports whether name is an implementation table belonging
// to a virtual table (fts5 creates <name>_data, <name>_idx, ...).
func isShadowTable(name string, virtual map[string]string) bool {
	for vt := range virtual {
		if strings.HasPrefix(name, vt+"_") {
			return true
		}
	}
	return false
}

// normalizeSQL canonicalizes DDL text for comparison: collapse whitespace,
// strip IF NOT EXISTS and surrounding quotes.
func normalizeSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, "IF NOT EXISTS ", "")
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}
