package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// applyDiff runs the generated migration statements inside tx and returns a
// description of every change applied. Additive column changes use in-place
// ALTER; type and constraint changes rebuild the table; virtual tables are
// dropped and recreated.
func applyDiff(ctx context.Context, tx *sql.Tx, def *Definition, live *LiveSchema, diff *Diff) ([]string, error) {
	var applied []string

	exec := func(stmt, desc string) error {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &MigrationError{Statement: stmt, Err: err}
		}
		applied = append(applied, desc)
		return nil
	}

	created := make(map[string]bool)
	for _, name := range diff.MissingTables {
		t, ok := def.Table(name)
		if !ok {
			continue
		}
		if err := exec(t.CreateSQL(), "create table "+name); err != nil {
			return nil, err
		}
		for _, idx := range t.Indexes {
			if err := exec(idx.CreateSQL(name), fmt.Sprintf("create index %s on %s", idx.Name, name)); err != nil {
				return nil, err
			}
		}
		created[name] = true
	}

	rebuilds := make(map[string]bool)
	for table, cd := range diff.ColumnDiffs {
		if len(cd.Changed) > 0 {
			rebuilds[table] = true
		}
	}
	for _, cd := range diff.ConstraintDiffs {
		if !created[cd.Table] {
			rebuilds[cd.Table] = true
		}
	}

	// Additive columns on tables that keep their shape.
	for table, cd := range diff.ColumnDiffs {
		if rebuilds[table] {
			continue
		}
		for _, col := range cd.Missing {
			stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s", table, col.columnSQL())
			if err := exec(stmt, fmt.Sprintf("add column %s.%s", table, col.Name)); err != nil {
				return nil, err
			}
		}
	}

	for table := range rebuilds {
		t, ok := def.Table(table)
		if !ok {
			continue
		}
		if err := rebuildTable(&t, live, exec); err != nil {
			return nil, err
		}
	}

	for _, qi := range diff.ExtraIndexes {
		if rebuilds[qi.Table] {
			continue // dropped with the old table
		}
		stmt := fmt.Sprintf("DROP INDEX IF EXISTS %q", qi.Index.Name)
		if err := exec(stmt, fmt.Sprintf("drop index %s on %s", qi.Index.Name, qi.Table)); err != nil {
			return nil, err
		}
	}
	for _, qi := range diff.MissingIndexes {
		if created[qi.Table] || rebuilds[qi.Table] {
			continue // created with the table
		}
		if err := exec(qi.Index.CreateSQL(qi.Table), fmt.Sprintf("create index %s on %s", qi.Index.Name, qi.Table)); err != nil {
			return nil, err
		}
	}

	for _, name := range diff.VirtualTables {
		vt := virtualTableDef(def, name)
		if vt == nil {
			continue
		}
		if err := rebuildVirtualTable(vt, live, exec); err != nil {
			return nil, err
		}
	}
	return applied, nil
}

// rebuildTable applies the create-new/copy-data/drop-old/rename strategy,
// the safe path for engines with limited ALTER support. Values for changed
// columns are CAST to the new type; the validation pass has already proved
// the casts lossless.
func rebuildTable(t *TableDef, live *LiveSchema, exec func(stmt, desc string) error) error {
	tmp := t.Name + "__migrate_new"
	tmpDef := *t
	tmpDef.Name = tmp
	if err := exec(tmpDef.CreateSQL(), "create replacement table for "+t.Name); err != nil {
		return err
	}

	liveTable, hasLive := live.Tables[t.Name]
	if hasLive {
		liveCols := make(map[string]bool, len(liveTable.Columns))
		for _, c := range liveTable.Columns {
			liveCols[c.Name] = true
		}
		var dstCols, srcExprs []string
		for _, c := range t.Columns {
			if !liveCols[c.Name] {
				continue
			}
			dstCols = append(dstCols, fmt.Sprintf("%q", c.Name))
			srcExprs = append(srcExprs, fmt.Sprintf("CAST(%q AS %s)", c.Name, c.Type))
		}
		if len(dstCols) > 0 {
			stmt := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q",
				tmp, strings.Join(dstCols, ", "), strings.Join(srcExprs, ", "), t.Name)
			if err := exec(stmt, "copy data for "+t.Name); err != nil {
				return err
			}
		}
	}

	if err := exec(fmt.Sprintf("DROP TABLE %q", t.Name), "drop old "+t.Name); err != nil {
		return err
	}
	if err := exec(fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tmp, t.Name), "rename replacement to "+t.Name); err != nil {
		return err
	}
	for _, idx := range t.Indexes {
		if err := exec(idx.CreateSQL(t.Name), fmt.Sprintf("create index %s on %s", idx.Name, t.Name)); err != nil {
			return err
		}
	}
	return nil
}

// rebuildVirtualTable handles full-text tables, which cannot be altered in
// place: back rows up to a temp table, drop, recreate, restore. Tables with
// external content are repopulated from their content table instead.
func rebuildVirtualTable(vt *VirtualTableDef, live *LiveSchema, exec func(stmt, desc string) error) error {
	_, exists := live.VirtualTables[vt.Name]
	external := externalContent(vt)
	tmp := vt.Name + "__fts_backup"

	if exists && !external {
		cols := strings.Join(vt.Columns, ", ")
		stmt := fmt.Sprintf("CREATE TEMP TABLE %q AS SELECT %s FROM %q", tmp, cols, vt.Name)
		if err := exec(stmt, "back up rows of "+vt.Name); err != nil {
			return err
		}
	}
	if exists {
		if err := exec(fmt.Sprintf("DROP TABLE %q", vt.Name), "drop virtual table "+vt.Name); err != nil {
			return err
		}
	}
	if err := exec(vt.CreateSQL(), "create virtual table "+vt.Name); err != nil {
		return err
	}
	if exists && !external {
		cols := strings.Join(vt.Columns, ", ")
		stmt := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", vt.Name, cols, cols, tmp)
		if err := exec(stmt, "restore rows of "+vt.Name); err != nil {
			return err
		}
		if err := exec(fmt.Sprintf("DROP TABLE %q", tmp), "drop backup of "+vt.Name); err != nil {
			return err
		}
	}
	if external {
		stmt := fmt.Sprintf("INSERT INTO %q(%q) VALUES('rebuild')", vt.Name, vt.Name)
		if err := exec(stmt, "reindex virtual table "+vt.Name); err != nil {
			return err
		}
	}
	return nil
}

func virtualTableDef(def *Definition, name string) *VirtualTableDef {
	for i := range def.VirtualTables {
		if def.VirtualTables[i].Name == name {
			return &def.VirtualTables[i]
		}
	}
	return nil
}

// externalContent reports whether the virtual table mirrors a content table
// (fts5 content= option) and can be rebuilt from it.
func externalContent(vt *VirtualTableDef) bool {
	for _, a := range vt.Args {
		if strings.HasPrefix(strings.ReplaceAll(a, " ", ""), "content=") {
			return true
		}
	}
	return false
}
