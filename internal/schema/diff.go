package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codescope/codescope/pkg/types"
)

// Diff is the computed set of differences between the live database and a
// Definition. Pure value object; HasChanges gates whether any migration
// work is needed.
type Diff struct {
	MissingTables []string              // in definition, not live
	ExtraTables   []string              // live, not in definition
	ColumnDiffs   map[string]ColumnDiff // per existing table
	MissingIndexes []QualifiedIndex
	ExtraIndexes   []QualifiedIndex
	ConstraintDiffs []ConstraintDiff // foreign key differences; repaired by table rebuild
	VirtualTables  []string         // missing or changed virtual tables
}

// ConstraintDiff records a constraint mismatch on one table.
type ConstraintDiff struct {
	Table       string
	Description string
}

// ColumnDiff holds per-table column differences. Type changes are tracked
// separately from additive changes because they need the table-rebuild
// repair strategy.
type ColumnDiff struct {
	Missing []ColumnDef    // defined but absent from the live table
	Extra   []string       // live but not defined
	Changed []ColumnChange // type or nullability differs
}

// ColumnChange records one column whose live shape differs from the definition.
type ColumnChange struct {
	Column   string
	FromType string
	ToType   string
	NotNull  bool // definition wants NOT NULL
	WasNull  bool // live column allows NULL
}

// QualifiedIndex names an index together with its owning table.
type QualifiedIndex struct {
	Table string
	Index IndexDef
}

func (d ColumnDiff) empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 && len(d.Changed) == 0
}

// HasChanges reports whether applying the diff would do any work. Extra
// tables and extra columns are observations only; they never trigger a
// migration on their own.
func (d *Diff) HasChanges() bool {
	if len(d.MissingTables) > 0 || len(d.MissingIndexes) > 0 || len(d.ExtraIndexes) > 0 ||
		len(d.VirtualTables) > 0 || len(d.ConstraintDiffs) > 0 {
		return true
	}
	for _, cd := range d.ColumnDiffs {
		if len(cd.Missing) > 0 || len(cd.Changed) > 0 {
			return true
		}
	}
	return false
}

// Summary renders a one-line-per-change description of the diff.
func (d *Diff) Summary() []string {
	var out []string
	for _, t := range d.MissingTables {
		out = append(out, "create table "+t)
	}
	for _, t := range d.ExtraTables {
		out = append(out, "extra table "+t+" (left untouched)")
	}
	tables := make([]string, 0, len(d.ColumnDiffs))
	for t := range d.ColumnDiffs {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		cd := d.ColumnDiffs[t]
		for _, c := range cd.Missing {
			out = append(out, fmt.Sprintf("add column %s.%s", t, c.Name))
		}
		for _, c := range cd.Changed {
			out = append(out, fmt.Sprintf("rebuild %s: column %s %s -> %s", t, c.Column, c.FromType, c.ToType))
		}
	}
	for _, qi := range d.MissingIndexes {
		out = append(out, fmt.Sprintf("create index %s on %s", qi.Index.Name, qi.Table))
	}
	for _, qi := range d.ExtraIndexes {
		out = append(out, fmt.Sprintf("drop index %s on %s", qi.Index.Name, qi.Table))
	}
	for _, vt := range d.VirtualTables {
		out = append(out, "rebuild virtual table "+vt)
	}
	for _, cd := range d.ConstraintDiffs {
		out = append(out, cd.Description)
	}
	return out
}

// Compare diffs a schema definition against the introspected live schema.
func Compare(def *Definition, live *LiveSchema) *Diff {
	diff := &Diff{ColumnDiffs: make(map[string]ColumnDiff)}

	for _, want := range def.Tables {
		liveTable, ok := live.Tables[want.Name]
		if !ok {
			diff.MissingTables = append(diff.MissingTables, want.Name)
			continue
		}
		cd := compareColumns(&want, &liveTable)
		if !cd.empty() {
			diff.ColumnDiffs[want.Name] = cd
		}
		compareIndexes(diff, &want, &liveTable)
		compareForeignKeys(diff, &want, &liveTable)
	}

	defined := make(map[string]bool, len(def.Tables))
	for _, t := range def.Tables {
		defined[t.Name] = true
	}
	for name := range live.Tables {
		if !defined[name] {
			diff.ExtraTables = append(diff.ExtraTables, name)
		}
	}
	sort.Strings(diff.MissingTables)
	sort.Strings(diff.ExtraTables)

	for _, vt := range def.VirtualTables {
		liveSQL, ok := live.VirtualTables[vt.Name]
		if !ok || liveSQL != normalizeSQL(vt.CreateSQL()) {
			diff.VirtualTables = append(diff.VirtualTables, vt.Name)
		}
	}
	return diff
}

func compareColumns(want *TableDef, live *types.TableSchema) ColumnDiff {
	var cd ColumnDiff
	liveCols := make(map[string]types.Column, len(live.Columns))
	for _, c := range live.Columns {
		liveCols[c.Name] = c
	}

	for _, wc := range want.Columns {
		lc, ok := liveCols[wc.Name]
		if !ok {
			cd.Missing = append(cd.Missing, wc)
			continue
		}
		wantType := strings.ToUpper(wc.Type)
		if lc.Type != wantType || lc.NotNull != wc.NotNull {
			cd.Changed = append(cd.Changed, ColumnChange{
				Column:   wc.Name,
				FromType: lc.Type,
				ToType:   wantType,
				NotNull:  wc.NotNull,
				WasNull:  !lc.NotNull,
			})
		}
	}

	for _, lc := range live.Columns {
		if _, ok := want.Column(lc.Name); !ok {
			cd.Extra = append(cd.Extra, lc.Name)
		}
	}
	return cd
}

func compareIndexes(diff *Diff, want *TableDef, live *types.TableSchema) {
	liveIdx := make(map[string]types.Index, len(live.Indexes))
	for _, i := range live.Indexes {
		liveIdx[i.Name] = i
	}
	wanted := make(map[string]bool, len(want.Indexes))
	for _, wi := range want.Indexes {
		wanted[wi.Name] = true
		li, ok := liveIdx[wi.Name]
		if ok && li.Unique == wi.Unique && strings.Join(li.Columns, ",") == strings.Join(wi.Columns, ",") {
			continue
		}
		if ok {
			// Shape changed: drop and recreate.
			diff.ExtraIndexes = append(diff.ExtraIndexes, QualifiedIndex{
				Table: want.Name,
				Index: IndexDef{Name: li.Name, Columns: li.Columns, Unique: li.Unique},
			})
		}
		diff.MissingIndexes = append(diff.MissingIndexes, QualifiedIndex{Table: want.Name, Index: wi})
	}
	for _, li := range live.Indexes {
		if !wanted[li.Name] {
			diff.ExtraIndexes = append(diff.ExtraIndexes, QualifiedIndex{
				Table: want.Name,
				Index: IndexDef{Name: li.Name, Columns: li.Columns, Unique: li.Unique},
			})
		}
	}
}

func compareForeignKeys(diff *Diff, want *TableDef, live *types.TableSchema) {
	liveFK := make(map[string]types.ForeignKey, len(live.ForeignKeys))
	for _, fk := range live.ForeignKeys {
		liveFK[fk.Column] = fk
	}
	for _, fk := range want.ForeignKeys {
		lfk, ok := liveFK[fk.Column]
		if !ok {
			diff.ConstraintDiffs = append(diff.ConstraintDiffs, ConstraintDiff{
				Table:       want.Name,
				Description: fmt.Sprintf("%s: missing foreign key %s -> %s(%s)", want.Name, fk.Column, fk.RefTable, fk.RefColumn),
			})
			continue
		}
		if lfk.RefTable != fk.RefTable || lfk.RefColumn != fk.RefColumn {
			diff.ConstraintDiffs = append(diff.ConstraintDiffs, ConstraintDiff{
				Table: want.Name,
				Description: fmt.Sprintf("%s: foreign key %s references %s(%s), want %s(%s)",
					want.Name, fk.Column, lfk.RefTable, lfk.RefColumn, fk.RefTable, fk.RefColumn),
			})
		}
	}
}
