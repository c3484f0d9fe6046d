package schema

import (
	"context"
	"fmt"
	"strings"
)

// ValidationResult is the outcome of the pre-migration data-compatibility
// check. OK is false when a proposed change would conflict with existing
// data; in that case Reason names the conflict and no statement may run.
type ValidationResult struct {
	OK     bool
	Table  string
	Column string
	Reason string
}

// Validate checks that every change in the diff is compatible with the data
// already in the database. It is a hard gate: a failed validation means
// zero statements run.
func Validate(ctx context.Context, q querier, def *Definition, diff *Diff) (ValidationResult, error) {
	for table, cd := range diff.ColumnDiffs {
		want, ok := def.Table(table)
		if !ok {
			continue
		}
		for _, col := range cd.Missing {
			// A new NOT NULL column needs a default unless the table is empty;
			// existing rows would otherwise violate the constraint.
			if col.NotNull && col.Default == nil {
				var n int64
				if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
					return ValidationResult{}, err
				}
				if n > 0 {
					return ValidationResult{
						Table:  table,
						Column: col.Name,
						Reason: fmt.Sprintf("cannot add NOT NULL column without default to table with %d rows", n),
					}, nil
				}
			}
		}
		for _, ch := range cd.Changed {
			res, err := validateChange(ctx, q, table, &want, ch)
			if err != nil {
				return ValidationResult{}, err
			}
			if !res.OK {
				return res, nil
			}
		}
	}
	return ValidationResult{OK: true}, nil
}

func validateChange(ctx context.Context, q querier, table string, want *TableDef, ch ColumnChange) (ValidationResult, error) {
	// Tightening nullability: reject if existing NULLs would violate it.
	if ch.NotNull && ch.WasNull {
		var nulls int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %q WHERE %q IS NULL", table, ch.Column)
		if err := q.QueryRowContext(ctx, query).Scan(&nulls); err != nil {
			return ValidationResult{}, err
		}
		if nulls > 0 {
			return ValidationResult{
				Table:  table,
				Column: ch.Column,
				Reason: fmt.Sprintf("%d existing NULL values conflict with NOT NULL", nulls),
			}, nil
		}
	}

	// Narrowing type change: every existing value must survive the cast
	// losslessly, or the copy step would corrupt data.
	to := strings.ToUpper(ch.ToType)
	if strings.Contains(to, "INT") || to == "REAL" || to == "NUMERIC" {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %q WHERE %q IS NOT NULL AND CAST(CAST(%q AS %s) AS TEXT) != CAST(%q AS TEXT)",
			table, ch.Column, ch.Column, to, ch.Column)
		var lossy int64
		if err := q.QueryRowContext(ctx, query).Scan(&lossy); err != nil {
			return ValidationResult{}, err
		}
		if lossy > 0 {
			return ValidationResult{
				Table:  table,
				Column: ch.Column,
				Reason: fmt.Sprintf("%d existing values are not representable as %s", lossy, to),
			}, nil
		}
	}
	return ValidationResult{OK: true}, nil
}
