package schema

import (
	"context"
	"database/sql"
)

// Version migration callbacks for the platform schema. These reshape data
// that predates the current definition; the structural diff takes care of
// tables, columns and indexes. Callbacks only touch shapes that already
// existed at the version they upgrade from.
func init() {
	// Early databases were written without foreign key enforcement and can
	// hold symbol and chunk rows whose files are gone.
	RegisterMigration(PlatformName, "1.1.0", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM symbols WHERE file_id NOT IN (SELECT id FROM files)`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE file_id NOT IN (SELECT id FROM files)`)
		return err
	})

	// Symbol kinds were stored with mixed case before matching became
	// case-sensitive.
	RegisterMigration(PlatformName, "1.2.0", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE symbols SET kind = LOWER(kind)`)
		return err
	})
}
