package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/codescope/codescope/pkg/types"
)

// Sync compares def against the live database and migrates it to match.
// It runs inside the worker process on the single live connection:
//
//  1. take the per-path file lock
//  2. introspect and diff; nothing to do means an empty result
//  3. validate data compatibility (hard gate, zero changes on rejection)
//  4. back up the file unless the database is empty
//  5. apply version callbacks and the diff inside one transaction
//
// Any mid-transaction failure rolls back and surfaces a MigrationError;
// the pre-sync schema stays intact.
func Sync(ctx context.Context, db *sql.DB, dbPath string, def *Definition, backupDir string) (types.SyncResult, error) {
	result := types.SyncResult{StartedAt: time.Now().UTC(), ToVersion: def.Version}

	lock := NewPathLock(dbPath)
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := lock.Acquire(lockCtx); err != nil {
		return result, err
	}
	defer lock.Release()

	targetVersion, err := semver.NewVersion(def.Version)
	if err != nil {
		return result, fmt.Errorf("invalid definition version %q: %w", def.Version, err)
	}

	currentVersion, err := appliedVersion(ctx, db)
	if err != nil {
		return result, err
	}
	result.FromVersion = currentVersion.String()

	live, err := Introspect(ctx, db)
	if err != nil {
		return result, err
	}
	diff := Compare(def, live)

	// Callbacks reshape existing data. A database that never recorded a
	// version has nothing to reshape; it gets the tables at their final
	// shape straight from the diff.
	var pending []versionMigration
	if !currentVersion.Equal(semver.MustParse("0.0.0")) {
		pending = migrationsFor(def.Name, currentVersion, targetVersion)
	}
	if !diff.HasChanges() && len(pending) == 0 {
		result.Duration = time.Since(result.StartedAt)
		return result, nil
	}

	vres, err := Validate(ctx, db, def, diff)
	if err != nil {
		return result, err
	}
	if !vres.OK {
		return result, &ValidationError{Table: vres.Table, Column: vres.Column, Reason: vres.Reason}
	}

	empty, err := IsEmpty(ctx, db)
	if err != nil {
		return result, err
	}
	if !empty {
		rec, err := CreateBackup(dbPath, backupDir)
		if err != nil {
			var berr *BackupError
			if errors.As(err, &berr) {
				return result, err
			}
			return result, &BackupError{Path: dbPath, Err: err}
		}
		result.BackupID = &rec.ID
		result.BackupPath = rec.FilePath
	}

	// Table rebuilds drop and recreate FK parents. With enforcement on,
	// the implicit DELETE of a DROP TABLE fires ON DELETE actions and
	// cascades into child tables, so enforcement is switched off for the
	// migration connection and the result is checked before commit. The
	// pragma is a no-op inside a transaction, hence the dedicated
	// connection and the ordering here.
	conn, err := db.Conn(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to reserve migration connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	fkOn, err := foreignKeysEnabled(ctx, conn)
	if err != nil {
		return result, err
	}
	if fkOn {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return result, fmt.Errorf("failed to suspend foreign keys: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON")
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	applied, err := runMigrations(ctx, tx, def, live, diff, pending)
	if err != nil {
		_ = tx.Rollback()
		return result, err
	}
	if fkOn {
		if err := checkForeignKeys(ctx, tx); err != nil {
			_ = tx.Rollback()
			return result, err
		}
	}
	if err := tx.Commit(); err != nil {
		return result, &MigrationError{Statement: "COMMIT", Err: err}
	}
	result.ChangesApplied = applied
	result.Duration = time.Since(result.StartedAt)
	return result, nil
}

func runMigrations(ctx context.Context, tx *sql.Tx, def *Definition, live *LiveSchema, diff *Diff, pending []versionMigration) ([]string, error) {
	var applied []string

	// Version-specific callbacks run first: they handle data reshaping the
	// structural diff cannot express.
	for _, m := range pending {
		if err := m.fn(ctx, tx); err != nil {
			return nil, &MigrationError{Statement: "migration " + m.version.String(), Err: err}
		}
		applied = append(applied, "apply version migration "+m.version.String())
	}

	// The structural state may have shifted under the callbacks; the diff
	// statements use IF-style guards where possible, and a failed statement
	// rolls the whole run back either way.
	diffApplied, err := applyDiff(ctx, tx, def, live, diff)
	if err != nil {
		return nil, err
	}
	applied = append(applied, diffApplied...)

	if err := recordVersion(ctx, tx, def.Version); err != nil {
		return nil, err
	}
	return applied, nil
}

func foreignKeysEnabled(ctx context.Context, q querier) (bool, error) {
	var on int
	if err := q.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		return false, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	return on == 1, nil
}

// checkForeignKeys reruns constraint checking after a migration executed
// with enforcement off. Any violation aborts the transaction.
func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	violations := make(map[string]bool)
	for rows.Next() {
		var table, parent string
		var rowid, fkid interface{}
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign key violation: %w", err)
		}
		violations[table] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(violations) > 0 {
		tables := make([]string, 0, len(violations))
		for t := range violations {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		return &MigrationError{
			Statement: "PRAGMA foreign_key_check",
			Err:       fmt.Errorf("foreign key violations in %s", strings.Join(tables, ", ")),
		}
	}
	return nil
}

// appliedVersion reads the last-applied schema version from the reserved
// settings table. A missing table or row means version 0.0.0.
func appliedVersion(ctx context.Context, q querier) (*semver.Version, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, SettingsTable).Scan(&name)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check settings table: %w", err)
	}

	var raw string
	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = 'schema_version'", SettingsTable)).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && raw == "") {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid stored schema version %q: %w", raw, err)
	}
	return v, nil
}

func recordVersion(ctx context.Context, tx *sql.Tx, version string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, SettingsTable)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return &MigrationError{Statement: stmt, Err: err}
	}
	upsert := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, SettingsTable)
	if _, err := tx.ExecContext(ctx, upsert, version); err != nil {
		return &MigrationError{Statement: upsert, Err: err}
	}
	return nil
}
