package schema

import "fmt"

// ValidationError means the pre-migration compatibility check rejected a
// proposed change. Nothing was applied.
type ValidationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema validation failed on %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("schema validation failed on %s: %s", e.Table, e.Reason)
}

// MigrationError means a statement failed mid-transaction. The transaction
// was rolled back; the pre-sync schema is intact.
type MigrationError struct {
	Statement string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration failed at %q: %v", e.Statement, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// BackupError means a required backup could not be created. Migration of a
// non-empty database never proceeds without one.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup of %s failed: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }
