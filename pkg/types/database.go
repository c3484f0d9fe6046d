package types

import "time"

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// Column describes one column of a live table.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      bool    `json:"not_null"`
	DefaultValue *string `json:"default_value,omitempty"`
	PrimaryKey   bool    `json:"primary_key"`
}

// Index describes an index on a live table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// ForeignKey describes a foreign key constraint on a live table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
	OnDelete  string `json:"on_delete,omitempty"`
	OnUpdate  string `json:"on_update,omitempty"`
}

// TableSchema is the introspected structure of a single live table.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Virtual     bool         `json:"virtual"`
	RowCount    int64        `json:"row_count"`
}

// SyncResult reports what a schema synchronization run did.
type SyncResult struct {
	ChangesApplied []string      `json:"changes_applied"`
	BackupID       *string       `json:"backup_id,omitempty"`
	BackupPath     string        `json:"backup_path,omitempty"`
	FromVersion    string        `json:"from_version"`
	ToVersion      string        `json:"to_version"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// HasChanges reports whether the run applied any migration work.
func (r SyncResult) HasChanges() bool {
	return len(r.ChangesApplied) > 0
}
