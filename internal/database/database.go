package database

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/internal/worker"
	"github.com/codescope/codescope/pkg/types"
)

// DB is the facade every other subsystem goes through. It hides the
// concrete driver: callers cannot tell whether they run inside the worker
// process on a native connection or behind a proxy talking to one.
type DB struct {
	driver Driver
	cfg    DriverConfig
	log    zerolog.Logger

	txMu sync.Mutex
}

// Open connects the configured driver and reconciles the live database
// against the platform schema definition.
func Open(ctx context.Context, cfg DriverConfig, log zerolog.Logger) (*DB, error) {
	db, err := OpenWithoutSync(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	res, err := db.SyncSchema(ctx, schema.Platform(), cfg.Worker.BackupDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if res.HasChanges() {
		log.Info().
			Strs("changes", res.ChangesApplied).
			Str("from", res.FromVersion).
			Str("to", res.ToVersion).
			Msg("database schema migrated")
	}
	return db, nil
}

// OpenWithoutSync connects the configured driver but leaves the schema
// alone. Used by tooling that inspects a database as-is.
func OpenWithoutSync(ctx context.Context, cfg DriverConfig, log zerolog.Logger) (*DB, error) {
	driver, err := NewDriver(&cfg, log)
	if err != nil {
		return nil, err
	}
	if err := driver.Connect(ctx); err != nil {
		return nil, err
	}
	return &DB{driver: driver, cfg: cfg, log: log}, nil
}

// NewWithDriver wraps an already-connected driver. Used in tests.
func NewWithDriver(driver Driver, log zerolog.Logger) *DB {
	return &DB{driver: driver, log: log}
}

// Path returns the database file path the facade was opened on.
func (d *DB) Path() string { return d.cfg.Path }

// Execute runs a statement that returns no rows.
func (d *DB) Execute(ctx context.Context, sqlText string, params ...interface{}) error {
	return d.driver.Execute(ctx, sqlText, params...)
}

// FetchOne runs a query and returns the first row, nil when nothing
// matched.
func (d *DB) FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error) {
	return d.driver.FetchOne(ctx, sqlText, params...)
}

// FetchAll runs a query and returns every row.
func (d *DB) FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error) {
	return d.driver.FetchAll(ctx, sqlText, params...)
}

// LastInsertID returns the row ID of the most recent insert.
func (d *DB) LastInsertID(ctx context.Context) (int64, error) {
	return d.driver.LastInsertID(ctx)
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. Transactions are serialized per facade because the underlying
// connection holds at most one.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	if err := d.driver.Begin(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rbErr := d.driver.Rollback(ctx); rbErr != nil {
			d.log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return d.driver.Commit(ctx)
}

// TableInfo introspects one live table.
func (d *DB) TableInfo(ctx context.Context, name string) (types.TableSchema, error) {
	return d.driver.TableInfo(ctx, name)
}

// SyncSchema reconciles the live database against def, backing it up first
// when it holds data.
func (d *DB) SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error) {
	return d.driver.SyncSchema(ctx, def, backupDir)
}

// Close disconnects the driver. Worker processes stay up; use Workers to
// stop them.
func (d *DB) Close() error {
	return d.driver.Disconnect()
}

type workerOwner interface {
	Workers() *worker.Registry
}

// Workers returns the worker registry when the underlying driver manages
// worker processes, nil otherwise.
func (d *DB) Workers() *worker.Registry {
	if owner, ok := d.driver.(workerOwner); ok {
		return owner.Workers()
	}
	return nil
}
