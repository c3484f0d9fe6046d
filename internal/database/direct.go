package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/pkg/types"
)

// DirectDriver is the only component that opens a native connection to the
// database file. Connect refuses to run unless the worker environment
// marker is set, which is what enforces the single-writer rule: every other
// process must go through a ProxyDriver.
type DirectDriver struct {
	path string
	db   *sql.DB
	tx   *sql.Tx

	lastInsertID int64
}

var _ Driver = (*DirectDriver)(nil)

// NewDirectDriver creates a direct driver for the database file at path.
func NewDirectDriver(path string) *DirectDriver {
	return &DirectDriver{path: path}
}

// Connect opens the native connection. Fails fast when called outside the
// worker process.
func (d *DirectDriver) Connect(ctx context.Context) error {
	if os.Getenv(types.WorkerEnvMarker) != "1" {
		return &ConnectionError{
			Path: d.path,
			Err:  fmt.Errorf("direct database access is reserved for the worker process (%s not set)", types.WorkerEnvMarker),
		}
	}
	db, err := openDatabase(d.path)
	if err != nil {
		return &ConnectionError{Path: d.path, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &ConnectionError{Path: d.path, Err: err}
	}
	d.db = db
	return nil
}

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier routes through the open transaction when one is active.
func (d *DirectDriver) querier() execer {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Execute runs a statement that returns no rows.
func (d *DirectDriver) Execute(ctx context.Context, sqlText string, params ...interface{}) error {
	res, err := d.querier().ExecContext(ctx, sqlText, params...)
	if err != nil {
		return &OperationError{Operation: string(types.OpExecute), SQL: sqlText, Err: err}
	}
	if id, err := res.LastInsertId(); err == nil {
		d.lastInsertID = id
	}
	return nil
}

// FetchOne runs a query and returns the first row, or nil when the query
// matches nothing.
func (d *DirectDriver) FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error) {
	rows, err := d.FetchAll(ctx, sqlText, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchAll runs a query and returns every row.
func (d *DirectDriver) FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error) {
	rows, err := d.querier().QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, &OperationError{Operation: string(types.OpFetchAll), SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &OperationError{Operation: string(types.OpFetchAll), SQL: sqlText, Err: err}
	}

	var out []types.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &OperationError{Operation: string(types.OpFetchAll), SQL: sqlText, Err: err}
		}
		row := make(types.Row, len(cols))
		for i, name := range cols {
			row[name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &OperationError{Operation: string(types.OpFetchAll), SQL: sqlText, Err: err}
	}
	return out, nil
}

// normalizeValue maps driver-specific scan types onto the small set of
// value types rows carry: string, int64, float64, bool, []byte stays only
// for BLOB columns the driver reports as such.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return v
	}
}

// Begin opens a transaction. All subsequent operations run inside it until
// Commit or Rollback.
func (d *DirectDriver) Begin(ctx context.Context) error {
	if d.tx != nil {
		return &OperationError{Operation: string(types.OpBegin), Err: errors.New("transaction already open")}
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &OperationError{Operation: string(types.OpBegin), Err: err}
	}
	d.tx = tx
	return nil
}

// Commit commits the open transaction.
func (d *DirectDriver) Commit(ctx context.Context) error {
	if d.tx == nil {
		return &OperationError{Operation: string(types.OpCommit), Err: errors.New("no open transaction")}
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return &OperationError{Operation: string(types.OpCommit), Err: err}
	}
	return nil
}

// Rollback rolls back the open transaction.
func (d *DirectDriver) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return &OperationError{Operation: string(types.OpRollback), Err: errors.New("no open transaction")}
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		return &OperationError{Operation: string(types.OpRollback), Err: err}
	}
	return nil
}

// LastInsertID returns the row ID produced by the most recent Execute.
func (d *DirectDriver) LastInsertID(ctx context.Context) (int64, error) {
	return d.lastInsertID, nil
}

// TableInfo introspects one live table.
func (d *DirectDriver) TableInfo(ctx context.Context, name string) (types.TableSchema, error) {
	ts, err := schema.TableInfo(ctx, d.querier(), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TableSchema{}, &OperationError{
				Operation: string(types.OpTableInfo),
				Err:       fmt.Errorf("table %s does not exist", name),
			}
		}
		return types.TableSchema{}, &OperationError{Operation: string(types.OpTableInfo), Err: err}
	}
	return ts, nil
}

// SyncSchema reconciles the live database against def. The comparator runs
// in this process so it shares the connection with the data it inspects.
func (d *DirectDriver) SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error) {
	if d.tx != nil {
		return types.SyncResult{}, &OperationError{
			Operation: string(types.OpSyncSchema),
			Err:       errors.New("schema sync cannot run inside an open transaction"),
		}
	}
	return schema.Sync(ctx, d.db, d.path, def, backupDir)
}

// Disconnect closes the native connection, rolling back any open
// transaction first.
func (d *DirectDriver) Disconnect() error {
	if d.db == nil {
		return nil
	}
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
