package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/rpc"
	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/internal/worker"
	"github.com/codescope/codescope/pkg/types"
)

// ProxyDriver forwards every operation to the worker process that owns the
// database file. Calls submit a job over the worker socket, then poll its
// status on a timer until it reaches a terminal state or the command
// timeout expires. A dead worker is restarted transparently on the next
// call.
type ProxyDriver struct {
	cfg     *DriverConfig
	workers *worker.Registry
	client  *rpc.Client
	log     zerolog.Logger
}

var _ Driver = (*ProxyDriver)(nil)

// NewProxyDriver creates a proxy driver for cfg.Path.
func NewProxyDriver(cfg *DriverConfig, log zerolog.Logger) *ProxyDriver {
	mgr := worker.NewManager(cfg.Worker.Executable, cfg.Worker.StartTimeout, log)
	return &ProxyDriver{
		cfg:     cfg,
		workers: worker.NewRegistry(mgr),
		log:     log,
	}
}

// Workers exposes the registry of workers this driver has started, so the
// application can stop them on shutdown.
func (p *ProxyDriver) Workers() *worker.Registry { return p.workers }

// Connect ensures a live worker exists for the database file.
func (p *ProxyDriver) Connect(ctx context.Context) error {
	info, err := p.workers.Acquire(ctx, p.cfg.Path)
	if err != nil {
		return &ConnectionError{Path: p.cfg.Path, Err: err}
	}
	p.client = rpc.NewClient(info.SocketPath)
	return nil
}

func (p *ProxyDriver) ensure(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	return p.Connect(ctx)
}

// submitFn submits one job and returns its ID.
type submitFn func(ctx context.Context) (string, error)

// run submits a job and polls it to completion.
func (p *ProxyDriver) run(ctx context.Context, op types.Operation, sqlText string, submit submitFn) (json.RawMessage, error) {
	return p.runTimeout(ctx, op, sqlText, p.cfg.Worker.CommandTimeout, submit)
}

func (p *ProxyDriver) runTimeout(ctx context.Context, op types.Operation, sqlText string, timeout time.Duration, submit submitFn) (json.RawMessage, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jobID, err := submit(opCtx)
	if err != nil {
		// The recorded worker may have died since the last call. Restart
		// it once and retry before giving up.
		if !isConnFailure(err) {
			return nil, &OperationError{Operation: string(op), SQL: sqlText, Err: err}
		}
		p.client = nil
		if cerr := p.Connect(ctx); cerr != nil {
			return nil, cerr
		}
		jobID, err = submit(opCtx)
		if err != nil {
			return nil, &ConnectionError{Path: p.cfg.Path, Err: err}
		}
	}

	ticker := time.NewTicker(p.cfg.Worker.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-opCtx.Done():
			p.abandon(jobID)
			if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &TimeoutError{JobID: jobID, Timeout: timeout}
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}

		resp, err := p.client.Status(opCtx, jobID)
		if err != nil {
			if opCtx.Err() != nil {
				continue // deadline raced the poll; handled above
			}
			return nil, &ConnectionError{Path: p.cfg.Path, Err: err}
		}
		if !resp.Success {
			return nil, &OperationError{Operation: string(op), SQL: sqlText, Err: errors.New(resp.Error)}
		}
		switch resp.Status {
		case types.JobCompleted:
			return resp.Result, nil
		case types.JobFailed:
			return nil, wireError(resp, op, sqlText)
		case types.JobCancelled:
			return nil, &OperationError{Operation: string(op), SQL: sqlText, Err: errors.New("job was cancelled")}
		}
	}
}

// abandon sends a best-effort cancel for a job the caller gave up on.
func (p *ProxyDriver) abandon(jobID string) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Cancel(cancelCtx, jobID); err != nil {
		p.log.Debug().Str("job", jobID).Err(err).Msg("failed to cancel abandoned job")
	}
}

func isConnFailure(err error) bool {
	return errors.Is(err, rpc.ErrDial)
}

// wireError reconstructs a typed error from the response's error kind.
func wireError(resp types.Response, op types.Operation, sqlText string) error {
	switch resp.ErrorKind {
	case types.ErrKindValidation:
		return &schema.ValidationError{Reason: resp.Error}
	case types.ErrKindMigration:
		return &schema.MigrationError{Err: errors.New(resp.Error)}
	case types.ErrKindBackup:
		return &schema.BackupError{Err: errors.New(resp.Error)}
	default:
		return &OperationError{Operation: string(op), SQL: sqlText, Err: errors.New(resp.Error)}
	}
}

// Execute forwards a statement to the worker.
func (p *ProxyDriver) Execute(ctx context.Context, sqlText string, params ...interface{}) error {
	_, err := p.run(ctx, types.OpExecute, sqlText, func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpExecute, sqlText, params)
	})
	return err
}

// FetchOne forwards a query and decodes the first row, nil when the query
// matched nothing.
func (p *ProxyDriver) FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error) {
	raw, err := p.run(ctx, types.OpFetchOne, sqlText, func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpFetchOne, sqlText, params)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	row, err := decodeRow(raw)
	if err != nil {
		return nil, &OperationError{Operation: string(types.OpFetchOne), SQL: sqlText, Err: err}
	}
	return row, nil
}

// FetchAll forwards a query and decodes every row.
func (p *ProxyDriver) FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error) {
	raw, err := p.run(ctx, types.OpFetchAll, sqlText, func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpFetchAll, sqlText, params)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, &OperationError{Operation: string(types.OpFetchAll), SQL: sqlText, Err: err}
	}
	return rows, nil
}

// Begin opens a transaction on the worker's connection.
func (p *ProxyDriver) Begin(ctx context.Context) error {
	_, err := p.run(ctx, types.OpBegin, "", func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpBegin, "", nil)
	})
	return err
}

// Commit commits the worker-side transaction.
func (p *ProxyDriver) Commit(ctx context.Context) error {
	_, err := p.run(ctx, types.OpCommit, "", func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpCommit, "", nil)
	})
	return err
}

// Rollback rolls back the worker-side transaction.
func (p *ProxyDriver) Rollback(ctx context.Context) error {
	_, err := p.run(ctx, types.OpRollback, "", func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpRollback, "", nil)
	})
	return err
}

// LastInsertID fetches the row ID of the worker's most recent insert.
func (p *ProxyDriver) LastInsertID(ctx context.Context) (int64, error) {
	raw, err := p.run(ctx, types.OpLastInsertID, "", func(c context.Context) (string, error) {
		return p.client.Submit(c, types.OpLastInsertID, "", nil)
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		LastInsertID int64 `json:"last_insert_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, &OperationError{Operation: string(types.OpLastInsertID), Err: err}
	}
	return out.LastInsertID, nil
}

// TableInfo forwards a table introspection request.
func (p *ProxyDriver) TableInfo(ctx context.Context, name string) (types.TableSchema, error) {
	raw, err := p.run(ctx, types.OpTableInfo, "", func(c context.Context) (string, error) {
		return p.client.SubmitTableInfo(c, name)
	})
	if err != nil {
		return types.TableSchema{}, err
	}
	var ts types.TableSchema
	if err := json.Unmarshal(raw, &ts); err != nil {
		return types.TableSchema{}, &OperationError{Operation: string(types.OpTableInfo), Err: err}
	}
	return ts, nil
}

// SyncSchema serializes def and runs the sync inside the worker process,
// polling like any other job. Migrations can be slow, so the command
// timeout is stretched for this one operation.
func (p *ProxyDriver) SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error) {
	payload, err := json.Marshal(def)
	if err != nil {
		return types.SyncResult{}, fmt.Errorf("marshal schema definition: %w", err)
	}
	timeout := p.cfg.Worker.CommandTimeout * 4
	raw, err := p.runTimeout(ctx, types.OpSyncSchema, "", timeout, func(c context.Context) (string, error) {
		return p.client.SubmitSyncSchema(c, payload, backupDir)
	})
	if err != nil {
		return types.SyncResult{}, err
	}
	var res types.SyncResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return types.SyncResult{}, &OperationError{Operation: string(types.OpSyncSchema), Err: err}
	}
	return res, nil
}

// Disconnect drops the client. The worker stays up for other callers;
// stopping it is the registry's job.
func (p *ProxyDriver) Disconnect() error {
	p.client = nil
	return nil
}

// decodeRow decodes one JSON row, keeping integers as int64 instead of
// letting the decoder flatten every number to float64.
func decodeRow(raw json.RawMessage) (types.Row, error) {
	var m map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	row := make(types.Row, len(m))
	for k, v := range m {
		row[k] = normalizeJSON(v)
	}
	return row, nil
}

func decodeRows(raw json.RawMessage) ([]types.Row, error) {
	var ms []map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&ms); err != nil {
		return nil, err
	}
	rows := make([]types.Row, 0, len(ms))
	for _, m := range ms {
		row := make(types.Row, len(m))
		for k, v := range m {
			row[k] = normalizeJSON(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeJSON(v interface{}) interface{} {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}
