package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/codescope/codescope/pkg/types"
)

// ErrDial marks a failure to reach the worker socket. Callers check for
// it with errors.Is to distinguish a dead worker from a failed request.
var ErrDial = errors.New("dial worker socket")

// Client talks to a worker socket. Each call dials a fresh connection,
// writes one request and reads one response, matching the worker's
// one-request-per-connection contract.
type Client struct {
	socketPath  string
	dialTimeout time.Duration
}

// NewClient creates a client for the worker socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, dialTimeout: 5 * time.Second}
}

func (c *Client) do(ctx context.Context, req types.Request) (types.Response, error) {
	var d net.Dialer
	d.Timeout = c.dialTimeout
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return types.Response{}, fmt.Errorf("%w %s: %v", ErrDial, c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return types.Response{}, fmt.Errorf("write request: %w", err)
	}
	var resp types.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return types.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Submit enqueues one database job and returns its ID.
func (c *Client) Submit(ctx context.Context, op types.Operation, sqlText string, params []interface{}) (string, error) {
	resp, err := c.do(ctx, types.Request{
		Command:   types.CmdSubmit,
		Operation: op,
		SQL:       sqlText,
		Params:    params,
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("submit rejected: %s", resp.Error)
	}
	return resp.JobID, nil
}

// SubmitTableInfo enqueues a table introspection job.
func (c *Client) SubmitTableInfo(ctx context.Context, table string) (string, error) {
	resp, err := c.do(ctx, types.Request{
		Command:   types.CmdSubmit,
		Operation: types.OpTableInfo,
		Table:     table,
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("submit rejected: %s", resp.Error)
	}
	return resp.JobID, nil
}

// SubmitSyncSchema enqueues a schema sync carrying the serialized
// definition and the backup directory.
func (c *Client) SubmitSyncSchema(ctx context.Context, def json.RawMessage, backupDir string) (string, error) {
	resp, err := c.do(ctx, types.Request{
		Command:   types.CmdSyncSchema,
		Schema:    def,
		BackupDir: backupDir,
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("schema sync rejected: %s", resp.Error)
	}
	return resp.JobID, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (types.Response, error) {
	return c.do(ctx, types.Request{Command: types.CmdStatus, JobID: jobID})
}

// Cancel abandons a job. Pending jobs are skipped; a running job is
// interrupted best effort.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, types.Request{Command: types.CmdCancel, JobID: jobID})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("cancel rejected: %s", resp.Error)
	}
	return nil
}

// Ping probes whether the worker is accepting requests.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, types.Request{Command: types.CmdPing})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ping rejected: %s", resp.Error)
	}
	return nil
}

// Shutdown asks the worker to drain and exit.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.do(ctx, types.Request{Command: types.CmdShutdown})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("shutdown rejected: %s", resp.Error)
	}
	return nil
}
