package rpc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/pkg/types"
)

// fakeExecutor records executed SQL and can be made to block.
type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	blockOn  chan struct{} // when set, Execute waits for a receive
	failWith error
}

func (f *fakeExecutor) Execute(ctx context.Context, sqlText string, params ...interface{}) error {
	if f.blockOn != nil {
		select {
		case <-f.blockOn:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	f.executed = append(f.executed, sqlText)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error) {
	return types.Row{"id": int64(1), "name": "alpha"}, nil
}

func (f *fakeExecutor) FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error) {
	return []types.Row{{"id": int64(1)}, {"id": int64(2)}}, nil
}

func (f *fakeExecutor) Begin(ctx context.Context) error    { return nil }
func (f *fakeExecutor) Commit(ctx context.Context) error   { return nil }
func (f *fakeExecutor) Rollback(ctx context.Context) error { return nil }

func (f *fakeExecutor) LastInsertID(ctx context.Context) (int64, error) { return 42, nil }

func (f *fakeExecutor) TableInfo(ctx context.Context, name string) (types.TableSchema, error) {
	return types.TableSchema{Name: name}, nil
}

func (f *fakeExecutor) SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error) {
	return types.SyncResult{ChangesApplied: []string{"create table " + def.Tables[0].Name}, ToVersion: def.Version}, nil
}

func startServer(t *testing.T, exec Executor) (*Client, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "worker.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := NewServer(exec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, listener)
	}()

	return NewClient(socketPath), func() {
		cancel()
		<-done
	}
}

func waitTerminal(t *testing.T, c *Client, jobID string) types.Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := c.Status(context.Background(), jobID)
		require.NoError(t, err)
		require.True(t, resp.Success)
		switch resp.Status {
		case types.JobCompleted, types.JobFailed, types.JobCancelled:
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return types.Response{}
}

func TestServerExecuteJob(t *testing.T) {
	exec := &fakeExecutor{}
	client, stop := startServer(t, exec)
	defer stop()

	ctx := context.Background()
	jobID, err := client.Submit(ctx, types.OpExecute, "INSERT INTO notes (title) VALUES (?)", []interface{}{"x"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	resp := waitTerminal(t, client, jobID)
	assert.Equal(t, types.JobCompleted, resp.Status)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Len(t, exec.executed, 1)
	assert.Equal(t, "INSERT INTO notes (title) VALUES (?)", exec.executed[0])
}

func TestServerFetchAllResult(t *testing.T) {
	client, stop := startServer(t, &fakeExecutor{})
	defer stop()

	jobID, err := client.Submit(context.Background(), types.OpFetchAll, "SELECT id FROM notes", nil)
	require.NoError(t, err)
	resp := waitTerminal(t, client, jobID)
	require.Equal(t, types.JobCompleted, resp.Status)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &rows))
	require.Len(t, rows, 2)
}

func TestServerJobsRunInSubmitOrder(t *testing.T) {
	exec := &fakeExecutor{}
	client, stop := startServer(t, exec)
	defer stop()

	ctx := context.Background()
	var ids []string
	for _, stmt := range []string{"one", "two", "three"} {
		id, err := client.Submit(ctx, types.OpExecute, stmt, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		resp := waitTerminal(t, client, id)
		assert.Equal(t, types.JobCompleted, resp.Status)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, exec.executed)
}

func TestServerCancelPendingJob(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExecutor{blockOn: gate}
	client, stop := startServer(t, exec)
	defer stop()

	ctx := context.Background()
	// First job occupies the runner, second stays pending.
	first, err := client.Submit(ctx, types.OpExecute, "busy", nil)
	require.NoError(t, err)
	second, err := client.Submit(ctx, types.OpExecute, "victim", nil)
	require.NoError(t, err)

	require.NoError(t, client.Cancel(ctx, second))

	close(gate)
	resp := waitTerminal(t, client, first)
	assert.Equal(t, types.JobCompleted, resp.Status)

	resp, err = client.Status(ctx, second)
	if err == nil && resp.Success {
		assert.Equal(t, types.JobCancelled, resp.Status)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.NotContains(t, exec.executed, "victim")
}

func TestServerCancelDropsJobEntry(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExecutor{blockOn: gate}
	socketPath := filepath.Join(t.TempDir(), "worker.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := NewServer(exec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, listener)
	}()
	defer func() {
		close(gate)
		cancel()
		<-done
	}()

	client := NewClient(socketPath)
	// First job occupies the runner, second stays pending.
	first, err := client.Submit(context.Background(), types.OpExecute, "busy", nil)
	require.NoError(t, err)
	second, err := client.Submit(context.Background(), types.OpExecute, "victim", nil)
	require.NoError(t, err)

	// A cancelled job is abandoned; its entry must not outlive the call.
	require.NoError(t, client.Cancel(context.Background(), second))
	srv.mu.Lock()
	_, tracked := srv.jobs[second]
	srv.mu.Unlock()
	assert.False(t, tracked, "cancelled pending job must leave the job table")

	resp, err := client.Status(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, resp.Success)

	// Same for a job cancelled while running.
	require.NoError(t, client.Cancel(context.Background(), first))
	srv.mu.Lock()
	_, tracked = srv.jobs[first]
	srv.mu.Unlock()
	assert.False(t, tracked, "cancelled running job must leave the job table")
}

func TestServerStatusOfUnknownJob(t *testing.T) {
	client, stop := startServer(t, &fakeExecutor{})
	defer stop()

	resp, err := client.Status(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestServerErrorKindPropagates(t *testing.T) {
	exec := &fakeExecutor{failWith: &schema.ValidationError{Table: "notes", Column: "score", Reason: "conflict"}}
	client, stop := startServer(t, exec)
	defer stop()

	jobID, err := client.Submit(context.Background(), types.OpExecute, "x", nil)
	require.NoError(t, err)
	resp := waitTerminal(t, client, jobID)
	assert.Equal(t, types.JobFailed, resp.Status)
	assert.Equal(t, types.ErrKindValidation, resp.ErrorKind)
	assert.Contains(t, resp.Error, "conflict")
}

func TestServerSyncSchemaCommand(t *testing.T) {
	client, stop := startServer(t, &fakeExecutor{})
	defer stop()

	def := &schema.Definition{
		Version: "1.0.0",
		Tables:  []schema.TableDef{{Name: "notes", Columns: []schema.ColumnDef{{Name: "id", Type: "INTEGER"}}}},
	}
	payload, err := json.Marshal(def)
	require.NoError(t, err)

	jobID, err := client.SubmitSyncSchema(context.Background(), payload, t.TempDir())
	require.NoError(t, err)
	resp := waitTerminal(t, client, jobID)
	require.Equal(t, types.JobCompleted, resp.Status)

	var res types.SyncResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, []string{"create table notes"}, res.ChangesApplied)
}

func TestClientDialFailureIsTyped(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDial)
}

func TestServerPingAndShutdown(t *testing.T) {
	exec := &fakeExecutor{}
	socketPath := filepath.Join(t.TempDir(), "worker.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := NewServer(exec, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(context.Background(), listener)
	}()

	client := NewClient(socketPath)
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Shutdown(context.Background()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not drain after shutdown")
	}
}
