package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/pkg/types"
)

// Executor runs database jobs. Satisfied by the direct driver.
type Executor interface {
	Execute(ctx context.Context, sqlText string, params ...interface{}) error
	FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error)
	FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error)
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	LastInsertID(ctx context.Context) (int64, error)
	TableInfo(ctx context.Context, name string) (types.TableSchema, error)
	SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error)
}

// Server accepts one request per connection on a local socket and runs the
// carried jobs against a single Executor. Jobs are executed strictly in
// accept order by one runner goroutine, so no two operations ever race on
// the native connection.
type Server struct {
	exec Executor
	log  zerolog.Logger

	mu     sync.Mutex
	jobs   map[string]*types.Job
	cancel map[string]context.CancelFunc // in-flight job contexts

	queue    chan string
	done     chan struct{}
	shutdown chan struct{}
	once     sync.Once
}

// NewServer creates a server executing jobs against exec.
func NewServer(exec Executor, log zerolog.Logger) *Server {
	return &Server{
		exec:     exec,
		log:      log,
		jobs:     make(map[string]*types.Job),
		cancel:   make(map[string]context.CancelFunc),
		queue:    make(chan string, 128),
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Serve accepts connections on l until ctx is cancelled or a shutdown
// request arrives. It returns after the in-flight job has finished.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	runCtx, stopRunner := context.WithCancel(context.Background())
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		s.runJobs(runCtx)
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		}
		_ = l.Close()
	}()

	var wg sync.WaitGroup
	var acceptErr error
	for {
		conn, err := l.Accept()
		if err != nil {
			if !isClosed(err) {
				acceptErr = err
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(conn)
		}()
	}

	// Drain: let queued work and the in-flight job finish, then stop.
	wg.Wait()
	close(s.queue)
	<-runnerDone
	stopRunner()
	close(s.done)
	return acceptErr
}

// Stop requests a graceful shutdown. Safe to call more than once.
func (s *Server) Stop() {
	s.once.Do(func() { close(s.shutdown) })
}

// Done is closed once Serve has fully drained and returned.
func (s *Server) Done() <-chan struct{} { return s.done }

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// handleConn reads exactly one request and writes exactly one response.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var req types.Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Warn().Err(err).Msg("malformed rpc request")
		s.respond(conn, types.Response{Success: false, Error: "malformed request: " + err.Error()})
		return
	}
	s.respond(conn, s.dispatch(req))
}

func (s *Server) respond(conn net.Conn, resp types.Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Warn().Err(err).Msg("failed to write rpc response")
	}
}

func (s *Server) dispatch(req types.Request) types.Response {
	switch req.Command {
	case types.CmdSubmit:
		return s.submit(req)
	case types.CmdSyncSchema:
		// Schema sync travels as a job too, so callers poll it the same
		// way they poll CRUD work.
		req.Operation = types.OpSyncSchema
		return s.submit(req)
	case types.CmdStatus:
		return s.status(req.JobID)
	case types.CmdCancel:
		return s.cancelJob(req.JobID)
	case types.CmdPing:
		return types.Response{Success: true}
	case types.CmdShutdown:
		s.Stop()
		return types.Response{Success: true}
	default:
		return types.Response{Success: false, Error: "unknown command: " + req.Command}
	}
}

func (s *Server) submit(req types.Request) types.Response {
	job := &types.Job{
		ID:        uuid.NewString(),
		Operation: req.Operation,
		SQL:       req.SQL,
		Params:    req.Params,
		Table:     req.Table,
		Schema:    req.Schema,
		BackupDir: req.BackupDir,
		Status:    types.JobPending,
	}
	if job.Operation == "" {
		return types.Response{Success: false, Error: "job operation is required"}
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.ID:
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return types.Response{Success: false, Error: "job queue is full"}
	}
	return types.Response{Success: true, JobID: job.ID, Status: types.JobPending}
}

func (s *Server) status(jobID string) types.Response {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return types.Response{Success: false, Error: "unknown job: " + jobID}
	}
	resp := types.Response{
		Success:   true,
		JobID:     job.ID,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
	// Terminal jobs are dropped once their status has been observed.
	if job.Status == types.JobCompleted || job.Status == types.JobFailed || job.Status == types.JobCancelled {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()
	return resp
}

func (s *Server) cancelJob(jobID string) types.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return types.Response{Success: false, Error: "unknown job: " + jobID}
	}
	switch job.Status {
	case types.JobPending:
		job.Status = types.JobCancelled
	case types.JobRunning:
		// Best effort: interrupt the native call if the driver honors
		// context cancellation, otherwise the result is discarded.
		if cancel, ok := s.cancel[jobID]; ok {
			cancel()
		}
		job.Status = types.JobCancelled
	}
	// A cancelled job is abandoned and never polled again; drop it now so
	// timed-out callers do not accumulate entries for the worker's
	// lifetime. The runner still holds its own pointer for the race check.
	delete(s.jobs, jobID)
	return types.Response{Success: true, JobID: jobID, Status: job.Status}
}

// runJobs is the single runner goroutine. FIFO per worker.
func (s *Server) runJobs(ctx context.Context) {
	for jobID := range s.queue {
		s.mu.Lock()
		job, ok := s.jobs[jobID]
		if !ok || job.Status == types.JobCancelled {
			s.mu.Unlock()
			continue
		}
		job.Status = types.JobRunning
		jobCtx, cancel := context.WithCancel(ctx)
		s.cancel[jobID] = cancel
		s.mu.Unlock()

		result, err := s.runJob(jobCtx, job)
		cancel()

		s.mu.Lock()
		delete(s.cancel, jobID)
		if job.Status == types.JobCancelled {
			// A cancel raced the execution; the caller abandoned the job,
			// discard whatever happened.
			s.mu.Unlock()
			continue
		}
		if err != nil {
			job.Status = types.JobFailed
			job.Error = err.Error()
			job.ErrorKind = errorKind(err)
			s.log.Debug().Str("job", job.ID).Str("op", string(job.Operation)).Err(err).Msg("job failed")
		} else {
			job.Status = types.JobCompleted
			job.Result = result
		}
		s.mu.Unlock()
	}
}

func (s *Server) runJob(ctx context.Context, job *types.Job) (json.RawMessage, error) {
	switch job.Operation {
	case types.OpExecute:
		return nil, s.exec.Execute(ctx, job.SQL, job.Params...)
	case types.OpFetchOne:
		row, err := s.exec.FetchOne(ctx, job.SQL, job.Params...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(row)
	case types.OpFetchAll:
		rows, err := s.exec.FetchAll(ctx, job.SQL, job.Params...)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)
	case types.OpBegin:
		return nil, s.exec.Begin(ctx)
	case types.OpCommit:
		return nil, s.exec.Commit(ctx)
	case types.OpRollback:
		return nil, s.exec.Rollback(ctx)
	case types.OpLastInsertID:
		id, err := s.exec.LastInsertID(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int64{"last_insert_id": id})
	case types.OpTableInfo:
		ts, err := s.exec.TableInfo(ctx, job.Table)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ts)
	case types.OpSyncSchema:
		var def schema.Definition
		if err := json.Unmarshal(job.Schema, &def); err != nil {
			return nil, errors.New("malformed schema definition: " + err.Error())
		}
		res, err := s.exec.SyncSchema(ctx, &def, job.BackupDir)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	return nil, errors.New("unknown operation: " + string(job.Operation))
}

// errorKind maps typed errors onto wire kinds so the proxy can surface
// typed errors to its caller.
func errorKind(err error) string {
	var ve *schema.ValidationError
	var me *schema.MigrationError
	var be *schema.BackupError
	switch {
	case errors.As(err, &ve):
		return types.ErrKindValidation
	case errors.As(err, &me):
		return types.ErrKindMigration
	case errors.As(err, &be):
		return types.ErrKindBackup
	default:
		return types.ErrKindOperation
	}
}
