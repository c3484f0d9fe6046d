package types

import "encoding/json"

// JobStatus tracks a database job through its lifecycle on the worker.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Operation names one database operation a job carries.
type Operation string

const (
	OpExecute      Operation = "execute"
	OpFetchOne     Operation = "fetch_one"
	OpFetchAll     Operation = "fetch_all"
	OpBegin        Operation = "begin"
	OpCommit       Operation = "commit"
	OpRollback     Operation = "rollback"
	OpLastInsertID Operation = "last_insert_id"
	OpTableInfo    Operation = "table_info"
	OpSyncSchema   Operation = "sync_schema"
)

// Job is one unit of database work submitted to the worker process.
// A job is immutable once submitted; only the worker mutates Status,
// Result and Error.
type Job struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	SQL       string          `json:"sql,omitempty"`
	Params    []interface{}   `json:"params,omitempty"`
	Table     string          `json:"table,omitempty"`
	Schema    json.RawMessage `json:"schema,omitempty"`
	BackupDir string          `json:"backup_dir,omitempty"`

	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// Error kinds carried across the wire so callers get typed errors back
// from the worker instead of flattened strings.
const (
	ErrKindOperation  = "operation"
	ErrKindValidation = "validation"
	ErrKindMigration  = "migration"
	ErrKindBackup     = "backup"
)

// Wire commands accepted by the worker socket. Each accepted connection
// carries exactly one request and one response.
const (
	CmdSubmit     = "submit"
	CmdStatus     = "status"
	CmdCancel     = "cancel"
	CmdSyncSchema = "sync_schema"
	CmdPing       = "ping"
	CmdShutdown   = "shutdown"
)

// Request is the RPC request envelope sent over the worker socket.
type Request struct {
	Command   string          `json:"command"`
	JobID     string          `json:"job_id,omitempty"`
	Operation Operation       `json:"operation,omitempty"`
	SQL       string          `json:"sql,omitempty"`
	Params    []interface{}   `json:"params,omitempty"`
	Table     string          `json:"table,omitempty"`
	Schema    json.RawMessage `json:"schema,omitempty"`
	BackupDir string          `json:"backup_dir,omitempty"`
}

// Response is the RPC response envelope.
type Response struct {
	Success   bool            `json:"success"`
	JobID     string          `json:"job_id,omitempty"`
	Status    JobStatus       `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}
