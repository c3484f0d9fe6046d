package database

import (
	"fmt"
	"time"
)

// ConnectionError means the driver could not reach the database or could
// not reach or start the worker process that owns it.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection failed for %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// OperationError means a single database job failed. It carries the failing
// statement for diagnostics.
type OperationError struct {
	Operation string
	SQL       string
	Err       error
}

func (e *OperationError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("%s failed: %v (sql: %s)", e.Operation, e.Err, e.SQL)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// TimeoutError means a proxied job exceeded its deadline. The proxy sends a
// cancel request for the job before raising this.
type TimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobID, e.Timeout)
}
