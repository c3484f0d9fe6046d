package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/schema"
	"github.com/codescope/codescope/pkg/types"
)

// Kind selects a driver implementation.
type Kind string

const (
	// KindDirect opens the database file natively. Only the worker process
	// may use it.
	KindDirect Kind = "direct"
	// KindProxy forwards every operation to the worker process over its
	// local socket.
	KindProxy Kind = "proxy"
)

// Default worker timings.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
)

// WorkerConfig tunes how a proxy driver talks to its worker process.
type WorkerConfig struct {
	// CommandTimeout bounds a single job from submit to completion.
	CommandTimeout time.Duration
	// PollInterval is the sleep between job status checks. Must be > 0.
	PollInterval time.Duration
	// BackupDir receives pre-migration database backups.
	BackupDir string
	// Executable is the worker binary to spawn. Defaults to the current
	// executable re-invoked in worker mode.
	Executable string
	// StartTimeout bounds how long to wait for a spawned worker to write
	// its PID file and open its socket.
	StartTimeout time.Duration
}

// DriverConfig selects and configures a driver. Created once per facade
// instance.
type DriverConfig struct {
	Kind   Kind
	Path   string
	Worker WorkerConfig
}

// Validate checks the config and fills in defaults.
func (c *DriverConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Kind {
	case KindDirect, KindProxy:
	case "":
		c.Kind = KindProxy
	default:
		return fmt.Errorf("unknown driver kind %q", c.Kind)
	}
	if c.Worker.PollInterval < 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = DefaultPollInterval
	}
	if c.Worker.CommandTimeout <= 0 {
		c.Worker.CommandTimeout = DefaultCommandTimeout
	}
	if c.Worker.StartTimeout <= 0 {
		c.Worker.StartTimeout = 10 * time.Second
	}
	return nil
}

// Driver is the contract every database engine implementation satisfies.
// Higher-level code depends only on this interface, never on a concrete
// driver type, so a future non-file-based engine can be substituted
// without touching any caller.
type Driver interface {
	Connect(ctx context.Context) error
	Execute(ctx context.Context, sqlText string, params ...interface{}) error
	FetchOne(ctx context.Context, sqlText string, params ...interface{}) (types.Row, error)
	FetchAll(ctx context.Context, sqlText string, params ...interface{}) ([]types.Row, error)
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	LastInsertID(ctx context.Context) (int64, error)
	TableInfo(ctx context.Context, name string) (types.TableSchema, error)
	SyncSchema(ctx context.Context, def *schema.Definition, backupDir string) (types.SyncResult, error)
	Disconnect() error
}

// NewDriver builds the driver selected by cfg. The config is validated and
// defaulted in place.
func NewDriver(cfg *DriverConfig, log zerolog.Logger) (Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindDirect:
		return NewDirectDriver(cfg.Path), nil
	case KindProxy:
		return NewProxyDriver(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown driver kind %q", cfg.Kind)
}
