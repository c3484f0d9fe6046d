package worker

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/rpc"
	"github.com/codescope/codescope/pkg/types"
)

// RunConfig configures one worker process run.
type RunConfig struct {
	DBPath     string
	SocketPath string // derived from DBPath when empty
	PIDPath    string // derived from DBPath when empty
}

// Run is the worker process main loop: create the database file if absent,
// open the socket, write the PID file, then serve jobs until ctx is
// cancelled or a shutdown request arrives. On the way out it removes the
// PID file only if it still holds this process's PID.
func Run(ctx context.Context, cfg RunConfig, exec rpc.Executor, log zerolog.Logger) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = types.SocketPath(cfg.DBPath)
	}
	if cfg.PIDPath == "" {
		cfg.PIDPath = types.PIDPath(cfg.DBPath)
	}

	// An empty file, no schema. Schema arrives via sync_schema jobs.
	if err := touchFile(cfg.DBPath); err != nil {
		return fmt.Errorf("create database file: %w", err)
	}

	if pid, err := ReadPIDFile(cfg.PIDPath); err == nil && Alive(pid) && pid != os.Getpid() {
		return fmt.Errorf("another worker (pid %d) already owns %s", pid, cfg.DBPath)
	}
	// A previous crash leaves the socket file behind; the stale PID check
	// above already proved nobody is listening.
	_ = os.Remove(cfg.SocketPath)

	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}

	pid := os.Getpid()
	if err := WritePIDFile(cfg.PIDPath, pid); err != nil {
		_ = listener.Close()
		_ = os.Remove(cfg.SocketPath)
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() {
		RemovePIDFileIfOwn(cfg.PIDPath, pid)
		_ = os.Remove(cfg.SocketPath)
	}()

	log.Info().Int("pid", pid).Str("db", cfg.DBPath).Str("socket", cfg.SocketPath).Msg("worker listening")

	srv := rpc.NewServer(exec, log)
	err = srv.Serve(ctx, listener)
	log.Info().Int("pid", pid).Str("db", cfg.DBPath).Msg("worker stopped")
	return err
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
