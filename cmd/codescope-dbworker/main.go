// codescope-dbworker is the database worker process. Exactly one worker
// owns a database file at a time; all other processes reach it through
// the proxy driver over the worker's Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/logging"
	"github.com/codescope/codescope/internal/worker"
	"github.com/codescope/codescope/pkg/types"
)

var version = "dev"

var (
	dbPath     string
	socketPath string
	pidPath    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "codescope-dbworker",
	Short: "Single-writer database worker process",
	Long: `codescope-dbworker owns one SQLite database file and serves jobs
submitted over its Unix socket. It is normally spawned by the proxy
driver, not run by hand.`,
	RunE: run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", "", "database file path (required)")
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path (default: <db>.worker.sock)")
	rootCmd.Flags().StringVar(&pidPath, "pid-file", "", "pid file path (default: <db>.worker.pid)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	_ = rootCmd.MarkFlagRequired("db")
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.NewComponent(logging.New(logLevel, true), "dbworker")

	// This process is the writer; mark it so the direct driver connects.
	if err := os.Setenv(types.WorkerEnvMarker, "1"); err != nil {
		return err
	}

	driver := database.NewDirectDriver(dbPath)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := driver.Connect(ctx); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		_ = driver.Disconnect()
	}()

	log.Info().
		Str("db", dbPath).
		Str("driver", database.DriverName).
		Str("build", database.BuildMode).
		Str("version", version).
		Msg("worker starting")

	err := worker.Run(ctx, worker.RunConfig{
		DBPath:     dbPath,
		SocketPath: socketPath,
		PIDPath:    pidPath,
	}, driver, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("worker stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
