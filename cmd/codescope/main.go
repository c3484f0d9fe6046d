// codescope serves a code-analysis MCP server backed by a single-writer
// SQLite worker process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/embedder"
	"github.com/codescope/codescope/internal/indexer"
	"github.com/codescope/codescope/internal/logging"
	"github.com/codescope/codescope/internal/mcp"
	"github.com/codescope/codescope/internal/watcher"
	"github.com/codescope/codescope/internal/worker"
	"github.com/codescope/codescope/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	dbOverride string
	logLevel   string
	plainLogs  bool
)

var rootCmd = &cobra.Command{
	Use:          "codescope",
	Short:        "Go code indexing and search over MCP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP server on stdio (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a Go project and embed its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return indexOnce(cmd.Context(), args[0], force)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Watch a project and re-index on changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd.Context(), args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codescope %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", database.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", database.DriverName)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "database file path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&plainLogs, "plain-logs", false, "JSON logs instead of console format")
	indexCmd.Flags().Bool("force", false, "re-index files with unchanged hashes")

	rootCmd.AddCommand(serveCmd, indexCmd, watchCmd, versionCmd)
}

// setup loads configuration and opens the database facade. Shutdown of
// spawned workers is the returned closer's job.
func setup(ctx context.Context) (*config.Config, *database.DB, zerolog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Nop(), nil, err
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logging.New(cfg.LogLevel, plainLogs)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, nil, log, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := database.Open(ctx, cfg.DriverConfig(), logging.NewComponent(log, "database"))
	if err != nil {
		return nil, nil, log, nil, fmt.Errorf("open database: %w", err)
	}

	closer := func() {
		reg := db.Workers()
		_ = db.Close()
		if reg != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := reg.Shutdown(stopCtx); err != nil {
				log.Warn().Err(err).Msg("worker shutdown incomplete")
			}
		}
	}
	return cfg, db, log, closer, nil
}

func serve(ctx context.Context) error {
	cfg, db, log, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	server := mcp.NewServer(db, cfg.Embedder(), logging.NewComponent(log, "mcp"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("version", version).Msg("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case err := <-errChan:
		return err
	}
}

func indexOnce(ctx context.Context, path string, force bool) error {
	cfg, db, log, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	idx := indexer.New(db, logging.NewComponent(log, "indexer"))
	stats, err := idx.IndexProject(ctx, path, &indexer.Config{Force: force, IncludeTests: true})
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d files (%d skipped, %d failed), %d symbols, %d chunks in %v\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed,
		stats.SymbolsExtracted, stats.ChunksCreated, stats.Duration.Round(time.Millisecond))

	pipeline := embedder.NewPipeline(db, cfg.Embedder(), logging.NewComponent(log, "embedder"))
	pstats, err := pipeline.Run(ctx, 0)
	if err != nil {
		return err
	}
	fmt.Printf("Embedded %d chunks in %v\n", pstats.ChunksEmbedded, pstats.Duration.Round(time.Millisecond))
	return nil
}

func watch(ctx context.Context, path string) error {
	cfg, db, log, closer, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closer()

	idx := indexer.New(db, logging.NewComponent(log, "indexer"))
	pipeline := embedder.NewPipeline(db, cfg.Embedder(), logging.NewComponent(log, "embedder"))

	// Full pass first so the watcher only has deltas to chase.
	if _, err := idx.IndexProject(ctx, path, nil); err != nil {
		return err
	}
	if _, err := pipeline.Run(ctx, 0); err != nil {
		return err
	}

	reindex := func(ctx context.Context, root string, relPaths []string) {
		for _, rel := range relPaths {
			if err := idx.MarkFileDirty(ctx, root, rel); err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("mark dirty failed")
			}
		}
		if _, err := idx.IndexProject(ctx, root, nil); err != nil {
			log.Error().Err(err).Msg("re-index failed")
			return
		}
		if _, err := pipeline.Run(ctx, 0); err != nil {
			log.Error().Err(err).Msg("embedding failed")
		}
	}

	w, err := watcher.New(path, cfg.Watcher.Debounce.Std(), reindex, logging.NewComponent(log, "watcher"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bg := worker.NewBackground(logging.NewComponent(log, "background"))
	bg.Init(ctx)
	if err := bg.Go("watcher", w.Run); err != nil {
		return err
	}
	// Retries chunks whose embedding failed transiently during a reindex.
	if err := bg.Go("embed-drain", func(ctx context.Context) error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := pipeline.Run(ctx, 0); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("embedding drain failed")
				}
			}
		}
	}); err != nil {
		return err
	}

	log.Info().Str("root", w.Root()).Msg("watching for changes")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return bg.Shutdown(shutdownCtx)
}

// workerMode handles re-invocation by the worker manager: when no
// dedicated worker binary is configured, the manager spawns this binary
// again with the worker marker set and --db/--socket arguments.
func workerMode() bool {
	if os.Getenv(types.WorkerEnvMarker) != "1" || len(os.Args) < 3 || os.Args[1] != "--db" {
		return false
	}
	dbPath := os.Args[2]
	socketPath := ""
	if len(os.Args) >= 5 && os.Args[3] == "--socket" {
		socketPath = os.Args[4]
	}

	log := logging.NewComponent(logging.New("info", true), "dbworker")
	driver := database.NewDirectDriver(dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := driver.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("open database")
		os.Exit(1)
	}
	defer func() {
		_ = driver.Disconnect()
	}()

	err := worker.Run(ctx, worker.RunConfig{DBPath: dbPath, SocketPath: socketPath}, driver, log)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
	return true
}

func main() {
	if workerMode() {
		return
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
