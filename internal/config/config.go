package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/embedder"
	"github.com/codescope/codescope/internal/watcher"
)

// Environment variable overrides. Each wins over the file value.
const (
	EnvDBPath       = "CODESCOPE_DB_PATH"
	EnvDriver       = "CODESCOPE_DRIVER"
	EnvLogLevel     = "CODESCOPE_LOG_LEVEL"
	EnvEmbeddingURL = "CODESCOPE_EMBEDDING_URL"
	EnvWorkerBinary = "CODESCOPE_WORKER_BINARY"
)

// DatabaseConfig configures the database layer.
type DatabaseConfig struct {
	Path           string   `yaml:"path"`
	Driver         string   `yaml:"driver"` // "proxy" or "direct"
	CommandTimeout Duration `yaml:"command_timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
	StartTimeout   Duration `yaml:"start_timeout"`
	BackupDir      string   `yaml:"backup_dir"`
	WorkerBinary   string   `yaml:"worker_binary"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BaseURL   string   `yaml:"base_url"`
	Model     string   `yaml:"model"`
	Dimension int      `yaml:"dimension"`
	Timeout   Duration `yaml:"timeout"`
	CacheSize int      `yaml:"cache_size"`
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Debounce Duration `yaml:"debounce"`
}

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	LogLevel  string          `yaml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           defaultDBPath(),
			Driver:         string(database.KindProxy),
			CommandTimeout: Duration(database.DefaultCommandTimeout),
			PollInterval:   Duration(database.DefaultPollInterval),
		},
		Embedding: EmbeddingConfig{
			BaseURL: embedder.DefaultOllamaURL,
			Model:   embedder.DefaultOllamaModel,
			Timeout: Duration(30 * time.Second),
		},
		Watcher: WatcherConfig{
			Debounce: Duration(watcher.DefaultDebounce),
		},
		LogLevel: "info",
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "codescope.db"
	}
	return filepath.Join(home, ".codescope", "codescope.db")
}

// Load reads the YAML file at path, layers environment overrides on top,
// and validates the result. A missing file is not an error; defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvEmbeddingURL); v != "" {
		c.Embedding.BaseURL = v
		c.Embedding.Enabled = true
	}
	if v := os.Getenv(EnvWorkerBinary); v != "" {
		c.Database.WorkerBinary = v
	}
}

// Validate checks the fields a typo would most likely break.
func (c *Config) Validate() error {
	switch database.Kind(c.Database.Driver) {
	case database.KindDirect, database.KindProxy:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		if _, err := strconv.Atoi(c.LogLevel); err != nil {
			return fmt.Errorf("unknown log level %q", c.LogLevel)
		}
	}
	return nil
}

// DriverConfig maps the database section onto the driver layer's config.
func (c *Config) DriverConfig() database.DriverConfig {
	return database.DriverConfig{
		Kind: database.Kind(c.Database.Driver),
		Path: c.Database.Path,
		Worker: database.WorkerConfig{
			CommandTimeout: c.Database.CommandTimeout.Std(),
			PollInterval:   c.Database.PollInterval.Std(),
			StartTimeout:   c.Database.StartTimeout.Std(),
			BackupDir:      c.Database.BackupDir,
			Executable:     c.Database.WorkerBinary,
		},
	}
}

// Embedder builds the configured embedding provider. Disabled embedding
// falls back to the deterministic local provider.
func (c *Config) Embedder() embedder.Embedder {
	cache := embedder.NewCache(c.Embedding.CacheSize)
	if !c.Embedding.Enabled {
		return embedder.NewLocalProvider(cache)
	}
	return embedder.NewOllamaProvider(embedder.OllamaConfig{
		BaseURL:   c.Embedding.BaseURL,
		Model:     c.Embedding.Model,
		Dimension: c.Embedding.Dimension,
		Timeout:   c.Embedding.Timeout.Std(),
	}, cache)
}
