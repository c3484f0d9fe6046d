package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/embedder"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, string(database.KindProxy), cfg.Database.Driver)
	assert.Equal(t, database.DefaultCommandTimeout, cfg.Database.CommandTimeout.Std())
	assert.Equal(t, database.DefaultPollInterval, cfg.Database.PollInterval.Std())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.Database.Path)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/test.db
  driver: direct
  command_timeout: 5s
  poll_interval: 50ms
embedding:
  enabled: true
  base_url: http://localhost:9999
  model: custom-model
watcher:
  enabled: true
  debounce: 250ms
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "direct", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.CommandTimeout.Std())
	assert.Equal(t, 50*time.Millisecond, cfg.Database.PollInterval.Std())
	assert.True(t, cfg.Embedding.Enabled)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.Debounce.Std())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, string(database.KindProxy), cfg.Database.Driver)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/env/db.sqlite")
	t.Setenv(EnvDriver, "direct")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvEmbeddingURL, "http://remote:1234")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/env/db.sqlite", cfg.Database.Path)
	assert.Equal(t, "direct", cfg.Database.Driver)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "http://remote:1234", cfg.Embedding.BaseURL)
	assert.True(t, cfg.Embedding.Enabled, "setting the URL enables embedding")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestDriverConfigMapping(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/tmp/x.db"
	cfg.Database.Driver = "proxy"
	cfg.Database.CommandTimeout = Duration(7 * time.Second)
	cfg.Database.WorkerBinary = "/usr/local/bin/worker"

	dc := cfg.DriverConfig()
	assert.Equal(t, database.KindProxy, dc.Kind)
	assert.Equal(t, "/tmp/x.db", dc.Path)
	assert.Equal(t, 7*time.Second, dc.Worker.CommandTimeout)
	assert.Equal(t, "/usr/local/bin/worker", dc.Worker.Executable)
	require.NoError(t, dc.Validate())
}

func TestEmbedderSelection(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Enabled = false
	_, ok := cfg.Embedder().(*embedder.LocalProvider)
	assert.True(t, ok)

	cfg.Embedding.Enabled = true
	_, ok = cfg.Embedder().(*embedder.OllamaProvider)
	assert.True(t, ok)
}
