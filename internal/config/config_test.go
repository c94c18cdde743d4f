package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
default_connection: "Server=sql01;Database=warehouse;"
root_folder: "/data/incoming"

control_db:
  connection_string: "postgres://localhost/control"

queue:
  workers: 8
  redis_addr: "localhost:6379"

schema:
  connect_timeout_seconds: 10

loader:
  batch_size: 2000
  timeout_seconds: 120
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "Server=sql01;Database=warehouse;", cfg.DefaultConnection)
	assert.Equal(t, "/data/incoming", cfg.RootFolder)
	assert.Equal(t, "postgres://localhost/control", cfg.ControlDB.ConnectionString)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, "localhost:6379", cfg.Queue.RedisAddr)
	assert.Equal(t, 10, cfg.Schema.ConnectTimeoutSeconds)
	assert.Equal(t, 2000, cfg.Loader.BatchSize)
	assert.Equal(t, 120, cfg.Loader.TimeoutSeconds)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte(`default_connection: "x"`), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 5, cfg.Schema.ConnectTimeoutSeconds)
	assert.Equal(t, 1000, cfg.Loader.BatchSize)
	assert.Equal(t, 300, cfg.Loader.TimeoutSeconds)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte(`default_connection: "file-conn"`), 0644))

	os.Setenv("DEFAULT_CONNECTION", "env-conn")
	os.Setenv("ROOT_FOLDER", "/env/folder")
	defer func() {
		os.Unsetenv("DEFAULT_CONNECTION")
		os.Unsetenv("ROOT_FOLDER")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-conn", cfg.DefaultConnection)
	assert.Equal(t, "/env/folder", cfg.RootFolder)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSchemaConnectTimeout(t *testing.T) {
	cfg := SchemaConfig{ConnectTimeoutSeconds: 5}
	assert.Equal(t, 5*1000000000, int(cfg.ConnectTimeout().Nanoseconds()))
}

func TestLoaderTimeout(t *testing.T) {
	cfg := LoaderConfig{TimeoutSeconds: 300}
	assert.Equal(t, 300*1000000000, int(cfg.Timeout().Nanoseconds()))
}
