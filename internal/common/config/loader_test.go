package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	path := writeConfig(t, `
mapfile:
  basedir: /opt/geomet
  config: /opt/geomet/geomet-weather.yml
database:
  redis:
    address: localhost:6379
workers:
  refresh-mapfile:
    enabled: true
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, StorageFile, cfg.Mapfile.Storage)
	assert.Equal(t, DefaultNamespace, cfg.Mapfile.Namespace)
	assert.Equal(t, DefaultFactsNamespace, cfg.Mapfile.FactsNamespace)
	assert.Equal(t, "/opt/geomet/resources", cfg.Mapfile.ResourcesDir)
	assert.Equal(t, "/opt/geomet/resources/mapfile-base.json", cfg.Mapfile.BaseTemplate)
	assert.Equal(t, "/opt/geomet/resources/mapserv/symbols.json", cfg.Mapfile.Symbols)
	assert.Equal(t, "/opt/geomet/mapfile", cfg.Mapfile.OutputDir())
	assert.Equal(t, 1, cfg.Mapfile.Concurrency)
	assert.Equal(t, ModeInclude, cfg.Mapfile.Mode)
	assert.Equal(t, "OGR", cfg.Mapfile.TileIndex.Type)
	assert.Equal(t, 5, cfg.Workers["refresh-mapfile"].MaxJobsActive)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Mapfile.UsesStore())
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mapfile:
  basedir: /opt/geomet
  config: /opt/geomet/geomet-weather.yml
database:
  redis:
    address: localhost:6379
`)
	t.Setenv("GEOMET_MAPFILE_STORAGE", "store")
	t.Setenv("GEOMET_MAPFILE_STORE_URL", "redis://cache:6379/")
	t.Setenv("GEOMET_MAPFILE_STRICT", "yes")
	t.Setenv("GEOMET_MAPFILE_CONCURRENCY", "4")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.True(t, cfg.Mapfile.UsesStore())
	assert.Equal(t, "cache:6379", cfg.Database.Redis.Address)
	assert.True(t, cfg.Mapfile.Strict)
	assert.Equal(t, 4, cfg.Mapfile.Concurrency)
}

func TestLoadFrom_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing basedir",
			body:    "mapfile:\n  config: a.yml\ndatabase:\n  redis:\n    address: x:1\n",
			wantErr: "mapfile.basedir is required",
		},
		{
			name:    "bad storage",
			body:    "mapfile:\n  basedir: /b\n  config: a.yml\n  storage: s3\ndatabase:\n  redis:\n    address: x:1\n",
			wantErr: "mapfile.storage must be",
		},
		{
			name:    "bad mode",
			body:    "mapfile:\n  basedir: /b\n  config: a.yml\n  mode: tiled\ndatabase:\n  redis:\n    address: x:1\n",
			wantErr: "mapfile.mode must be",
		},
		{
			name:    "sns without topic",
			body:    "mapfile:\n  basedir: /b\n  config: a.yml\ndatabase:\n  redis:\n    address: x:1\nnotifications:\n  sns:\n    enabled: true\n",
			wantErr: "topic_arn is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "update-mapfile")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 3, wc.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "update-mapfile"))
}
