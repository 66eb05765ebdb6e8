package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiquemiranda/backend-base/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "backend.db", cfg.DataFile)
		assert.Equal(t, "sync", cfg.Persistence)
	})
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
host: 0.0.0.0
port: 9000
static_dir: ./public
data_file: /var/lib/backend/data.db
cors_origin: https://app.example.com
debug: true
persistence: async
flush_interval: 2s
read_timeout: 5s
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "./public", cfg.StaticDir)
	assert.Equal(t, "/var/lib/backend/data.db", cfg.DataFile)
	assert.Equal(t, "https://app.example.com", cfg.CORSOrigin)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "async", cfg.Persistence)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "port: 3000\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "backend.db", cfg.DataFile)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a number\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tt := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(cfg *config.Config) {}},
		{name: "port out of range", mutate: func(cfg *config.Config) { cfg.Port = 70000 }, wantErr: true},
		{name: "negative port", mutate: func(cfg *config.Config) { cfg.Port = -1 }, wantErr: true},
		{name: "unknown persistence", mutate: func(cfg *config.Config) { cfg.Persistence = "eventually" }, wantErr: true},
		{name: "empty data file", mutate: func(cfg *config.Config) { cfg.DataFile = "" }, wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, config.ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
