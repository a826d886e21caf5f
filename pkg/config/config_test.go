package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideyz0r/searchbar/pkg/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.Equal(t, "@app_recent_searches", cfg.Storage.Key)
	assert.Equal(t, 1, cfg.Search.MinQueryLength)
	assert.Equal(t, 300*time.Millisecond, cfg.DebounceDelay())
	assert.Equal(t, 10, cfg.Search.MaxRecentSearches)
	assert.Equal(t, 100*time.Millisecond, cfg.BlurGrace())
	assert.Equal(t, "catalog", cfg.Provider.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Latency())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(*Config) {},
		},
		{
			name:    "empty storage path",
			modify:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage path cannot be empty",
		},
		{
			name: "memory backend needs no path",
			modify: func(c *Config) {
				c.Storage.Backend = "memory"
				c.Storage.Path = ""
			},
		},
		{
			name:   "bolt backend",
			modify: func(c *Config) { c.Storage.Backend = "bolt" },
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: "invalid storage backend: redis",
		},
		{
			name:    "empty key",
			modify:  func(c *Config) { c.Storage.Key = "" },
			wantErr: "storage key cannot be empty",
		},
		{
			name:   "zero min query length",
			modify: func(c *Config) { c.Search.MinQueryLength = 0 },
		},
		{
			name:    "negative min query length",
			modify:  func(c *Config) { c.Search.MinQueryLength = -1 },
			wantErr: "min_query_length cannot be negative",
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Search.DebounceDelayMs = -5 },
			wantErr: "debounce_delay_ms cannot be negative",
		},
		{
			name:    "negative blur grace",
			modify:  func(c *Config) { c.Search.BlurGraceMs = -5 },
			wantErr: "blur_grace_ms cannot be negative",
		},
		{
			name:    "zero max recent searches",
			modify:  func(c *Config) { c.Search.MaxRecentSearches = 0 },
			wantErr: "max_recent_searches must be positive",
		},
		{
			name:   "openai provider",
			modify: func(c *Config) { c.Provider.Name = "openai" },
		},
		{
			name:   "recents provider",
			modify: func(c *Config) { c.Provider.Name = "recents" },
		},
		{
			name:    "unknown provider",
			modify:  func(c *Config) { c.Provider.Name = "gemini" },
			wantErr: "invalid provider: gemini",
		},
		{
			name:    "negative latency",
			modify:  func(c *Config) { c.Provider.LatencyMs = -1 },
			wantErr: "latency_ms cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	ClearCache()
	tmpDir := t.TempDir()

	content := `storage:
  backend: bolt
  path: /tmp/recent.bolt
  key: "@app_recent_searches"
search:
  min_query_length: 2
  debounce_delay_ms: 150
  max_recent_searches: 5
  blur_grace_ms: 100
provider:
  name: catalog
  latency_ms: 0
log:
  level: debug
`
	configPath := testutil.TempFile(t, tmpDir, "config.yaml", content)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/recent.bolt", cfg.Storage.Path)
	assert.Equal(t, 2, cfg.Search.MinQueryLength)
	assert.Equal(t, 150*time.Millisecond, cfg.DebounceDelay())
	assert.Equal(t, 5, cfg.Search.MaxRecentSearches)
	assert.Equal(t, time.Duration(0), cfg.Latency())
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset fields keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)
}

func TestLoad_TOML(t *testing.T) {
	ClearCache()
	tmpDir := t.TempDir()

	content := `[storage]
backend = "memory"

[search]
min_query_length = 3

[provider]
name = "openai"
model = "gpt-4o"
`
	configPath := testutil.TempFile(t, tmpDir, "config.toml", content)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Search.MinQueryLength)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 10, cfg.Search.MaxRecentSearches)
}

func TestLoad_NonExistent(t *testing.T) {
	ClearCache()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
}

func TestLoad_InvalidYAML(t *testing.T) {
	ClearCache()
	configPath := testutil.TempFile(t, t.TempDir(), "config.yaml", "storage: [unclosed")

	_, err := Load(configPath)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_InvalidConfig(t *testing.T) {
	ClearCache()
	configPath := testutil.TempFile(t, t.TempDir(), "config.yaml", "provider:\n  name: gemini\n")

	_, err := Load(configPath)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestLoad_DBPathEnv(t *testing.T) {
	ClearCache()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().Save(configPath))

	t.Setenv(EnvDBPath, "/override/recent.db")
	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/override/recent.db", cfg.Storage.Path)

	// The cached config is not modified by the override.
	t.Setenv(EnvDBPath, "")
	cfg, err = Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, Default().Storage.Path, cfg.Storage.Path)
}

func TestSave(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			ClearCache()
			configPath := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.Search.MinQueryLength = 4
			cfg.Provider.CatalogPath = "/tmp/titles.txt"
			require.NoError(t, cfg.Save(configPath))

			loaded, err := Load(configPath)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestSave_InvalidPath(t *testing.T) {
	err := Default().Save("/invalid/path/that/cannot/be/created/config.yaml")
	assert.Error(t, err)
}

func TestLoadDefault(t *testing.T) {
	ClearCache()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfigPath, "")

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".searchbar", "config.yaml"), DefaultPath())
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".searchbar", "recent.db"), cfg.Storage.Path)
}

func TestDefaultPath_Env(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/searchbar/config.toml")
	assert.Equal(t, "/etc/searchbar/config.toml", DefaultPath())
}

func TestLoad_CacheHit(t *testing.T) {
	ClearCache()
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Storage.Path = "/cache/test.db"
	require.NoError(t, cfg.Save(configPath))

	cfg1, err := Load(configPath)
	require.NoError(t, err)
	cfg2, err := Load(configPath)
	require.NoError(t, err)

	assert.Same(t, cfg1, cfg2)
	assert.Equal(t, "/cache/test.db", cfg2.Storage.Path)
}

func TestClearCache(t *testing.T) {
	ClearCache()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().Save(configPath))

	cfg1, err := Load(configPath)
	require.NoError(t, err)
	ClearCache()
	cfg2, err := Load(configPath)
	require.NoError(t, err)

	assert.NotSame(t, cfg1, cfg2)
	assert.Equal(t, cfg1, cfg2)
}

func TestWatch(t *testing.T) {
	ClearCache()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().Save(configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, configPath, nil, func(cfg *Config) {
		reloaded <- cfg
	}))

	cfg := Default()
	cfg.Search.MinQueryLength = 7
	require.NoError(t, cfg.Save(configPath))

	select {
	case got := <-reloaded:
		assert.Equal(t, 7, got.Search.MinQueryLength)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/does/not/exist/config.yaml", nil, func(*Config) {})
	assert.ErrorContains(t, err, "failed to watch config directory")
}
