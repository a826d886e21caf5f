package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spideyz0r/searchbar/pkg/kv"
	"github.com/spideyz0r/searchbar/pkg/provider"
	"github.com/spideyz0r/searchbar/pkg/recent"
)

// Environment variables read by the config layer.
const (
	EnvConfigPath = "SEARCHBAR_CONFIG"
	EnvDBPath     = "SEARCHBAR_DB_PATH"
	EnvPassphrase = "SEARCHBAR_PASSPHRASE"
)

// Cache for config to avoid repeated file reads.
var (
	cacheMutex    sync.RWMutex
	cachedConfig  *Config
	cachedPath    string
	cachedModTime time.Time
)

// Config holds the application configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Provider ProviderConfig `yaml:"provider" toml:"provider"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// StorageConfig holds where recent searches are persisted.
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // sqlite, bolt, memory
	Path    string `yaml:"path" toml:"path"`       // Database file
	Key     string `yaml:"key" toml:"key"`         // Key the list is stored under
	Encrypt bool   `yaml:"encrypt" toml:"encrypt"` // Encrypt values with SEARCHBAR_PASSPHRASE
}

// SearchConfig holds search bar behavior.
type SearchConfig struct {
	MinQueryLength    int `yaml:"min_query_length" toml:"min_query_length"`
	DebounceDelayMs   int `yaml:"debounce_delay_ms" toml:"debounce_delay_ms"`
	MaxRecentSearches int `yaml:"max_recent_searches" toml:"max_recent_searches"`
	BlurGraceMs       int `yaml:"blur_grace_ms" toml:"blur_grace_ms"`
}

// ProviderConfig selects the search backend.
type ProviderConfig struct {
	Name        string `yaml:"name" toml:"name"`                 // catalog, openai, recents
	LatencyMs   int    `yaml:"latency_ms" toml:"latency_ms"`     // Simulated catalog latency
	CatalogPath string `yaml:"catalog_path" toml:"catalog_path"` // Optional titles file
	Model       string `yaml:"model" toml:"model"`               // OpenAI model
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"` // Per-search timeout
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error
	Path  string `yaml:"path" toml:"path"`   // Empty logs to stderr
}

// Dir returns the searchbar data directory (~/.searchbar).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is unavailable
		home = "."
	}
	return filepath.Join(home, ".searchbar")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: kv.BackendSQLite,
			Path:    filepath.Join(Dir(), "recent.db"),
			Key:     recent.StorageKey,
		},
		Search: SearchConfig{
			MinQueryLength:    1,
			DebounceDelayMs:   300,
			MaxRecentSearches: recent.MaxRecentSearches,
			BlurGraceMs:       100,
		},
		Provider: ProviderConfig{
			Name:        "catalog",
			LatencyMs:   int(provider.DefaultLatency / time.Millisecond),
			Model:       "gpt-4o-mini",
			TimeoutSecs: 30,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from file, falling back to defaults.
// Uses a cache to avoid repeated file reads if the file hasn't changed.
// SEARCHBAR_DB_PATH, when set, overrides storage.path.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if dbPath := os.Getenv(EnvDBPath); dbPath != "" && dbPath != cfg.Storage.Path {
		c := *cfg
		c.Storage.Path = dbPath
		return &c, nil
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	// Check cache first
	cacheMutex.RLock()
	if cachedConfig != nil && cachedPath == path {
		if stat, err := os.Stat(path); err == nil && stat.ModTime().Equal(cachedModTime) {
			defer cacheMutex.RUnlock()
			return cachedConfig, nil
		}
	}
	cacheMutex.RUnlock()

	// Cache miss or file changed - load from disk
	cacheMutex.Lock()
	defer cacheMutex.Unlock()

	cfg := Default()

	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		cachedConfig = cfg
		cachedPath = path
		cachedModTime = time.Time{}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cachedConfig = cfg
	cachedPath = path
	cachedModTime = stat.ModTime()

	return cfg, nil
}

// DefaultPath returns SEARCHBAR_CONFIG if set, else ~/.searchbar/config.yaml.
func DefaultPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return filepath.Join(Dir(), "config.yaml")
}

// LoadDefault loads configuration from the default path.
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}

// ClearCache clears the configuration cache, forcing a reload on next Load()
func ClearCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	cachedConfig = nil
	cachedPath = ""
	cachedModTime = time.Time{}
}

// Save saves configuration to file, as TOML when path ends in .toml and
// YAML otherwise.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshal(path, c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case kv.BackendSQLite, kv.BackendBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
	case kv.BackendMemory:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be sqlite, bolt, or memory)", c.Storage.Backend)
	}

	if c.Storage.Key == "" {
		return fmt.Errorf("storage key cannot be empty")
	}

	if c.Search.MinQueryLength < 0 {
		return fmt.Errorf("min_query_length cannot be negative")
	}
	if c.Search.DebounceDelayMs < 0 {
		return fmt.Errorf("debounce_delay_ms cannot be negative")
	}
	if c.Search.BlurGraceMs < 0 {
		return fmt.Errorf("blur_grace_ms cannot be negative")
	}
	if c.Search.MaxRecentSearches <= 0 {
		return fmt.Errorf("max_recent_searches must be positive")
	}

	switch c.Provider.Name {
	case "catalog", "openai", "recents":
	default:
		return fmt.Errorf("invalid provider: %s (must be catalog, openai, or recents)", c.Provider.Name)
	}

	if c.Provider.LatencyMs < 0 {
		return fmt.Errorf("latency_ms cannot be negative")
	}

	return nil
}

// DebounceDelay returns search.debounce_delay_ms as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Search.DebounceDelayMs) * time.Millisecond
}

// BlurGrace returns search.blur_grace_ms as a duration.
func (c *Config) BlurGrace() time.Duration {
	return time.Duration(c.Search.BlurGraceMs) * time.Millisecond
}

// Latency returns provider.latency_ms as a duration.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.Provider.LatencyMs) * time.Millisecond
}

// Timeout returns provider.timeout_secs as a duration; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}
