package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the backend notification API.
type APIConfig struct {
	// BaseURL is the root URL of the admin API
	// (e.g., https://admin.example.com/api/admin).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RetryConfig holds the retry driver's backoff parameters.
type RetryConfig struct {
	MaxAttempts   int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelayMs   int     `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMs    int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffFactor float64 `mapstructure:"backoff_factor" yaml:"backoff_factor"`
}

// CacheConfig holds the local cache TTL and sweep interval.
type CacheConfig struct {
	TTLSec             int `mapstructure:"ttl_sec" yaml:"ttl_sec"`
	CleanupIntervalSec int `mapstructure:"cleanup_interval_sec" yaml:"cleanup_interval_sec"`

	// MaxPendingActions bounds the offline queue. When full, the
	// oldest queued action is dropped to make room.
	MaxPendingActions int `mapstructure:"max_pending_actions" yaml:"max_pending_actions"`
}

// ConnectivityConfig holds the connection monitor's probe settings.
type ConnectivityConfig struct {
	// HealthPath is probed with HEAD relative to the API base URL.
	HealthPath string `mapstructure:"health_path" yaml:"health_path"`

	ProbeTimeoutSec  int `mapstructure:"probe_timeout_sec" yaml:"probe_timeout_sec"`
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`
}

// AppConfig is the top-level configuration for the notification agent.
type AppConfig struct {
	API          APIConfig          `mapstructure:"api" yaml:"api"`
	Retry        RetryConfig        `mapstructure:"retry" yaml:"retry"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`

	// PollIntervalSec is how often the service refetches the
	// notification list. Zero disables polling.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// DBPath is the SQLite file backing the durable pending-action
	// queue and snapshot. Empty disables durable storage.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notify-agent/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notify-agent", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api/admin",
			TimeoutSec: 30,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelayMs:   1000,
			MaxDelayMs:    30000,
			BackoffFactor: 2.0,
		},
		Cache: CacheConfig{
			TTLSec:             300,
			CleanupIntervalSec: 60,
			MaxPendingActions:  100,
		},
		Connectivity: ConnectivityConfig{
			HealthPath:       "/health",
			ProbeTimeoutSec:  5,
			ProbeIntervalSec: 30,
		},
		PollIntervalSec: 120,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", "http://localhost:8080/api/admin")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("cache.ttl_sec", 300)
	v.SetDefault("cache.cleanup_interval_sec", 60)
	v.SetDefault("cache.max_pending_actions", 100)
	v.SetDefault("connectivity.health_path", "/health")
	v.SetDefault("connectivity.probe_timeout_sec", 5)
	v.SetDefault("connectivity.probe_interval_sec", 30)
	v.SetDefault("poll_interval_sec", 120)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("retry", cfg.Retry)
	v.Set("cache", cfg.Cache)
	v.Set("connectivity", cfg.Connectivity)
	v.Set("poll_interval_sec", cfg.PollIntervalSec)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
