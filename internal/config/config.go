package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"order-feed-sync/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// FeedConfig covers the upstream marketplace order feed.
type FeedConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Network           string        `mapstructure:"network"`
	APIKey            string        `mapstructure:"api_key"`
	APIKeyHeader      string        `mapstructure:"api_key_header"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// SyncConfig governs the paginated fetch loop.
type SyncConfig struct {
	PageSize         int           `mapstructure:"page_size"`
	ParseConcurrency int           `mapstructure:"parse_concurrency"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	Source           string        `mapstructure:"source"`
}

// RealtimeConfig tunes the self-rearming cursor sync job.
type RealtimeConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	LockName     string        `mapstructure:"lock_name"`
	LockHoldoff  time.Duration `mapstructure:"lock_holdoff"`
	CursorKey    string        `mapstructure:"cursor_key"`
}

// DiscoveryConfig bounds the collection ranking refresh and probe cadence.
type DiscoveryConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MaxCollections int           `mapstructure:"max_collections"`
	PageSize       int           `mapstructure:"page_size"`
	TokenSample    int           `mapstructure:"token_sample"`
	ProbeDelay     time.Duration `mapstructure:"probe_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// QueueConfig controls downstream job handling.
type QueueConfig struct {
	Expedited bool `mapstructure:"expedited"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORDERFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "orderfeed")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("feed.network", "ethereum")
	v.SetDefault("feed.api_key_header", "X-API-KEY")
	v.SetDefault("feed.user_agent", "orderfeed/1.0")
	v.SetDefault("feed.request_timeout", "15s")
	v.SetDefault("feed.requests_per_second", 4.0)
	v.SetDefault("feed.burst", 4)

	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.parse_concurrency", 20)
	v.SetDefault("sync.retry_delay", "5s")
	v.SetDefault("sync.source", "feed")

	v.SetDefault("realtime.delay", "1m")
	v.SetDefault("realtime.startup_delay", "0s")
	v.SetDefault("realtime.lock_name", "realtime-order-sync")
	v.SetDefault("realtime.lock_holdoff", "30s")
	v.SetDefault("realtime.cursor_key", "lastSyncCursor")

	v.SetDefault("discovery.max_collections", 1000)
	v.SetDefault("discovery.page_size", 20)
	v.SetDefault("discovery.token_sample", 50)
	v.SetDefault("discovery.probe_delay", "10m")
	v.SetDefault("discovery.request_timeout", "15s")

	v.SetDefault("queue.expedited", false)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be greater than zero")
	}
	if c.Sync.ParseConcurrency <= 0 {
		return fmt.Errorf("sync.parse_concurrency must be greater than zero")
	}
	if c.Sync.RetryDelay <= 0 {
		return fmt.Errorf("sync.retry_delay must be greater than zero")
	}
	if c.Realtime.Delay <= 0 {
		return fmt.Errorf("realtime.delay must be greater than zero")
	}
	if c.Realtime.CursorKey == "" {
		return fmt.Errorf("realtime.cursor_key is required")
	}
	if c.Discovery.PageSize <= 0 || c.Discovery.PageSize > c.Discovery.MaxCollections {
		return fmt.Errorf("discovery.page_size must be within (0, max_collections]")
	}
	if c.Discovery.TokenSample <= 0 {
		return fmt.Errorf("discovery.token_sample must be greater than zero")
	}
	if c.Discovery.ProbeDelay <= 0 {
		return fmt.Errorf("discovery.probe_delay must be greater than zero")
	}
	if c.Feed.RequestsPerSecond <= 0 {
		return fmt.Errorf("feed.requests_per_second must be greater than zero")
	}
	return nil
}
