// Package config loads tracker configuration from defaults, an optional
// config file, a .env file and TRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRACKER_RPC_HTTP_ENDPOINT.
const EnvPrefix = "TRACKER"

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// Config is the complete tracker configuration.
type Config struct {
	RPC     RPCConfig     `mapstructure:"rpc"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// RPCConfig configures the ledger client.
type RPCConfig struct {
	HTTPEndpoint string        `mapstructure:"http_endpoint"`
	WSEndpoint   string        `mapstructure:"ws_endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// StorageConfig selects and configures the event store.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
	ClickhouseDSN    string `mapstructure:"clickhouse_dsn"`
	MigrateOnStart   bool   `mapstructure:"migrate_on_start"`
}

// RedisConfig configures the price cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceKey string        `mapstructure:"price_key"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

// SyncConfig bounds each sync call.
type SyncConfig struct {
	DefaultMaxSignatures int           `mapstructure:"default_max_signatures"`
	HardMaxSignatures    int           `mapstructure:"hard_max_signatures"`
	DefaultDelay         time.Duration `mapstructure:"default_delay"`
	MinDelay             time.Duration `mapstructure:"min_delay"`
	Concurrency          int           `mapstructure:"concurrency"`
	PageSize             int           `mapstructure:"page_size"`
}

// PricingConfig configures the SOL/USD lookup. An empty Endpoint skips the
// live lookup.
type PricingConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	DefaultSOLUSD float64       `mapstructure:"default_sol_usd"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the metrics server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// WatchConfig configures live watching.
type WatchConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	MaxSignatures int           `mapstructure:"max_signatures"`
}

var defaults = map[string]interface{}{
	"rpc.http_endpoint": "https://api.mainnet-beta.solana.com",
	"rpc.ws_endpoint":   "wss://api.mainnet-beta.solana.com",
	"rpc.timeout":       "30s",
	"rpc.max_retries":   3,

	"storage.backend":            BackendPostgres,
	"storage.postgres_dsn":       "",
	"storage.postgres_max_conns": 10,
	"storage.clickhouse_dsn":     "",
	"storage.migrate_on_start":   true,

	"redis.addr":      "",
	"redis.password":  "",
	"redis.db":        0,
	"redis.price_key": "tracker:price:sol_usd",
	"redis.price_ttl": "10m",

	"sync.default_max_signatures": 50,
	"sync.hard_max_signatures":    50,
	"sync.default_delay":          "500ms",
	"sync.min_delay":              "100ms",
	"sync.concurrency":            2,
	"sync.page_size":              1000,

	"pricing.endpoint":        "https://api.coingecko.com/api/v3",
	"pricing.timeout":         "5s",
	"pricing.default_sol_usd": 150.0,

	"log.level":  "info",
	"log.format": "json",

	"metrics.addr": ":9090",

	"watch.debounce":       "2s",
	"watch.max_signatures": 20,
}

// Load reads configuration. path may name a config file (yaml, json or
// toml); an empty path only looks for tracker.yaml in the working directory.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tracker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if c.RPC.HTTPEndpoint == "" {
		errs = append(errs, errors.New("rpc.http_endpoint is required"))
	}
	if c.RPC.Timeout <= 0 {
		errs = append(errs, errors.New("rpc.timeout must be positive"))
	}
	if c.RPC.MaxRetries < 0 {
		errs = append(errs, errors.New("rpc.max_retries must not be negative"))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	case BackendClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required for the clickhouse backend"))
		}
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for overrides and cursors"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, postgres, clickhouse", c.Storage.Backend))
	}

	s := c.Sync
	if s.HardMaxSignatures <= 0 {
		errs = append(errs, errors.New("sync.hard_max_signatures must be positive"))
	}
	if s.DefaultMaxSignatures <= 0 || s.DefaultMaxSignatures > s.HardMaxSignatures {
		errs = append(errs, errors.New("sync.default_max_signatures must be in (0, hard_max_signatures]"))
	}
	if s.MinDelay < 0 || s.DefaultDelay < s.MinDelay {
		errs = append(errs, errors.New("sync.default_delay must be at least sync.min_delay"))
	}
	if s.Concurrency <= 0 {
		errs = append(errs, errors.New("sync.concurrency must be positive"))
	}
	if s.PageSize <= 0 || s.PageSize > 1000 {
		errs = append(errs, errors.New("sync.page_size must be in (0, 1000]"))
	}

	if c.Pricing.DefaultSOLUSD <= 0 {
		errs = append(errs, errors.New("pricing.default_sol_usd must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.PriceTTL <= 0 {
		errs = append(errs, errors.New("redis.price_ttl must be positive"))
	}
	if c.Watch.Debounce <= 0 {
		errs = append(errs, errors.New("watch.debounce must be positive"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}

	return errors.Join(errs...)
}
