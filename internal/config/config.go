// Package config loads and validates chunkgen configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/chunkgen/internal/policy/ratelimit"
	"github.com/JakeFAU/chunkgen/internal/progress"
	"github.com/JakeFAU/chunkgen/internal/storage/postgres"
	"github.com/JakeFAU/chunkgen/internal/telemetry"
)

// EnvPrefix prefixes environment overrides, e.g. CHUNKGEN_SCHEDULER_CONCURRENCY.
const EnvPrefix = "CHUNKGEN"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Report    ReportConfig     `mapstructure:"report"`
	Progress  progress.Config  `mapstructure:"progress"`
	Worlds    WorldsConfig     `mapstructure:"worlds"`
	Store     StoreConfig      `mapstructure:"store"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
}

// SchedulerConfig bounds how many cells may be outstanding at once.
type SchedulerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ReportConfig controls progress message throttling.
type ReportConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	DoneMessage string  `mapstructure:"done_message"`
}

// WorldsConfig describes the in-process worlds available to generate.
type WorldsConfig struct {
	Names    []string         `mapstructure:"names"`
	Latency  time.Duration    `mapstructure:"latency"`
	Limit    ratelimit.Config `mapstructure:"limit"`
	FailRate float64          `mapstructure:"fail_rate"`
	Seed     uint64           `mapstructure:"seed"`
}

// StoreConfig selects where run history is kept.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver   string          `mapstructure:"driver"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// RedisConfig enables the Redis availability flag.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Refresh   time.Duration `mapstructure:"refresh"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ServerConfig controls the optional status server. An empty Listen
// disables it.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode applies defaults and environment overrides to v, then unmarshals
// and validates the result.
func Decode(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("report.threshold", 0.01)
	v.SetDefault("report.done_message", "Generation completed.")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("worlds.names", []string{"world"})
	v.SetDefault("worlds.latency", "0s")
	v.SetDefault("worlds.limit.rps", 0)
	v.SetDefault("worlds.limit.burst", 1)
	v.SetDefault("worlds.fail_rate", 0)
	v.SetDefault("worlds.seed", 1)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres.table", "runs")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "chunkgen")
	v.SetDefault("redis.refresh", "1s")
	v.SetDefault("redis.timeout", "500ms")
	v.SetDefault("server.listen", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "chunkgen")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scheduler.Concurrency <= 0 {
		return errors.New("scheduler.concurrency must be > 0")
	}
	if c.Report.Threshold < 0 || c.Report.Threshold > 100 {
		return errors.New("report.threshold must be between 0 and 100")
	}
	if len(c.Worlds.Names) == 0 {
		return errors.New("worlds.names must list at least one world")
	}
	if c.Worlds.FailRate < 0 || c.Worlds.FailRate > 1 {
		return errors.New("worlds.fail_rate must be between 0 and 1")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn must be set when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr must be set when redis is enabled")
	}
	return nil
}
