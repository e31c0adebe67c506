// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FESTCRAWL_CRAWL_BATCH_SIZE.
const EnvPrefix = "FESTCRAWL"

// Checkpoint and archive backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlConfig holds file locations and batch bounds.
type CrawlConfig struct {
	SeedsPath  string `mapstructure:"seeds_path"`
	StatePath  string `mapstructure:"state_path"`
	OutputPath string `mapstructure:"output_path"`
	MaxDepth   int    `mapstructure:"max_depth"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// FetchConfig configures the primary transport and its retry policy.
type FetchConfig struct {
	Retries         int           `mapstructure:"retries"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BackoffFactor   time.Duration `mapstructure:"backoff_factor"`
	FallbackEnabled bool          `mapstructure:"fallback_enabled"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// HeadlessConfig configures the browser fallback.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	QPS         float64       `mapstructure:"qps"`
}

// CheckpointConfig selects where crawl state is stored.
type CheckpointConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the Redis checkpoint backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// ArchiveConfig selects where raw pages are archived.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PostgresConfig enables the record mirror when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables record notifications when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status server; empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"seeds":      "crawl.seeds_path",
	"state":      "crawl.state_path",
	"output":     "crawl.output_path",
	"max-depth":  "crawl.max_depth",
	"batch-size": "crawl.batch_size",
	"addr":       "server.addr",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that map to configuration keys. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

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
	v.SetDefault("crawl.seeds_path", "seeds.txt")
	v.SetDefault("crawl.state_path", "state.json")
	v.SetDefault("crawl.output_path", "data.jsonl")
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.batch_size", 10)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.backoff_factor", "500ms")
	v.SetDefault("fetch.fallback_enabled", true)
	v.SetDefault("fetch.user_agent", "festcrawl/1.0 (+https://github.com/JakeFAU/festival-crawler)")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("headless.qps", 0)
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.redis.addr", "")
	v.SetDefault("checkpoint.redis.password", "")
	v.SetDefault("checkpoint.redis.db", 0)
	v.SetDefault("checkpoint.redis.key", "festcrawl:state")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.dir", "pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "festival_records")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Crawl.StatePath) == "" && c.Checkpoint.Backend == BackendFile {
		errs = append(errs, errors.New("crawl.state_path must be set for the file checkpoint backend"))
	}
	if strings.TrimSpace(c.Crawl.OutputPath) == "" {
		errs = append(errs, errors.New("crawl.output_path must be set"))
	}
	if c.Crawl.MaxDepth <= 0 {
		errs = append(errs, errors.New("crawl.max_depth must be > 0"))
	}
	if c.Crawl.BatchSize <= 0 {
		errs = append(errs, errors.New("crawl.batch_size must be > 0"))
	}
	if c.Fetch.Retries <= 0 {
		errs = append(errs, errors.New("fetch.retries must be > 0"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be > 0"))
	}
	if c.Fetch.BackoffFactor < 0 {
		errs = append(errs, errors.New("fetch.backoff_factor must be >= 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if c.Headless.QPS < 0 {
		errs = append(errs, errors.New("headless.qps must be >= 0"))
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Checkpoint.Redis.Addr == "" {
			errs = append(errs, errors.New("checkpoint.redis.addr must be set for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.backend %q is not one of file, redis", c.Checkpoint.Backend))
	}

	switch c.Archive.Backend {
	case "", BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir must be set for the local archive"))
		}
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			errs = append(errs, errors.New("archive.gcs_bucket must be set for the gcs archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend %q is not one of none, local, gcs, memory", c.Archive.Backend))
	}

	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	return errors.Join(errs...)
}

// HeadlessFallback reports whether 403s and exhausted retries should go to
// the browser fallback.
func (c Config) HeadlessFallback() bool {
	return c.Fetch.FallbackEnabled && c.Headless.Enabled
}
