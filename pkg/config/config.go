// Package config loads and validates bloom-index configuration from YAML files
// with environment-variable overrides. Command-line flags are applied on top
// by the CLI after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Loader   LoaderConfig   `yaml:"loader"`
	Dump     DumpConfig     `yaml:"dump"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Retry    RetryConfig    `yaml:"retry"`
}

// IndexConfig fixes the bloom filter geometry shared by every document in a
// store, and the tokenizer options used to feed it. When Bits or Hashes is
// zero they are derived from ErrorRate and ExpectedTerms.
type IndexConfig struct {
	Bits           int     `yaml:"bits"`
	Hashes         int     `yaml:"hashes"`
	ErrorRate      float64 `yaml:"errorRate"`
	ExpectedTerms  int     `yaml:"expectedTerms"`
	MinTokenLength int     `yaml:"minTokenLength"`
	StopWords      bool    `yaml:"stopWords"`
	Stem           bool    `yaml:"stem"`
	Overwrite      bool    `yaml:"overwrite"`
}

// LoaderConfig controls how source trees are walked and read.
type LoaderConfig struct {
	Workers       int   `yaml:"workers"`
	IncludeHidden bool  `yaml:"includeHidden"`
	IncludeBinary bool  `yaml:"includeBinary"`
	MaxFileSize   int64 `yaml:"maxFileSize"`
}

// DumpConfig controls the dump encoding and local file locking.
type DumpConfig struct {
	Compress    bool          `yaml:"compress"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// RedisConfig holds Redis connection parameters for redis:// dump locations
// and for the serve query cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for postgres:// dump
// locations.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for dump notifications.
// An empty ConsumerGroup gives every serve instance its own group, so each
// one sees every event.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DumpWritten string `yaml:"dumpWritten"`
}

// ServerConfig holds settings for the serve command. Cache enables the
// Redis-backed query cache.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	Cache           bool          `yaml:"cache"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls metrics export. TextFile, when set, receives the
// registry in Prometheus text format after each command. Port, when set,
// serves /metrics for the lifetime of a non-serve command.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TextFile string `yaml:"textFile"`
	Port     int    `yaml:"port"`
}

// RetryConfig controls backoff for remote dump stores.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			ErrorRate:      0.00001,
			ExpectedTerms:  1000,
			MinTokenLength: 1,
		},
		Loader: LoaderConfig{
			Workers:     8,
			MaxFileSize: 64 << 20,
		},
		Dump: DumpConfig{
			LockTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
			CacheTTL: 5 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bloomindex",
			User:            "bloomindex",
			Password:        "localdev",
			SSLMode:         "disable",
			Table:           "bloom_dumps",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				DumpWritten: "bloom.dump-written",
			},
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			DefaultLimit:    100,
			MaxResults:      1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Validate rejects values that would otherwise surface later as filter or
// loader failures.
func (c *Config) Validate() error {
	if c.Index.Bits < 0 || c.Index.Hashes < 0 {
		return fmt.Errorf("%w: bits and hashes must not be negative", apperrors.ErrInvalidConfig)
	}
	if (c.Index.Bits == 0) != (c.Index.Hashes == 0) {
		return fmt.Errorf("%w: bits and hashes must be set together", apperrors.ErrInvalidConfig)
	}
	if c.Index.Bits == 0 {
		if c.Index.ErrorRate <= 0 || c.Index.ErrorRate >= 1 {
			return fmt.Errorf("%w: errorRate must be in (0, 1), got %v", apperrors.ErrInvalidConfig, c.Index.ErrorRate)
		}
		if c.Index.ExpectedTerms <= 0 {
			return fmt.Errorf("%w: expectedTerms must be positive", apperrors.ErrInvalidConfig)
		}
	}
	if c.Index.MinTokenLength < 1 {
		return fmt.Errorf("%w: minTokenLength must be at least 1", apperrors.ErrInvalidConfig)
	}
	if c.Server.DefaultLimit < 0 || c.Server.MaxResults < 0 {
		return fmt.Errorf("%w: result limits must not be negative", apperrors.ErrInvalidConfig)
	}
	if c.Loader.Workers < 1 {
		return fmt.Errorf("%w: loader workers must be at least 1", apperrors.ErrInvalidConfig)
	}
	return nil
}

// applyEnvOverrides reads BLOOM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLOOM_INDEX_BITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Bits = n
		}
	}
	if v := os.Getenv("BLOOM_INDEX_HASHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Hashes = n
		}
	}
	if v := os.Getenv("BLOOM_INDEX_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Index.ErrorRate = f
		}
	}
	if v := os.Getenv("BLOOM_LOADER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loader.Workers = n
		}
	}
	if v := os.Getenv("BLOOM_DUMP_COMPRESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dump.Compress = b
		}
	}
	if v := os.Getenv("BLOOM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BLOOM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BLOOM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BLOOM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BLOOM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BLOOM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BLOOM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BLOOM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("BLOOM_SERVER_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.Cache = b
		}
	}
	if v := os.Getenv("BLOOM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BLOOM_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("BLOOM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BLOOM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
