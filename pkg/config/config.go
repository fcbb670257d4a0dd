// Package config loads and validates run configuration from YAML files with
// environment-variable overrides. A Config is finalised once at startup and
// treated as read-only by every component it is handed to.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// Collection backends.
const (
	BackendMemory   = "memory"
	BackendSegment  = "segment"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Document file formats understood by the memory backend loader.
const (
	FormatLines = "lines"
	FormatJSONL = "jsonl"
)

var knownAnalyzers = map[string]struct{}{
	"standard":   {},
	"english":    {},
	"whitespace": {},
}

// Config is the top-level run configuration.
type Config struct {
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Collection CollectionConfig `yaml:"collection"`
	Workers    WorkersConfig    `yaml:"workers"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// RetrievalConfig holds the model parameters and run-file locations.
type RetrievalConfig struct {
	Model              string  `yaml:"model"`
	Lambda             float64 `yaml:"lambda"`
	MaxResults         int     `yaml:"maxResults"`
	RunTag             string  `yaml:"runTag"`
	QueryFile          string  `yaml:"queryFile"`
	ResultFile         string  `yaml:"resultFile"`
	FilterZeroEvidence bool    `yaml:"filterZeroEvidence"`
}

// CollectionConfig selects the index collaborator and the analyzer chain.
type CollectionConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	Format   string `yaml:"format"`
	Analyzer string `yaml:"analyzer"`

	// CacheVectors keeps every extracted term vector in memory for the
	// whole run.
	CacheVectors bool `yaml:"cacheVectors"`
}

// WorkersConfig bounds query-level and document-level parallelism.
type WorkersConfig struct {
	Queries   int `yaml:"queries"`
	Documents int `yaml:"documents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
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

// SQLiteConfig holds the embedded database settings.
type SQLiteConfig struct {
	BusyTimeout time.Duration `yaml:"busyTimeout"`
}

// RedisConfig controls the ranked-list cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig controls the optional result stream.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. The returned Config still needs Finalize before use.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfiguration, "parsing config file %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			Model:      "QLM",
			Lambda:     0.5,
			MaxResults: 1000,
		},
		Collection: CollectionConfig{
			Backend:      BackendMemory,
			Format:       FormatLines,
			Analyzer:     "standard",
			CacheVectors: true,
		},
		Workers: WorkersConfig{
			Queries:   2,
			Documents: runtime.NumCPU(),
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "qlm",
			User:            "qlm",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			BusyTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "qlm-results",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Finalize fills derived defaults and validates the configuration. It must be
// called once, after every override has been applied.
func (c *Config) Finalize() error {
	if c.Retrieval.RunTag == "" {
		c.Retrieval.RunTag = strings.ToLower(c.Retrieval.Model)
	}
	if c.Retrieval.ResultFile == "" {
		c.Retrieval.ResultFile = c.Retrieval.RunTag + "_results.res"
	}
	return c.Validate()
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	r := c.Retrieval
	if !(r.Lambda > 0 && r.Lambda <= 1) {
		return apperrors.Newf(apperrors.ErrConfiguration, "lambda must be in (0,1], got %v", r.Lambda)
	}
	if r.MaxResults <= 0 {
		return apperrors.Newf(apperrors.ErrConfiguration, "maxResults must be positive, got %d", r.MaxResults)
	}
	switch c.Collection.Backend {
	case BackendMemory, BackendSegment, BackendSQLite:
		if c.Collection.Path == "" {
			return apperrors.Newf(apperrors.ErrConfiguration, "collection.path is required for backend %q", c.Collection.Backend)
		}
	case BackendPostgres:
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, "unknown collection backend %q", c.Collection.Backend)
	}
	switch c.Collection.Format {
	case FormatLines, FormatJSONL:
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, "unknown document format %q", c.Collection.Format)
	}
	if _, ok := knownAnalyzers[c.Collection.Analyzer]; !ok {
		return apperrors.Newf(apperrors.ErrConfiguration, "unknown analyzer %q", c.Collection.Analyzer)
	}
	if c.Workers.Queries <= 0 || c.Workers.Documents <= 0 {
		return apperrors.Newf(apperrors.ErrConfiguration,
			"worker counts must be positive, got queries=%d documents=%d", c.Workers.Queries, c.Workers.Documents)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return apperrors.New(apperrors.ErrConfiguration, "kafka requires brokers and a topic")
	}
	return nil
}

// applyEnvOverrides reads QLM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QLM_LAMBDA"); v != "" {
		if lambda, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.Lambda = lambda
		}
	}
	if v := os.Getenv("QLM_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.MaxResults = n
		}
	}
	if v := os.Getenv("QLM_RUN_TAG"); v != "" {
		cfg.Retrieval.RunTag = v
	}
	if v := os.Getenv("QLM_COLLECTION_BACKEND"); v != "" {
		cfg.Collection.Backend = v
	}
	if v := os.Getenv("QLM_COLLECTION_PATH"); v != "" {
		cfg.Collection.Path = v
	}
	if v := os.Getenv("QLM_COLLECTION_ANALYZER"); v != "" {
		cfg.Collection.Analyzer = v
	}
	if v := os.Getenv("QLM_QUERY_FILE"); v != "" {
		cfg.Retrieval.QueryFile = v
	}
	if v := os.Getenv("QLM_RESULT_FILE"); v != "" {
		cfg.Retrieval.ResultFile = v
	}
	if v := os.Getenv("QLM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("QLM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("QLM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("QLM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("QLM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("QLM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QLM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QLM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("QLM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QLM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
