package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the migration engine.
type Config struct {
	DefaultConnection string       `yaml:"default_connection"`
	RootFolder        string       `yaml:"root_folder"`
	ControlDB         ControlDB    `yaml:"control_db"`
	Queue             QueueConfig  `yaml:"queue"`
	Schema            SchemaConfig `yaml:"schema"`
	Loader            LoaderConfig `yaml:"loader"`
}

// ControlDB holds the Postgres connection used for the Job/JobFile/
// JobError/JobMetric control tables, distinct from the
// migration's SQL Server destination.
type ControlDB struct {
	ConnectionString string `yaml:"connection_string"`
}

// QueueConfig holds the Job Queue's (C9) tuning knobs.
type QueueConfig struct {
	Workers       int    `yaml:"workers"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// SchemaConfig holds Schema Service (C5) timeouts.
type SchemaConfig struct {
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// ConnectTimeout returns the configured connection-test timeout.
func (c SchemaConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// LoaderConfig holds Bulk Loader (C6) tuning knobs.
type LoaderConfig struct {
	BatchSize      int `yaml:"batch_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured per-batch bulk-copy timeout.
func (c LoaderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file, applying defaults for
// any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Schema.ConnectTimeoutSeconds == 0 {
		cfg.Schema.ConnectTimeoutSeconds = 5
	}
	if cfg.Loader.BatchSize == 0 {
		cfg.Loader.BatchSize = 1000
	}
	if cfg.Loader.TimeoutSeconds == 0 {
		cfg.Loader.TimeoutSeconds = 300
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env
// vars, so secrets can live in .env locally and in real env vars in
// production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DEFAULT_CONNECTION"); v != "" {
		cfg.DefaultConnection = v
	}
	if v := os.Getenv("ROOT_FOLDER"); v != "" {
		cfg.RootFolder = v
	}
	if v := os.Getenv("CONTROL_DB_CONNECTION_STRING"); v != "" {
		cfg.ControlDB.ConnectionString = v
	}
	if v := os.Getenv("QUEUE_REDIS_ADDR"); v != "" {
		cfg.Queue.RedisAddr = v
	}
	if v := os.Getenv("QUEUE_REDIS_PASSWORD"); v != "" {
		cfg.Queue.RedisPassword = v
	}

	return cfg, nil
}
