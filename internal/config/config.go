package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	S3       S3Config       `mapstructure:"s3"`
	Hash     HashConfig     `mapstructure:"hash"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`  // development | production
	Port    int    `mapstructure:"port"` // HTTP API port
	Version string `mapstructure:"version"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "s3" or "fs"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem backend
	// BaseURL prefixes tokenized download URLs minted by the fs backend.
	BaseURL string `mapstructure:"base_url"`
	// DownloadURLTTL is the default validity window for download URLs.
	DownloadURLTTL time.Duration `mapstructure:"download_url_ttl"`
}

// S3Config holds credentials for an S3-compatible provider (AWS, MinIO,
// Garage, DigitalOcean Spaces, ...).
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

type HashConfig struct {
	// Algorithm selects the digest family for event hashing: "sha256" or
	// "sha512". Changing it invalidates every previously stored digest, so
	// it is fixed per deployment.
	Algorithm string `mapstructure:"algorithm"`
}

type WorkerConfig struct {
	// How often the scheduler enqueues tenant chain audit sweeps
	AuditInterval time.Duration `mapstructure:"audit_interval"`
	// Max events examined per tenant sweep
	AuditEventLimit int `mapstructure:"audit_event_limit"`
	// Max concurrent workers processing tasks
	Concurrency int `mapstructure:"concurrency"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: TIMELINE_
// Example: TIMELINE_APP_PORT=8080.
func Load() (*Config, error) {
	v := viper.New()

	// ---------- defaults ----------
	v.SetDefault("app.name", "timeline")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "0.3.0")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.fs_root", "./data/documents")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.download_url_ttl", "1h")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", true)

	v.SetDefault("hash.algorithm", "sha256")

	v.SetDefault("worker.audit_interval", "1h")
	v.SetDefault("worker.audit_event_limit", 1000)
	v.SetDefault("worker.concurrency", 10)

	// ---------- config file (optional) ----------
	v.SetConfigName("timeline")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/timeline")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	// ---------- env vars ----------
	v.SetEnvPrefix("TIMELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
