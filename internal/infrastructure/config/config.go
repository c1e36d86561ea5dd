package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Log      LogConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// CacheConfig represents cache configuration for materialized users
// and compiled expressions
type CacheConfig struct {
	Enabled        bool
	Backend        string // "memory" or "redis"; compiled expressions always stay in memory
	MaxMemoryBytes int64  // Maximum memory usage in bytes (e.g., 104857600 = 100MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cache entries in minutes
}

// TTL returns the entry time-to-live
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// RedisConfig represents the redis cache backend configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// CatalogConfig represents the permission catalog source
type CatalogConfig struct {
	Path string // YAML file; empty uses the built-in catalog
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// SlogLevel converts the configured level to a slog.Level (info when unknown)
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "epiguard")
	viper.SetDefault("DB_NAME", "epiguard_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_BACKEND", CacheBackendMemory)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 100*1024*1024) // 100MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5) // 5 minutes TTL

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_KEY_PREFIX", "epiguard:")

	viper.SetDefault("CATALOG_PATH", "")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	backend := strings.ToLower(viper.GetString("CACHE_BACKEND"))
	if backend == "" {
		backend = CacheBackendMemory
	}
	if backend != CacheBackendMemory && backend != CacheBackendRedis {
		return nil, fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, backend)
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			Backend:        backend,
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Redis: RedisConfig{
			Addr:      viper.GetString("REDIS_ADDR"),
			Password:  viper.GetString("REDIS_PASSWORD"),
			DB:        viper.GetInt("REDIS_DB"),
			KeyPrefix: viper.GetString("REDIS_KEY_PREFIX"),
		},
		Catalog: CatalogConfig{
			Path: viper.GetString("CATALOG_PATH"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: strings.ToLower(viper.GetString("LOG_FORMAT")),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
