package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Cache      CacheConfig      `json:"cache"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Addr returns the host:port address for the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig contains cache behavior configuration
type CacheConfig struct {
	DefaultTTL  time.Duration `json:"default_ttl"`
	StaleWindow time.Duration `json:"stale_window"`
}

// BreakerConfig contains per-dependency circuit breaker settings
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// ResilienceConfig contains circuit breaker settings for each external
// dependency. Thresholds reflect how critical and how flaky each
// dependency is: the database trips fast and recovers fast, email
// tolerates more failures and backs off longer.
type ResilienceConfig struct {
	Redis    BreakerConfig `json:"redis"`
	Stripe   BreakerConfig `json:"stripe"`
	Minio    BreakerConfig `json:"minio"`
	Email    BreakerConfig `json:"email"`
	Database BreakerConfig `json:"database"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "domainscan"),
			User:            getEnvString("DB_USER", "domainscan"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			StaleWindow: getEnvDuration("CACHE_STALE_WINDOW", 30*time.Second),
		},
		Resilience: DefaultResilienceConfig(),
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultResilienceConfig returns the per-dependency breaker settings.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Redis: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_REDIS_THRESHOLD", 3),
			RecoveryTimeout:  getEnvDuration("BREAKER_REDIS_RECOVERY", 10*time.Second),
		},
		Stripe: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_STRIPE_THRESHOLD", 5),
			RecoveryTimeout:  getEnvDuration("BREAKER_STRIPE_RECOVERY", 30*time.Second),
		},
		Minio: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_MINIO_THRESHOLD", 3),
			RecoveryTimeout:  getEnvDuration("BREAKER_MINIO_RECOVERY", 15*time.Second),
		},
		Email: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_EMAIL_THRESHOLD", 5),
			RecoveryTimeout:  getEnvDuration("BREAKER_EMAIL_RECOVERY", 60*time.Second),
		},
		Database: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_DATABASE_THRESHOLD", 2),
			RecoveryTimeout:  getEnvDuration("BREAKER_DATABASE_RECOVERY", 5*time.Second),
		},
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default TTL must be positive")
	}
	if c.Cache.StaleWindow < 0 {
		return fmt.Errorf("cache stale window must not be negative")
	}
	for name, b := range map[string]BreakerConfig{
		"redis":    c.Resilience.Redis,
		"stripe":   c.Resilience.Stripe,
		"minio":    c.Resilience.Minio,
		"email":    c.Resilience.Email,
		"database": c.Resilience.Database,
	} {
		if b.FailureThreshold <= 0 {
			return fmt.Errorf("breaker %s: failure threshold must be positive", name)
		}
		if b.RecoveryTimeout <= 0 {
			return fmt.Errorf("breaker %s: recovery timeout must be positive", name)
		}
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
