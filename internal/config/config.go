// Package config loads the engine's runtime configuration from the
// environment, with typed defaults overridden by explicit env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Database groups Postgres connection settings.
type Database struct {
	Host    string
	Port    int
	User    string
	Password string
	Name    string
	SSLMode string
	PoolMin int32
	PoolMax int32
}

// DSN renders the libpq connection string pgxpool expects.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Redis groups connection settings for the job queue and dedup locks.
type Redis struct {
	Host     string
	Port     int
	Password string
}

// Addr renders the host:port address go-redis expects.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Queue groups the execution job queue's operational knobs.
type Queue struct {
	Concurrency int
	MaxAttempts int
}

// Telemetry groups OpenTelemetry exporter settings.
type Telemetry struct {
	OTLPEndpoint string
	ServiceName  string
	Environment  string
}

// Config is the engine's full runtime configuration.
type Config struct {
	Port          int
	DB            Database
	Redis         Redis
	Queue         Queue
	WalletAddress string
	LogLevel      string
	Telemetry     Telemetry
}

// Default returns the configuration used when no environment overrides
// are present — suitable for local development against the docker
// compose stack.
func Default() Config {
	return Config{
		Port: 3000,
		DB: Database{
			Host:    "localhost",
			Port:    5432,
			User:    "engine",
			Password: "engine",
			Name:    "engine",
			SSLMode: "disable",
			PoolMin: 2,
			PoolMax: 10,
		},
		Redis: Redis{
			Host: "localhost",
			Port: 6379,
		},
		Queue: Queue{
			Concurrency: 10,
			MaxAttempts: 3,
		},
		LogLevel: "info",
		Telemetry: Telemetry{
			ServiceName: "swap-execution-engine",
			Environment: "dev",
		},
	}
}

// FromEnv returns Default() overridden by any of the engine's
// recognized environment variables. It fails fast on a malformed
// DB_POOL_MIN or DB_POOL_MAX and on a non-positive PORT,
// QUEUE_CONCURRENCY or QUEUE_MAX_ATTEMPTS; any other integer variable
// whose value does not parse keeps its default.
func FromEnv() (Config, error) {
	cfg := Default()

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DB.Host = envString("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = envInt("DB_PORT", cfg.DB.Port)
	cfg.DB.User = envString("DB_USER", cfg.DB.User)
	cfg.DB.Password = envString("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envString("DB_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envString("DB_SSL", cfg.DB.SSLMode)

	poolMin, err := envInt32("DB_POOL_MIN", cfg.DB.PoolMin)
	if err != nil {
		return Config{}, err
	}
	cfg.DB.PoolMin = poolMin

	poolMax, err := envInt32("DB_POOL_MAX", cfg.DB.PoolMax)
	if err != nil {
		return Config{}, err
	}
	cfg.DB.PoolMax = poolMax

	cfg.Redis.Host = envString("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = envInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = envString("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Queue.Concurrency = envInt("QUEUE_CONCURRENCY", cfg.Queue.Concurrency)
	cfg.Queue.MaxAttempts = envInt("QUEUE_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)

	cfg.WalletAddress = envString("WALLET_ADDRESS", cfg.WalletAddress)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	cfg.Telemetry.OTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = envString("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Environment = envString("ENVIRONMENT", cfg.Telemetry.Environment)

	if cfg.Port <= 0 {
		return Config{}, fmt.Errorf("config: PORT must be positive, got %d", cfg.Port)
	}
	if cfg.Queue.Concurrency <= 0 {
		return Config{}, fmt.Errorf("config: QUEUE_CONCURRENCY must be positive, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.MaxAttempts <= 0 {
		return Config{}, fmt.Errorf("config: QUEUE_MAX_ATTEMPTS must be positive, got %d", cfg.Queue.MaxAttempts)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt32(key string, fallback int32) (int32, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return int32(parsed), nil
}
