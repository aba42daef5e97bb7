// Package config loads service configuration from an optional .env file and
// the environment. Every service builds one Config in main and passes the
// pieces it needs to the components it constructs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration of one service
type Config struct {
	ServiceName string
	Env         string
	HTTPPort    string
	Database    DatabaseConfig
	Pagination  PaginationConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Log         LogConfig
	Upstreams   UpstreamConfig
}

// PaginationConfig bounds list and search pages
type PaginationConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// RedisConfig configures the tenant lookup cache. An empty Addr disables it.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	TenantCacheTTL time.Duration
}

// KafkaConfig configures change-event publishing. An empty Broker disables it.
type KafkaConfig struct {
	Broker  string
	Topic   string
	Workers int
	Buffer  int
}

// AuthConfig configures the placeholder token parser
type AuthConfig struct {
	SigningKey string
	// Mock accepts X-Tenant-ID / X-User-ID headers instead of a token.
	Mock bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// UpstreamConfig lists the services the gateway proxies to
type UpstreamConfig struct {
	AdminURL      string
	SimulationURL string
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads .env (if present) and the environment for serviceName.
// defaultPort is used when HTTP_PORT is unset.
func Load(serviceName, defaultPort string) (*Config, error) {
	// .env is optional; environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v, serviceName, defaultPort)

	cfg := &Config{
		ServiceName: v.GetString("SERVICE_NAME"),
		Env:         v.GetString("APP_ENV"),
		HTTPPort:    v.GetString("HTTP_PORT"),
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSL_MODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
			SlowThreshold:   v.GetDuration("DB_SLOW_THRESHOLD"),
		},
		Pagination: PaginationConfig{
			DefaultLimit: v.GetInt("PAGE_DEFAULT_LIMIT"),
			MaxLimit:     v.GetInt("PAGE_MAX_LIMIT"),
		},
		Redis: RedisConfig{
			Addr:           v.GetString("REDIS_ADDR"),
			Password:       v.GetString("REDIS_PASSWORD"),
			DB:             v.GetInt("REDIS_DB"),
			TenantCacheTTL: v.GetDuration("TENANT_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Broker:  v.GetString("KAFKA_BROKER"),
			Topic:   v.GetString("KAFKA_TOPIC"),
			Workers: v.GetInt("KAFKA_WORKERS"),
			Buffer:  v.GetInt("KAFKA_BUFFER"),
		},
		Auth: AuthConfig{
			SigningKey: v.GetString("AUTH_SIGNING_KEY"),
			Mock:       v.GetBool("AUTH_MOCK"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Upstreams: UpstreamConfig{
			AdminURL:      v.GetString("ADMIN_SERVICE_URL"),
			SimulationURL: v.GetString("SIMULATION_SERVICE_URL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, serviceName, defaultPort string) {
	v.SetDefault("SERVICE_NAME", serviceName)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_PORT", defaultPort)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "simulation_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	// 25 per service keeps four services under PostgreSQL's default 100 connections.
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("DB_SLOW_THRESHOLD", 200*time.Millisecond)

	v.SetDefault("PAGE_DEFAULT_LIMIT", 100)
	v.SetDefault("PAGE_MAX_LIMIT", 100)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TENANT_CACHE_TTL", 5*time.Minute)

	v.SetDefault("KAFKA_BROKER", "")
	v.SetDefault("KAFKA_TOPIC", "entity-changes")
	v.SetDefault("KAFKA_WORKERS", 4)
	v.SetDefault("KAFKA_BUFFER", 1000)

	v.SetDefault("AUTH_MOCK", false)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("ADMIN_SERVICE_URL", "http://localhost:8002")
	v.SetDefault("SIMULATION_SERVICE_URL", "http://localhost:8003")
}

func (c *Config) validate() error {
	if c.HTTPPort == "" {
		return errors.New("config: HTTP_PORT must be set")
	}
	if c.Pagination.MaxLimit <= 0 {
		return errors.New("config: PAGE_MAX_LIMIT must be positive")
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return fmt.Errorf("config: PAGE_DEFAULT_LIMIT must be between 1 and %d", c.Pagination.MaxLimit)
	}
	if c.Kafka.Workers <= 0 {
		c.Kafka.Workers = 1
	}
	if c.Kafka.Buffer <= 0 {
		c.Kafka.Buffer = 1
	}
	return nil
}

// ValidateAuth checks the settings of services that authenticate requests.
func (c *Config) ValidateAuth() error {
	if c.Auth.Mock && c.IsProduction() {
		return errors.New("config: AUTH_MOCK must not be true when APP_ENV=production")
	}
	if !c.Auth.Mock && c.Auth.SigningKey == "" {
		return errors.New("config: AUTH_SIGNING_KEY must be set unless AUTH_MOCK=true")
	}
	return nil
}
