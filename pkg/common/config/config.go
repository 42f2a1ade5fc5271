package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers   []string
	SyncKafkaTopic string

	// Sync
	SyncIntervalHours    int
	SyncDeadlineSeconds  int
	SyncSourceNames      []string
	SyncForce            bool
	SyncSourcesConfig    string
	SyncLogRetentionDays int
	SyncStatsCacheTTL    time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "mastersleague"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "mastersleague123"),
		PostgresDB:       getEnv("POSTGRES_DB", "mastersleague"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		SyncKafkaTopic: getEnv("SYNC_KAFKA_TOPIC", ""),

		SyncIntervalHours:    getIntEnv("SYNC_INTERVAL_HOURS", 24),
		SyncDeadlineSeconds:  getIntEnv("SYNC_DEADLINE_SECONDS", 300),
		SyncSourceNames:      getStringSliceEnv("SYNC_SOURCE_NAMES", nil),
		SyncForce:            getBoolEnv("SYNC_FORCE", false),
		SyncSourcesConfig:    getEnv("SYNC_SOURCES_CONFIG", ""),
		SyncLogRetentionDays: getIntEnv("RETENTION_DAYS_SYNC_LOG", 90),
		SyncStatsCacheTTL:    getDuration("SYNC_STATS_CACHE_TTL", 5*time.Minute),
	}
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalHours) * time.Hour
}

func (c *Config) SyncDeadline() time.Duration {
	return time.Duration(c.SyncDeadlineSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
