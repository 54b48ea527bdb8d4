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
	PostgresMaxConns int

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RedisPoolSize  int
	EntityCacheTTL time.Duration

	// Kafka
	KafkaBrokers    []string
	KafkaEventTopic string

	// Auth
	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	JWTTTL           time.Duration
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Catalog
	CursorSecret    string
	DefaultPageSize int
	MaxPageSize     int
	TaxonomyPath    string

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "catalog"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "catalog123"),
		PostgresDB:       getEnv("POSTGRES_DB", "catalog"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMaxConns: getIntEnv("POSTGRES_MAX_CONNS", 25),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		RedisPoolSize:  getIntEnv("REDIS_POOL_SIZE", 20),
		EntityCacheTTL: getDuration("ENTITY_CACHE_TTL", 2*time.Minute),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaEventTopic: getEnv("KAFKA_EVENT_TOPIC", "catalog-events"),

		JWTSecret:        getEnv("JWT_SECRET", "catalog-dev-secret-change-me"),
		JWTIssuer:        getEnv("JWT_ISSUER", "opencatalog"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "catalog-api"),
		JWTTTL:           getDuration("JWT_TTL", time.Hour),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		CursorSecret:    getEnv("CURSOR_SECRET", "catalog-cursor-secret"),
		DefaultPageSize: getIntEnv("DEFAULT_PAGE_SIZE", 100),
		MaxPageSize:     getIntEnv("MAX_PAGE_SIZE", 10000),
		TaxonomyPath:    getEnv("TAXONOMY_PATH", ""),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 100),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 200),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getStringSliceEnv(key string, fallback []string) []string {
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
	return fallback
}
