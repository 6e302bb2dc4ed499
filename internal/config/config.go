package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	MongoURI         string
	MongoDBName      string
	MongoAppName     string
	MongoMaxPoolSize int
	MongoMinPoolSize int
	ValidateProducts bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers     []string
	KafkaOrdersTopic string
	KafkaGroupID     string

	JWTSecret string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(getEnvInt("MAX_BODY_BYTES", 1<<20)), // 1MB
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "shopease"),
		MongoAppName:       getEnv("MONGO_APP_NAME", "cart-service"),
		MongoMaxPoolSize:   getEnvInt("MONGO_MAX_POOL_SIZE", 50),
		MongoMinPoolSize:   getEnvInt("MONGO_MIN_POOL_SIZE", 5),
		ValidateProducts:   getEnvBool("VALIDATE_PRODUCTS", true),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		CacheTTL:           getEnvDuration("CACHE_TTL", 15*time.Minute),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaOrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "order-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "cart-service"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	if cfg.MongoMaxPoolSize < 1 || cfg.MongoMinPoolSize < 0 {
		return nil, errors.New("MONGO_MAX_POOL_SIZE must be positive and MONGO_MIN_POOL_SIZE not negative")
	}
	if cfg.RequestTimeout < 0 {
		return nil, errors.New("REQUEST_TIMEOUT must not be negative")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
