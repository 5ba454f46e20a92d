package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the relief desk service
type Config struct {
	// Server configuration
	Port           string
	AllowedOrigins []string
	RateLimit      int
	MaxUploadBytes int64

	// Backend configuration
	BackendURL     string
	BackendTimeout time.Duration
	BackendRPS     int

	// Refresh and location
	RefreshInterval    time.Duration
	GeolocationTimeout time.Duration

	// Image preparation; 0 forwards images untouched
	MaxImageDimension int

	// RabbitMQ; an empty URL disables publishing
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel string
}

// Load reads a .env file when present, then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to read .env file")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"*"}),
		RateLimit:      getIntEnv("RATE_LIMIT_PER_MINUTE", 100),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 32<<20)),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendTimeout: getDurationEnv("BACKEND_TIMEOUT", 30*time.Second),
		BackendRPS:     getIntEnv("BACKEND_RPS", 20),

		RefreshInterval:    getDurationEnv("REFRESH_INTERVAL", 0),
		GeolocationTimeout: getDurationEnv("GEOLOCATION_TIMEOUT", 8*time.Second),

		MaxImageDimension: getIntEnv("MAX_IMAGE_DIMENSION", 0),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "relief-desk"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "posts.changed"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Warnf("Invalid duration for %s: %q, using %s", key, value, defaultValue)
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warnf("Invalid integer for %s: %q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
