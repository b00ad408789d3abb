package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL      string
	HTTPPort         string
	MetricsPort      string
	LogLevel         string
	JWTSecret        string
	RedisURL         string
	KnowledgeData    string
	KnowledgeTimeout time.Duration
	TypingDelay      time.Duration
	SessionTTL       time.Duration
	SeedIfEmpty      bool
	AdminEmail       string
	AdminPassword    string
	AdminName        string
}

var AppConfig Config

var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable is required")

func LoadConfig() error {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		DatabaseURL:      getEnv("DATABASE_URL", "supportbot.db"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "2112"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		KnowledgeData:    getEnv("KNOWLEDGE_DATA", ""),
		KnowledgeTimeout: getEnvAsDuration("KNOWLEDGE_TIMEOUT", 3*time.Second),
		TypingDelay:      getEnvAsDuration("TYPING_DELAY", 800*time.Millisecond),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SeedIfEmpty:      getEnvAsBool("SEED_IF_EMPTY", true),
		AdminEmail:       getEnv("ADMIN_EMAIL", ""),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		AdminName:        getEnv("ADMIN_NAME", "Administrator"),
	}

	if AppConfig.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("3s", "800ms") or a bare number of
// milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms := getEnvAsInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warnf("ignoring invalid duration %s=%q", key, valueStr)
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
