package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// API configuration
	API APIConfig

	// Forecasting configuration
	Forecast ForecastConfig

	// Webhook delivery configuration
	Webhook WebhookConfig
}

// APIConfig holds HTTP server and identity settings
type APIConfig struct {
	Port int
	// JWTSecret verifies bearer tokens. When empty the X-Tenant-ID header is trusted (development only).
	JWTSecret string
}

// ForecastConfig holds training, model storage and caching parameters
type ForecastConfig struct {
	ModelDir string

	// Worker pools
	TrainingWorkers   int
	PredictionWorkers int

	// Training
	MinTrainingRows int
	GBMEstimators   int
	GBMLearningRate float64
	GBMMaxDepth     int
	GBMSeed         int64

	// Caching
	PredictionCacheBackend string // "memory" or "redis"
	TopProductsTTL         time.Duration
	CacheSweepInterval     time.Duration
}

// WebhookConfig holds training notification delivery settings
type WebhookConfig struct {
	Timeout time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "sales_forecast"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "forecast"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "forecast123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		API: APIConfig{
			Port:      getEnvInt("API_PORT", 8080),
			JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		},

		Forecast: ForecastConfig{
			ModelDir: getEnvOrDefault("MODEL_DIR", "models"),

			TrainingWorkers:   getEnvInt("TRAINING_WORKERS", 2),
			PredictionWorkers: getEnvInt("PREDICTION_WORKERS", 8),

			MinTrainingRows: getEnvInt("MIN_TRAINING_ROWS", 10),
			GBMEstimators:   getEnvInt("GBM_ESTIMATORS", 100),
			GBMLearningRate: getEnvFloat("GBM_LEARNING_RATE", 0.1),
			GBMMaxDepth:     getEnvInt("GBM_MAX_DEPTH", 3),
			GBMSeed:         int64(getEnvInt("GBM_SEED", 42)),

			PredictionCacheBackend: getEnvOrDefault("PREDICTION_CACHE_BACKEND", "memory"),
			TopProductsTTL:         getEnvDuration("TOP_PRODUCTS_TTL", time.Hour),
			CacheSweepInterval:     getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		},

		Webhook: WebhookConfig{
			Timeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration parses a Go duration string ("90s", "1h") or returns default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
