package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Worker  WorkerConfig
	Payment PaymentConfig
}

// PaymentConfig points at the recharge gateway.
type PaymentConfig struct {
	BaseURL       string
	WebhookSecret string
}

type LoggerConfig struct {
	Level string
}

// WorkerConfig controls the queue worker pool.
type WorkerConfig struct {
	Concurrency   int
	MaxRetry      int
	QueueBilling  int
	QueueDispute  int
	QueueDefault  int
	DispatchRate  float64
	DispatchBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "shipledger"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "shipledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		Worker: WorkerConfig{
			Concurrency:   getenvInt("WORKER_CONCURRENCY", 4),
			MaxRetry:      getenvInt("WORKER_MAX_RETRY", 5),
			QueueBilling:  getenvInt("WORKER_QUEUE_BILLING", 6),
			QueueDispute:  getenvInt("WORKER_QUEUE_DISPUTE", 3),
			QueueDefault:  getenvInt("WORKER_QUEUE_DEFAULT", 1),
			DispatchRate:  getenvFloat("WORKER_DISPATCH_RATE", 5),
			DispatchBurst: getenvInt("WORKER_DISPATCH_BURST", 10),
		},
		Payment: PaymentConfig{
			BaseURL:       getenv("PAYMENT_GATEWAY_URL", "http://localhost:8090"),
			WebhookSecret: getenv("PAYMENT_WEBHOOK_SECRET", ""),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
