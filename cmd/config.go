package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	HTTPPort string `validate:"required,numeric"`

	Storage    string `validate:"oneof=postgres memory"`
	DBHost     string `validate:"required_if=Storage postgres"`
	DBPort     string `validate:"required_if=Storage postgres"`
	DBUser     string `validate:"required_if=Storage postgres"`
	DBPassword string
	DBName     string `validate:"required_if=Storage postgres"`
	DBSslMode  string

	RedisAddr     string `validate:"required,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	BrokerType     string `validate:"oneof=rabbitmq redis"`
	BrokerURL      string `validate:"required_if=BrokerType rabbitmq"`
	BrokerExchange string `validate:"required_if=BrokerType rabbitmq"`
	OutcomeTopic   string `validate:"required"`

	PublishMaxRetries      uint64        `validate:"gte=0"`
	PublishBreakerFailures uint32        `validate:"gt=0"`
	PublishBreakerTimeout  time.Duration `validate:"gt=0"`

	MaxDistanceKm       float64       `validate:"gt=0"`
	MaxDispatchAttempts int           `validate:"gt=0"`
	DispatchBackoffBase time.Duration `validate:"gt=0"`
	DispatchBackoffMax  time.Duration `validate:"gtefield=DispatchBackoffBase"`
	AgentLocationTTL    time.Duration `validate:"gt=0"`

	AdmissionCapacity       int64         `validate:"gt=0"`
	AdmissionRefill         int64         `validate:"gt=0"`
	GlobalAdmissionCapacity int64         `validate:"gt=0"`
	GlobalAdmissionRefill   int64         `validate:"gt=0"`
	AdmissionInterval       time.Duration `validate:"gte=1ms"`

	DedupWindow time.Duration `validate:"gt=0"`

	IngressShards    int `validate:"gt=0"`
	IngressQueueSize int `validate:"gte=0"`
	PendingBatch     int `validate:"gt=0"`

	DispatchRetrySchedule string `validate:"required"`
	AgentLivenessSchedule string `validate:"required"`
	LivenessBatch         int    `validate:"gt=0"`
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// DSN builds the Postgres connection string.
func (c Config) DSN() string {
	sslMode := c.DBSslMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode,
	)
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from getenv, applying defaults for unset
// variables.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	e := envReader{getenv: getenv}

	config := Config{
		HTTPPort: e.string("HTTP_PORT", "8080"),

		Storage:    e.string("STORAGE", StoragePostgres),
		DBHost:     e.string("DB_HOST", ""),
		DBPort:     e.string("DB_PORT", "5432"),
		DBUser:     e.string("DB_USER", ""),
		DBPassword: e.string("DB_PASSWORD", ""),
		DBName:     e.string("DB_NAME", ""),
		DBSslMode:  e.string("DB_SSLMODE", "disable"),

		RedisAddr:     e.string("REDIS_ADDR", "localhost:6379"),
		RedisPassword: e.string("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),

		BrokerType:     e.string("BROKER_TYPE", "rabbitmq"),
		BrokerURL:      e.string("BROKER_URL", ""),
		BrokerExchange: e.string("BROKER_EXCHANGE", "order-dispatch"),
		OutcomeTopic:   e.string("OUTCOME_TOPIC", "order-events"),

		PublishMaxRetries:      e.uint("PUBLISH_MAX_RETRIES", 5, 64),
		PublishBreakerFailures: uint32(e.uint("PUBLISH_BREAKER_FAILURES", 5, 32)),
		PublishBreakerTimeout:  e.duration("PUBLISH_BREAKER_TIMEOUT", 30*time.Second),

		MaxDistanceKm:       e.float("MAX_DISTANCE_KM", 10),
		MaxDispatchAttempts: e.int("MAX_DISPATCH_ATTEMPTS", 3),
		DispatchBackoffBase: e.duration("DISPATCH_BACKOFF_BASE", 5*time.Second),
		DispatchBackoffMax:  e.duration("DISPATCH_BACKOFF_MAX", 2*time.Minute),
		AgentLocationTTL:    e.duration("AGENT_LOCATION_TTL", 5*time.Minute),

		AdmissionCapacity:       int64(e.int("ADMISSION_CAPACITY", 100)),
		AdmissionRefill:         int64(e.int("ADMISSION_REFILL", 100)),
		GlobalAdmissionCapacity: int64(e.int("GLOBAL_ADMISSION_CAPACITY", 1000)),
		GlobalAdmissionRefill:   int64(e.int("GLOBAL_ADMISSION_REFILL", 1000)),
		AdmissionInterval:       e.duration("ADMISSION_INTERVAL", time.Minute),

		DedupWindow: e.duration("DEDUP_WINDOW", 10*time.Minute),

		IngressShards:    e.int("INGRESS_SHARDS", 16),
		IngressQueueSize: e.int("INGRESS_QUEUE_SIZE", 256),
		PendingBatch:     e.int("PENDING_BATCH", 100),

		DispatchRetrySchedule: e.string("DISPATCH_RETRY_SCHEDULE", "*/5 * * * * *"),
		AgentLivenessSchedule: e.string("AGENT_LIVENESS_SCHEDULE", "*/30 * * * * *"),
		LivenessBatch:         e.int("LIVENESS_BATCH", 500),
	}

	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) string(key, fallback string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

// uint rejects negative and out of range values instead of wrapping them.
func (e *envReader) uint(key string, fallback uint64, bitSize int) uint64 {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, bitSize)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *envReader) float(key string, fallback float64) float64 {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
