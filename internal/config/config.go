package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	TTR      TTRConfig
	Feed     FeedConfig
	Worker   WorkerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines claims verification parameters. Tokens are issued by an
// external provider; this service only verifies them.
type AuthConfig struct {
	JWTSecret string
}

// TTRConfig supplies default thresholds used when the live settings store has
// no value. The settings provider re-reads the store per evaluation, so these
// are fallbacks, not a cache.
type TTRConfig struct {
	WarningHours         float64
	CriticalHours        float64
	DueSoonHours         float64
	NoUpdateAlertMinutes int
}

// FeedConfig sizes the change feed buffers.
type FeedConfig struct {
	HistoryCapacity    int
	SubscriberCapacity int
}

// WorkerConfig controls the TTR alert worker.
type WorkerConfig struct {
	ScanInterval       time.Duration
	LockTimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "fault-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		TTR: TTRConfig{
			WarningHours:         getEnvAsFloat("TTR_WARNING_HOURS", 2),
			CriticalHours:        getEnvAsFloat("TTR_CRITICAL_HOURS", 1),
			DueSoonHours:         getEnvAsFloat("TTR_DUE_SOON_HOURS", 3),
			NoUpdateAlertMinutes: getEnvAsInt("TTR_NO_UPDATE_ALERT_MINUTES", 60),
		},
		Feed: FeedConfig{
			HistoryCapacity:    getEnvAsInt("FEED_HISTORY_CAPACITY", 200),
			SubscriberCapacity: getEnvAsInt("FEED_SUBSCRIBER_CAPACITY", 64),
		},
		Worker: WorkerConfig{
			ScanInterval:       time.Duration(getEnvAsInt("WORKER_SCAN_INTERVAL_SECONDS", 60)) * time.Second,
			LockTimeoutSeconds: getEnvAsInt("TICKET_LOCK_TIMEOUT_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTimeout returns the per-ticket lock acquisition timeout.
func (w WorkerConfig) LockTimeout() time.Duration {
	if w.LockTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.LockTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
