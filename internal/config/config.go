package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewReconcileConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DefaultOrgName string
	SnowflakeNode  int64

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
	DBAutoMigrate     bool
	DBSlowQuery       time.Duration

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	Ledger LedgerConfig
}

// LedgerConfig tunes balance mutation and recalculation.
type LedgerConfig struct {
	LockTTL             time.Duration
	LockWaitTimeout     time.Duration
	PostRetryAttempts   int
	RecalcParallelism   int
	CodeGenerateRetries int
}

// DefaultLedgerConfig returns the values used when the environment is silent.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		LockTTL:             30 * time.Second,
		LockWaitTimeout:     10 * time.Second,
		PostRetryAttempts:   3,
		RecalcParallelism:   4,
		CodeGenerateRetries: 5,
	}
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	defaults := DefaultLedgerConfig()

	cfg := Config{
		AppName:        getenv("APP_SERVICE", "cariledger"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:   strings.TrimSpace(getenv("OTLP_ENDPOINT", "")),
		DefaultOrgName: strings.TrimSpace(getenv("DEFAULT_ORG_NAME", "Main")),
		SnowflakeNode:  getenvInt64("SNOWFLAKE_NODE", 1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),

		RedisAddress:  strings.TrimSpace(getenv("REDIS_ADDRESS", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Ledger: LedgerConfig{
			LockTTL:             getenvDuration("LEDGER_LOCK_TTL", defaults.LockTTL),
			LockWaitTimeout:     getenvDuration("LEDGER_LOCK_WAIT_TIMEOUT", defaults.LockWaitTimeout),
			PostRetryAttempts:   getenvInt("LEDGER_POST_RETRY_ATTEMPTS", defaults.PostRetryAttempts),
			RecalcParallelism:   getenvInt("LEDGER_RECALC_PARALLELISM", defaults.RecalcParallelism),
			CodeGenerateRetries: getenvInt("LEDGER_CODE_RETRIES", defaults.CodeGenerateRetries),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
