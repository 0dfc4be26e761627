package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string

	LedgerURL  string
	RewardsURL string
	MirrorURL  string

	ClientTimeout   time.Duration
	MaxTaskAttempts int
	RetryBackoff    time.Duration
	RequeueInterval time.Duration
}

// New loads and validates configuration from environment variables.
// The three downstream base URLs are required; timeouts, attempt ceiling
// and backoff have sensible defaults.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:    os.Getenv("VELA_POSTGRES_USER"),
		DBPass:    os.Getenv("VELA_POSTGRES_PASSWORD"),
		DBHost:    os.Getenv("VELA_POSTGRES_HOST"),
		DBPort:    os.Getenv("VELA_POSTGRES_PORT"),
		DBName:    os.Getenv("VELA_POSTGRES_DB"),
		SSLMode:   os.Getenv("VELA_POSTGRES_SSLMODE"),
		RedisHost: os.Getenv("VELA_REDIS_HOST"),
		RedisPort: os.Getenv("VELA_REDIS_PORT"),
		NatsHost:  os.Getenv("VELA_NATS_HOST"),
		NatsPort:  os.Getenv("VELA_NATS_PORT"),
		ApiPort:   getEnvDefault("VELA_API_PORT", "8080"),

		LedgerURL:  os.Getenv("VELA_LEDGER_BASE_URL"),
		RewardsURL: os.Getenv("VELA_REWARDS_BASE_URL"),
		MirrorURL:  os.Getenv("VELA_CAMPAIGN_MIRROR_BASE_URL"),

		ClientTimeout:   getEnvSeconds("VELA_CLIENT_TIMEOUT_SECONDS", 10*time.Second),
		MaxTaskAttempts: getEnvInt("VELA_MAX_TASK_ATTEMPTS", 6),
		RetryBackoff:    getEnvSeconds("VELA_RETRY_BACKOFF_SECONDS", 30*time.Second),
		RequeueInterval: getEnvSeconds("VELA_REQUEUE_INTERVAL_SECONDS", 10*time.Second),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: VELA_POSTGRES_USER/HOST/DB/SSLMODE")
	}
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: VELA_REDIS_HOST/PORT")
	}
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: VELA_NATS_HOST/PORT")
	}
	if cfg.LedgerURL == "" || cfg.RewardsURL == "" || cfg.MirrorURL == "" {
		return nil, fmt.Errorf("missing required env for downstream services: VELA_LEDGER/REWARDS/CAMPAIGN_MIRROR_BASE_URL")
	}
	if cfg.MaxTaskAttempts < 1 {
		return nil, fmt.Errorf("VELA_MAX_TASK_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
