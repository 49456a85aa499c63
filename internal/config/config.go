package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port           string
	Environment    string // development, staging, production
	LogLevel       string
	LogFormat      string
	AllowedOrigins string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	RabbitMQURL    string

	ParticipantsFile   string
	StoreCapacityBytes int64
	MaxMessageBytes    int64
	RecentReplayLimit  int
	SelfDestructBlock  time.Duration

	EscalationTimeout time.Duration
	EscalationWorkers int
	PingText          string

	TelegramBotToken        string
	TelegramAPIURL          string
	TelegramProxy           string
	TelegramProxyStatusFile string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	SessionTTL         time.Duration
	SessionCleanupCron string

	RateLimitRPS   float64
	RateLimitBurst int

	OpenAPIValidation bool
	OpenAPISpecPath   string
}

// Load reads configuration from the environment, after loading .env when
// present, and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var errs []error
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),

		ParticipantsFile: getEnv("PARTICIPANTS_FILE", "participants.yaml"),
		PingText:         getEnv("PING_TEXT", "dont forget to study your lessons"),

		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:          getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramProxy:           getEnv("TELEGRAM_PROXY", ""),
		TelegramProxyStatusFile: getEnv("TELEGRAM_PROXY_STATUS_FILE", "/dev/shm/tg_proxy_status"),

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", ""),

		SessionCleanupCron: getEnv("SESSION_CLEANUP_CRON", "@hourly"),
		OpenAPISpecPath:    getEnv("OPENAPI_SPEC_PATH", "artifacts/openapi.yaml"),
	}

	cfg.StoreCapacityBytes = getBytes("STORE_CAPACITY_BYTES", "500MiB", &errs)
	cfg.MaxMessageBytes = getBytes("MAX_MESSAGE_BYTES", "1MiB", &errs)
	cfg.RecentReplayLimit = getInt("RECENT_REPLAY_LIMIT", 20, &errs)
	cfg.SelfDestructBlock = getDuration("SELF_DESTRUCT_BLOCK", 5*time.Minute, &errs)
	cfg.EscalationTimeout = getDuration("ESCALATION_TIMEOUT", 10*time.Second, &errs)
	cfg.EscalationWorkers = getInt("ESCALATION_WORKERS", 16, &errs)
	cfg.SessionTTL = getDuration("SESSION_TTL", 24*time.Hour, &errs)
	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 10, &errs)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 20, &errs)
	cfg.OpenAPIValidation = getBool("OPENAPI_VALIDATION", false, &errs)

	if cfg.DatabaseURL == "" && cfg.DatabaseDriver == DriverSQLite {
		cfg.DatabaseURL = "relay.db"
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must be set")
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.MaxMessageBytes <= 0 {
		return errors.New("MAX_MESSAGE_BYTES must be positive")
	}
	// A single message must always fit, so the newest message is never evicted.
	if c.StoreCapacityBytes < c.MaxMessageBytes {
		return fmt.Errorf("STORE_CAPACITY_BYTES (%d) must be at least MAX_MESSAGE_BYTES (%d)",
			c.StoreCapacityBytes, c.MaxMessageBytes)
	}
	if c.RecentReplayLimit <= 0 {
		return errors.New("RECENT_REPLAY_LIMIT must be positive")
	}
	if c.SelfDestructBlock <= 0 || c.EscalationTimeout <= 0 || c.SessionTTL <= 0 {
		return errors.New("SELF_DESTRUCT_BLOCK, ESCALATION_TIMEOUT and SESSION_TTL must be positive")
	}
	if c.EscalationWorkers <= 0 {
		return errors.New("ESCALATION_WORKERS must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	if c.IsProduction() {
		if c.DatabaseDriver == DriverMemory {
			return errors.New("the memory database driver cannot be used in production")
		}
		for _, origin := range c.Origins() {
			if origin == "*" || !strings.HasPrefix(origin, "https://") {
				return fmt.Errorf("ALLOWED_ORIGINS must list https origins in production (got %q)", origin)
			}
		}
		if c.PushEnabled() && c.VAPIDSubscriber == "" {
			return errors.New("VAPID_SUBSCRIBER must be set when web push is enabled in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

// Origins splits ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBytes accepts plain byte counts and humanized sizes such as "500MiB".
func getBytes(key, defaultValue string, errs *[]error) int64 {
	raw := getEnv(key, defaultValue)
	n, err := humanize.ParseBytes(raw)
	if err != nil || n > 1<<62 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q", key, raw))
		return 0
	}
	return int64(n)
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return f
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return defaultValue
	}
	return b
}
