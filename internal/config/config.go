package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/referral/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// APIKeys maps a raw key to the role it authenticates as.
	APIKeys map[string]string

	SnowflakeNode int64

	Referral     ReferralConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig

	TrackRateLimitPerMinute int
	StatsCacheTTL           time.Duration
	TiersConfigPath         string
}

type ReferralConfig struct {
	ProductContext           string
	TxTimeout                time.Duration
	RewardValidity           time.Duration
	SignupDeadline           time.Duration
	ReferredBonusMinutes     int64
	ReferredBonusCreditCents int64
}

type NotificationConfig struct {
	WebhookURL     string
	WebhookTimeout time.Duration
	WebhookRetries int
	MaxAttempts    int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	EmailTo      string
}

// ObservabilityConfig carries the logging and OTLP export settings.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	SlowQuery     time.Duration
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64

	RemoteWriteURL   string
	RemoteWriteToken string
}

type SchedulerConfig struct {
	Enabled     bool
	ExpireSpec  string
	RetrySpec   string
	PushSpec    string
	BatchSize   int
	EnabledJobs []string
	LockTTL     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "referral"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "referral"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		DBConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", time.Minute),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		APIKeys:           parseAPIKeys(getenv("API_KEYS", "")),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		Referral: ReferralConfig{
			ProductContext:           strings.ToLower(strings.TrimSpace(getenv("PRODUCT_CONTEXT", "default"))),
			TxTimeout:                getenvDuration("TX_TIMEOUT", 5*time.Second),
			RewardValidity:           getenvDuration("REWARD_VALIDITY", 30*24*time.Hour),
			SignupDeadline:           getenvDuration("SIGNUP_DEADLINE", 30*24*time.Hour),
			ReferredBonusMinutes:     getenvInt64("REFERRED_BONUS_MINUTES", 0),
			ReferredBonusCreditCents: getenvInt64("REFERRED_BONUS_CREDIT_CENTS", 0),
		},
		Notification: NotificationConfig{
			WebhookURL:     strings.TrimSpace(getenv("NOTIFY_WEBHOOK_URL", "")),
			WebhookTimeout: getenvDuration("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
			WebhookRetries: int(getenvInt64("NOTIFY_WEBHOOK_RETRIES", 2)),
			MaxAttempts:    int(getenvInt64("NOTIFY_MAX_ATTEMPTS", 10)),
			SMTPHost:       strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:       int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername:   getenv("SMTP_USERNAME", ""),
			SMTPPassword:   getenv("SMTP_PASSWORD", ""),
			SMTPFrom:       getenv("SMTP_FROM", "rewards@localhost"),
			EmailTo:        strings.TrimSpace(getenv("NOTIFY_EMAIL_TO", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			ExpireSpec:  getenv("SCHEDULER_EXPIRE_SPEC", "@every 5m"),
			RetrySpec:   getenv("SCHEDULER_RETRY_SPEC", "@every 1m"),
			PushSpec:    getenv("SCHEDULER_PUSH_METRICS_SPEC", "@every 1m"),
			BatchSize:   int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			EnabledJobs: parseList(getenv("SCHEDULER_JOBS", "")),
			LockTTL:     getenvDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			SlowQuery:     time.Duration(getenvInt64("DB_SLOW_QUERY_MS", 200)) * time.Millisecond,
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),

			RemoteWriteURL:   strings.TrimSpace(getenv("METRICS_REMOTE_WRITE_URL", "")),
			RemoteWriteToken: getenv("METRICS_REMOTE_WRITE_TOKEN", ""),
		},
		TrackRateLimitPerMinute: int(getenvInt64("TRACK_RATE_LIMIT_PER_MINUTE", 120)),
		StatsCacheTTL:           getenvDuration("STATS_CACHE_TTL", 30*time.Second),
		TiersConfigPath:         strings.TrimSpace(getenv("TIERS_CONFIG_PATH", "")),
	}

	return cfg
}

// Database projects the database settings for pkg/db.
func (c Config) Database() db.Config {
	return db.Config{
		Type:            c.DBType,
		Host:            c.DBHost,
		Port:            c.DBPort,
		Name:            c.DBName,
		User:            c.DBUser,
		Password:        c.DBPassword,
		SSLMode:         c.DBSSLMode,
		MaxIdleConns:    c.DBMaxIdleConn,
		MaxOpenConns:    c.DBMaxOpenConn,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("72h") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed >= 0 {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseAPIKeys reads "key:role,key2:role2". A key without a role is treated as an app key.
func parseAPIKeys(raw string) map[string]string {
	keys := map[string]string{}
	for _, entry := range parseList(raw) {
		key, role, found := strings.Cut(entry, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		role = strings.ToLower(strings.TrimSpace(role))
		if !found || role == "" {
			role = "app"
		}
		keys[key] = role
	}
	return keys
}
