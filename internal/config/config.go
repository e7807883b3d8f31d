package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Roles    RolesConfig
	Worker   WorkerConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	RoleLogFilePath    string
	CorsAllowedOrigins string
	JwtSecret          string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
	// SqlitePath is used when Connection is empty (local development).
	SqlitePath string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
	AlertTo    string
}

type GatewayConfig struct {
	ServerKey    string
	IsProduction bool
	TimeZone     string
	MaxEventAge  time.Duration
	FinishURL    string
}

type BillingConfig struct {
	GracePeriodDays int
	PendingTimeout  time.Duration
	TierCacheTTL    time.Duration
}

type RolesConfig struct {
	DiscordBaseURL  string
	DiscordBotToken string
	CallTimeout     time.Duration
	MaxTries        int
	MaxElapsed      time.Duration
	LockTTL         time.Duration
}

type WorkerConfig struct {
	// Dispatcher is one of "inline", "channel" or "nats".
	Dispatcher      string
	InlineTimeout   time.Duration
	Topic           string
	Durable         string
	MaxDeliver      int
	RelayInterval   time.Duration
	RelayStaleAfter time.Duration
	RelayMaxResends int
}

type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			RoleLogFilePath:    getEnv("ROLE_LOG_FILE_PATH", "logs/roles.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			SqlitePath: getEnv("SQLITE_PATH", "memberpass.db"),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "MemberPass"),
			AlertTo:    getEnv("OPS_ALERT_EMAIL", ""),
		},
		Gateway: GatewayConfig{
			ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
			IsProduction: getEnvAsBool("MIDTRANS_IS_PRODUCTION", false),
			TimeZone:     getEnv("MIDTRANS_TIMEZONE", "Asia/Jakarta"),
			MaxEventAge:  getEnvAsDuration("WEBHOOK_MAX_AGE", 24*time.Hour),
			FinishURL:    getEnv("CHECKOUT_FINISH_URL", ""),
		},
		Billing: BillingConfig{
			GracePeriodDays: getEnvAsInt("GRACE_PERIOD_DAYS", 7),
			PendingTimeout:  getEnvAsDuration("PENDING_TIMEOUT", time.Hour),
			TierCacheTTL:    getEnvAsDuration("TIER_CACHE_TTL", 10*time.Minute),
		},
		Roles: RolesConfig{
			DiscordBaseURL:  getEnv("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
			DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),
			CallTimeout:     getEnvAsDuration("ROLE_CALL_TIMEOUT", 3*time.Second),
			MaxTries:        getEnvAsInt("ROLE_MAX_TRIES", 4),
			MaxElapsed:      getEnvAsDuration("ROLE_MAX_ELAPSED", 8*time.Second),
			LockTTL:         getEnvAsDuration("ROLE_LOCK_TTL", 30*time.Second),
		},
		Worker: WorkerConfig{
			Dispatcher:      getEnv("ROLE_DISPATCHER", "channel"),
			InlineTimeout:   getEnvAsDuration("ROLE_INLINE_TIMEOUT", 4*time.Second),
			Topic:           getEnv("ROLE_COMMAND_TOPIC", "ROLE_COMMANDS"),
			Durable:         getEnv("ROLE_CONSUMER_DURABLE", "role-worker"),
			MaxDeliver:      getEnvAsInt("ROLE_MAX_DELIVER", 5),
			RelayInterval:   getEnvAsDuration("OUTBOX_RELAY_INTERVAL", 30*time.Second),
			RelayStaleAfter: getEnvAsDuration("OUTBOX_RELAY_STALE_AFTER", 2*time.Minute),
			RelayMaxResends: getEnvAsInt("OUTBOX_RELAY_MAX_RESENDS", 5),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "memberpass-be"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s", "2m") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
