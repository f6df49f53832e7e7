package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// databaseURLAliases lists environment variables that may carry the Postgres
// connection string, in priority order. First non-empty wins.
var databaseURLAliases = []string{
	"CHECKOUT_DATABASE_URL",
	"POSTGRES_URL",
	"DATABASE_URL",
	"POSTGRES_PRISMA_URL",
	"POSTGRES_URL_NON_POOLING",
	"SUPABASE_DB_URL",
}

// Config holds application configuration values.
type Config struct {
	AppPort      string
	DatabaseURL  string
	JWTSecret    string
	TokenExpires time.Duration
	OpsKeyHash   string

	StripeWebhookSecret string

	PayPalBaseURL      string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalWebhookID    string

	GHLBaseURL    string
	GHLAPIKey     string
	GHLLocationID string

	TelegramBotToken  string
	TelegramAdminChat string

	SessionAbandonAfter time.Duration
	MonitorInterval     time.Duration
	MonitorErrorWindow  time.Duration
}

// Load reads environment variables and returns a populated Config.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:      getEnv("APP_PORT", "8080"),
		DatabaseURL:  resolveDatabaseURL(),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		TokenExpires: getEnvDuration("JWT_TTL_HOURS", 24) * time.Hour,
		OpsKeyHash:   getEnv("OPS_KEY_HASH", ""),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		PayPalBaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.paypal.com"),
		PayPalClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
		PayPalWebhookID:    getEnv("PAYPAL_WEBHOOK_ID", ""),

		GHLBaseURL:    getEnv("GHL_BASE_URL", "https://rest.gohighlevel.com/v1"),
		GHLAPIKey:     getEnv("GHL_API_KEY", ""),
		GHLLocationID: getEnv("GHL_LOCATION_ID", ""),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChat: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),

		SessionAbandonAfter: getEnvDuration("SESSION_ABANDON_AFTER_MINUTES", 60) * time.Minute,
		MonitorInterval:     getEnvDuration("MONITOR_INTERVAL_MINUTES", 15) * time.Minute,
		MonitorErrorWindow:  getEnvDuration("MONITOR_ERROR_WINDOW_HOURS", 24) * time.Hour,
	}

	if cfg.AppPort == "" {
		log.Fatal("APP_PORT must be set")
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	return cfg
}

// resolveDatabaseURL walks the alias chain and returns the first non-empty
// value. An empty result means the service runs without persistence.
func resolveDatabaseURL() string {
	for _, key := range databaseURLAliases {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback int) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(fallback)
}
