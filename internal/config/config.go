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
	ListenAddr  string
	LogLevel    string

	AuthJWTSecret string

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

	RedisAddr     string
	RedisPassword string

	Stripe       StripeConfig
	LemonSqueezy LemonSqueezyConfig
	Checkout     CheckoutConfig
}

// StripeConfig carries the card-subscription provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// LemonSqueezyConfig carries the alternative checkout provider credentials.
type LemonSqueezyConfig struct {
	APIKey        string
	SigningSecret string
	StoreID       string
}

// CheckoutConfig controls checkout session creation and redirect handling.
type CheckoutConfig struct {
	AllowedOrigins []string
	DefaultOrigin  string
	SuccessPath    string
	CancelPath     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "parlo"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "parlo"),
		DBUser:            getenv("DATABASE_USER", "parlo"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		LemonSqueezy: LemonSqueezyConfig{
			APIKey:        strings.TrimSpace(getenv("LEMONSQUEEZY_API_KEY", "")),
			SigningSecret: strings.TrimSpace(getenv("LEMONSQUEEZY_SIGNING_SECRET", "")),
			StoreID:       strings.TrimSpace(getenv("LEMONSQUEEZY_STORE_ID", "")),
		},
		Checkout: CheckoutConfig{
			AllowedOrigins: parseList(getenv("CHECKOUT_ALLOWED_ORIGINS", "")),
			DefaultOrigin:  strings.TrimSpace(getenv("CHECKOUT_DEFAULT_ORIGIN", "https://app.parlo.io")),
			SuccessPath:    getenv("CHECKOUT_SUCCESS_PATH", "/premium/welcome"),
			CancelPath:     getenv("CHECKOUT_CANCEL_PATH", "/premium"),
		},
	}
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
