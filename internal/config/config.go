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
	HTTPAddr    string

	OTLPEndpoint string

	Store     StoreConfig
	Redis     RedisConfig
	Stripe    StripeConfig
	RateLimit RateLimitConfig

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
	SQLitePath        string

	// AdminTokenHash is a bcrypt hash of the bearer token accepted on /api/admin.
	AdminTokenHash string
}

type StoreConfig struct {
	Driver  string
	DataDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// RateLimitConfig throttles the public checkout endpoints per client IP.
// It only takes effect when Redis is configured.
type RateLimitConfig struct {
	Enabled       bool
	CheckoutRate  float64
	CheckoutBurst int
}

const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
	StoreDriverMySQL    = "mysql"
	StoreDriverSQLite   = "sqlite"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	driver := normalizeDriver(getenv("STORE_DRIVER", StoreDriverFile))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "givingdesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Store: StoreConfig{
			Driver:  driver,
			DataDir: getenv("DATA_DIR", "data"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:    getenv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/donate/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:     getenv("CHECKOUT_CANCEL_URL", "http://localhost:3000/donate"),
			Currency:      strings.ToLower(getenv("DONATION_CURRENCY", "usd")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			CheckoutRate:  getenvFloat("CHECKOUT_RATE_PER_SECOND", 0.2),
			CheckoutBurst: getenvInt("CHECKOUT_RATE_BURST", 5),
		},
		DBType:            driver,
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "givingdesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		SQLitePath:        getenv("SQLITE_PATH", "givingdesk.db"),
		AdminTokenHash:    strings.TrimSpace(getenv("ADMIN_TOKEN_HASH", "")),
	}

	return cfg
}

// UsesSQL reports whether donations are persisted through GORM.
func (c Config) UsesSQL() bool {
	return c.Store.Driver != StoreDriverFile
}

func normalizeDriver(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case StoreDriverPostgres, StoreDriverMySQL, StoreDriverSQLite:
		return value
	case "postgresql", "pg":
		return StoreDriverPostgres
	default:
		return StoreDriverFile
	}
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
