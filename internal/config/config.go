package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort        int
	AllowedOrigins []string
	// Postgres configuration. DatabaseURL wins over the discrete fields when set.
	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	AutoMigrate      bool

	// Gateway configuration
	AccountNumber  string
	AccountName    string
	BankCode       string
	QRBaseURL      string
	BanksURL       string
	WebhookAPIKey  string
	GatewayTimeout time.Duration

	// Auth configuration
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	// Payment configuration
	DefaultCurrency     string
	IntentDefaultExpiry time.Duration
	IntentMaxExpiry     time.Duration

	// Scheduler configuration. A zero interval disables the in-process scheduler.
	AutoRenewInterval    time.Duration
	AutoRenewLimit       int
	AutoRenewConcurrency int

	// Redis configuration. Rate limiting is disabled when RedisAddr is empty.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	RequestLogBuffer int

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string

	// Notification configuration
	TelegramBotToken string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:    getEnvAsBool("DEVELOPMENT", false),
		APIPort:        getEnvAsInt("API_PORT", 8080),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "paygate"),
		AutoMigrate:      getEnvAsBool("AUTO_MIGRATE", true),

		AccountNumber:  getEnv("SEPAY_ACCOUNT_NUMBER", ""),
		AccountName:    getEnv("SEPAY_ACCOUNT_NAME", ""),
		BankCode:       getEnv("SEPAY_BANK_CODE", ""),
		QRBaseURL:      getEnv("SEPAY_QR_BASE_URL", "https://qr.sepay.vn"),
		BanksURL:       getEnv("SEPAY_BANKS_URL", "https://qr.sepay.vn/banks.json"),
		WebhookAPIKey:  getEnv("SEPAY_WEBHOOK_API_KEY", ""),
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTAccessTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 30*time.Minute),
		JWTRefreshTTL: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),

		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "VND"),
		IntentDefaultExpiry: getEnvAsDuration("INTENT_DEFAULT_EXPIRY", 60*time.Minute),
		IntentMaxExpiry:     getEnvAsDuration("INTENT_MAX_EXPIRY", 24*time.Hour),

		AutoRenewInterval:    getEnvAsDuration("AUTORENEW_INTERVAL", 0),
		AutoRenewLimit:       getEnvAsInt("AUTORENEW_LIMIT", 100),
		AutoRenewConcurrency: getEnvAsInt("AUTORENEW_CONCURRENCY", 4),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),

		RequestLogBuffer: getEnvAsInt("REQUEST_LOG_BUFFER", 1024),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
	}

	return cfg, nil
}

// DSN returns the connection string for the configured database.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

// ValidateDatabase checks the settings every command needs.
func (c *Config) ValidateDatabase() error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	return nil
}

// Validate checks that all fields required to serve payments are properly set
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.AccountNumber == "" {
		return fmt.Errorf("SEPAY_ACCOUNT_NUMBER is required")
	}
	if c.BankCode == "" {
		return fmt.Errorf("SEPAY_BANK_CODE is required")
	}
	if c.QRBaseURL == "" {
		return fmt.Errorf("SEPAY_QR_BASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.IntentDefaultExpiry <= 0 || c.IntentMaxExpiry < c.IntentDefaultExpiry {
		return fmt.Errorf("INTENT_DEFAULT_EXPIRY must be positive and not exceed INTENT_MAX_EXPIRY")
	}
	if c.DefaultCurrency != "VND" && c.DefaultCurrency != "USD" {
		return fmt.Errorf("DEFAULT_CURRENCY must be VND or USD")
	}
	if c.AutoRenewConcurrency <= 0 {
		return fmt.Errorf("AUTORENEW_CONCURRENCY must be positive")
	}
	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(name string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists || valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
