package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		PostgresHost:         "localhost",
		PostgresDB:           "paygate",
		AccountNumber:        "0123456789",
		BankCode:             "MBBank",
		QRBaseURL:            "https://qr.sepay.vn",
		JWTSecret:            "0123456789abcdef0123",
		DefaultCurrency:      "VND",
		IntentDefaultExpiry:  time.Hour,
		IntentMaxExpiry:      24 * time.Hour,
		AutoRenewConcurrency: 4,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.AccountNumber = ""
	assert.EqualError(t, cfg.Validate(), "SEPAY_ACCOUNT_NUMBER is required")

	cfg = validConfig()
	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DefaultCurrency = "EUR"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.IntentMaxExpiry = time.Minute
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("SEPAY_ACCOUNT_NUMBER", "0987654321")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTORENEW_LIMIT", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "0987654321", cfg.AccountNumber)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 100, cfg.AutoRenewLimit)
}

func TestDSN(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresUser = "u"
	cfg.PostgresPassword = "p"
	cfg.PostgresPort = 5433
	assert.Equal(t, "host=localhost user=u password=p dbname=paygate port=5433 sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", cfg.DSN())
}
