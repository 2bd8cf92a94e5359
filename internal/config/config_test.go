package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/provenance/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.True(t, cfg.RateLimitEnabled)
				assert.Equal(t, 10.0, cfg.RateLimitRequestsPerSec)
				assert.Equal(t, 20, cfg.RateLimitBurst)
				assert.False(t, cfg.CORSEnabled)
				assert.False(t, cfg.AutoAnchor)
				assert.Equal(t, 8, cfg.BatchConcurrency)
				assert.Equal(t, StoreDriverBadger, cfg.StoreDriver)
				assert.Equal(t, "./data", cfg.StorePath)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5, cfg.DBMaxIdleConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "default", cfg.LedgerID)
				assert.Equal(t, "sha256", cfg.HashAlgorithm)
				assert.Equal(t, 10000, cfg.ProofCacheSize)
				assert.Equal(t, KeyWrapNone, cfg.KeyWrapProvider)
				assert.Equal(t, 90*24*time.Hour, cfg.KeyRetention)
				assert.Equal(t, "anchor", cfg.AnchorKeyPurpose)
				assert.Equal(t, "ed25519", cfg.SigningAlgorithm)
				assert.Equal(t, 300*time.Second, cfg.TimestampMaxSkew)
				assert.False(t, cfg.PolicyWatch)
				assert.True(t, cfg.MetricsEnabled)
				assert.Equal(t, "provenance", cfg.MetricsNamespace)
				assert.Equal(t, 8081, cfg.MetricsPort)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom store configuration",
			envVars: map[string]string{
				"STORE_DRIVER":            "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
				"DB_CONN_MAX_LIFETIME":    "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreDriverMySQL, cfg.StoreDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom server configuration",
			envVars: map[string]string{
				"SERVER_PORT":                 "9090",
				"RATE_LIMIT_REQUESTS_PER_SEC": "2.5",
				"CORS_ENABLED":                "true",
				"CORS_ALLOW_ORIGINS":          "https://a.example.com,https://b.example.com",
				"AUTO_ANCHOR":                 "true",
				"BATCH_CONCURRENCY":           "4",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.ServerPort)
				assert.Equal(t, 2.5, cfg.RateLimitRequestsPerSec)
				assert.True(t, cfg.CORSEnabled)
				assert.Equal(t, "https://a.example.com,https://b.example.com", cfg.CORSAllowOrigins)
				assert.True(t, cfg.AutoAnchor)
				assert.Equal(t, 4, cfg.BatchConcurrency)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom key configuration",
			envVars: map[string]string{
				"KEY_WRAP_PROVIDER":  "aead",
				"KEY_WRAP_KEY":       "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
				"KEY_RETENTION_DAYS": "7",
				"SIGNING_ALGORITHM":  "ecdsa-p256",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, KeyWrapAEAD, cfg.KeyWrapProvider)
				assert.Equal(t, 7*24*time.Hour, cfg.KeyRetention)
				assert.Equal(t, "ecdsa-p256", cfg.SigningAlgorithm)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "load custom policy configuration",
			envVars: map[string]string{
				"POLICY_DIR":                 "/etc/provenance/policies",
				"POLICY_WATCH":               "true",
				"TIMESTAMP_MAX_SKEW_SECONDS": "30",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/etc/provenance/policies", cfg.PolicyDir)
				assert.True(t, cfg.PolicyWatch)
				assert.Equal(t, 30*time.Second, cfg.TimestampMaxSkew)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			// Load configuration
			cfg := Load()

			// Validate
			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		os.Clearenv()
		return Load()
	}

	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "unknown store driver", mutate: func(cfg *Config) { cfg.StoreDriver = "cassandra" }},
		{name: "unsupported hash algorithm", mutate: func(cfg *Config) { cfg.HashAlgorithm = "md5" }},
		{name: "kms without uri", mutate: func(cfg *Config) { cfg.KeyWrapProvider = KeyWrapKMS }},
		{name: "aead without key", mutate: func(cfg *Config) { cfg.KeyWrapProvider = KeyWrapAEAD }},
		{name: "short aead key", mutate: func(cfg *Config) {
			cfg.KeyWrapProvider = KeyWrapAEAD
			cfg.KeyWrapKey = "AAAA"
		}},
		{name: "invalid ledger id", mutate: func(cfg *Config) { cfg.LedgerID = "../escape" }},
		{name: "unknown signing algorithm", mutate: func(cfg *Config) { cfg.SigningAlgorithm = "rsa" }},
		{name: "server port out of range", mutate: func(cfg *Config) { cfg.ServerPort = 70000 }},
		{name: "cors without origins", mutate: func(cfg *Config) { cfg.CORSEnabled = true }},
		{name: "zero rate limit burst", mutate: func(cfg *Config) { cfg.RateLimitBurst = 0 }},
		{name: "zero batch concurrency", mutate: func(cfg *Config) { cfg.BatchConcurrency = 0 }},
		{name: "postgres without dsn", mutate: func(cfg *Config) {
			cfg.StoreDriver = StoreDriverPostgres
			cfg.DBConnectionString = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestConfig_GetGinMode(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	assert.Equal(t, "debug", cfg.GetGinMode())

	cfg.LogLevel = "warn"
	assert.Equal(t, "release", cfg.GetGinMode())
}
