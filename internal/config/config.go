package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// Config holds all configuration for the reconciliation engine.
type Config struct {
	// Database
	DatabaseURL string

	// Auth0 guards the operator/admin HTTP surface only; no domain
	// operation depends on it.
	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	CFS       CFSConfig
	ObjectStore ObjectStoreConfig
	Bus       BusConfig
	Options   domain.RecognizedOptions
}

// CFSConfig configures the outbound client to the CFS financial system.
type CFSConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ObjectStoreConfig configures the S3-compatible bucket settlement and
// feedback files are exchanged through.
type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// BusConfig configures the NATS JetStream connection used to publish
// domain events (spec §6).
type BusConfig struct {
	URL    string
	Stream string
}

// Load reads configuration from environment variables, falling back to a
// local .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
		Auth0ClientID: getEnv("AUTH0_CLIENT_ID", ""),
		Port:          getEnv("PORT", "8080"),
		CORSOrigins:   strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:           getEnv("ENV", "development"),
		CFS: CFSConfig{
			BaseURL:      getEnv("CFS_BASE_URL", ""),
			TokenURL:     getEnv("CFS_TOKEN_URL", ""),
			ClientID:     getEnv("CFS_CLIENT_ID", ""),
			ClientSecret: getEnv("CFS_CLIENT_SECRET", ""),
			Timeout:      getEnvDuration("CFS_TIMEOUT", 30*time.Second),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        getEnv("OBJECT_STORE_ENDPOINT", "localhost:9000"),
			Region:          getEnv("OBJECT_STORE_REGION", "us-east-1"),
			AccessKeyID:     getEnv("OBJECT_STORE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("OBJECT_STORE_SECRET_KEY", ""),
			Bucket:          getEnv("OBJECT_STORE_BUCKET", "sub002-settlement"),
			UseSSL:          getEnvBool("OBJECT_STORE_USE_SSL", false),
		},
		Bus: BusConfig{
			URL:    getEnv("NATS_URL", ""),
			Stream: getEnv("NATS_STREAM", "SUB002_EVENTS"),
		},
		Options: domain.RecognizedOptions{
			SkipExceptionForTest:    getEnvBool("SKIP_EXCEPTION_FOR_TEST", false),
			DisableCSVErrorEmail:    getEnvBool("DISABLE_CSV_ERROR_EMAIL", false),
			DisableEJVErrorEmail:    getEnvBool("DISABLE_EJV_ERROR_EMAIL", false),
			DisablePADSuccessEmail:  getEnvBool("DISABLE_PAD_SUCCESS_EMAIL", false),
			AllowLegacyRoutingSlips: getEnvBool("ALLOW_LEGACY_ROUTING_SLIPS", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.CFS.BaseURL == "" {
		return fmt.Errorf("CFS_BASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
