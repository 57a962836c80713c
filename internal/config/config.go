// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// BrowserMode controls the optional directory-index rendering path.
type BrowserMode string

const (
	BrowserDisabled BrowserMode = "disabled"
	BrowserEnabled  BrowserMode = "enabled"
	BrowserList     BrowserMode = "list"
)

// Config holds all server configuration.
type Config struct {
	// Server
	Port int

	// Logging
	LogLevel  string
	LogFormat string

	// Database (dialect-specific; the VFS only needs a *sql.DB)
	DatabaseURL string
	TableName   string

	// WebDAV
	Browser BrowserMode

	// Basic auth (optional — both empty disables the gate)
	Username string
	Password string

	// Optional admin JSON API
	AdminEnabled      bool
	AdminSecret       string
	AdminPasswordHash string // bcrypt hash; empty disables POST /admin/v1/token

	// Optional S3-backed blob storage
	BlobBackend string // "inline" (default) or "s3"
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        envInt("PORT", 3000),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DatabaseURL: envOr("DATABASE_URL", ""),
		TableName:   envOr("TABLE_NAME", "filesystem"),
		Browser:     BrowserMode(envOr("BROWSER", string(BrowserDisabled))),
		Username:    envOr("USERNAME", ""),
		Password:    envOr("PASSWORD", ""),

		AdminEnabled:      envBool("ADMIN_API_ENABLED", false),
		AdminSecret:       envOr("ADMIN_API_SECRET", ""),
		AdminPasswordHash: envOr("ADMIN_API_PASSWORD_HASH", ""),

		BlobBackend: envOr("BLOB_BACKEND", "inline"),
		S3Endpoint:  envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:    envOr("S3_BUCKET", "tablefs"),
		S3AccessKey: envOr("S3_ACCESS_KEY", ""),
		S3SecretKey: envOr("S3_SECRET_KEY", ""),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3UseSSL:    envBool("S3_USE_SSL", false),
	}

	switch cfg.Browser {
	case BrowserDisabled, BrowserEnabled, BrowserList:
	default:
		cfg.Browser = BrowserDisabled
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
