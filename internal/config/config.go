// Package config loads the pipeline's environment-prefixed settings
// (spec.md §6), grounded on internal/data/conn.go's getEnv helper but
// generalized to a single typed Config value instead of scattered
// getEnv(...) calls at each use site.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Platform selects the storage adapter family (spec.md §6
// FILE_HELPER_PLATFORM).
type Platform string

const (
	PlatformDefault Platform = "default"
	PlatformAWS     Platform = "aws"
	PlatformGCP     Platform = "gcp"
	PlatformAzure   Platform = "azure"
)

// Config is the full set of environment-prefixed settings the pipeline
// reads at startup (spec.md §6). All INGEST_-prefixed.
type Config struct {
	DatabaseURL         string
	SourceLocation      string
	ArchiveLocation     string
	DuplicateLocation   string
	BatchSize           int
	LogLevel            string
	Platform            Platform
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPassword        string
	FromEmail           string
	DataTeamEmail       string
	WebhookURL          string
	SQLServerBulkCopy   bool
	RedisAddr           string
	RedisPassword       string
	AdminListenAddr     string
	AdminJWTSecret      string
	OTELExporterEnabled bool
	WorkerCount         int
}

const envPrefix = "INGEST_"

// Load reads Config from the process environment. Only the database URL and
// the three location settings are required (spec.md §6); everything else has
// a documented default.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SourceLocation:      getEnv("SOURCE_LOCATION", ""),
		ArchiveLocation:     getEnv("ARCHIVE_LOCATION", ""),
		DuplicateLocation:   getEnv("DUPLICATE_LOCATION", ""),
		BatchSize:           getEnvInt("BATCH_SIZE", 10000),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Platform:            Platform(strings.ToLower(getEnv("FILE_HELPER_PLATFORM", string(PlatformDefault)))),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		FromEmail:           getEnv("FROM_EMAIL", ""),
		DataTeamEmail:       getEnv("DATA_TEAM_EMAIL", ""),
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		SQLServerBulkCopy:   getEnvBool("SQL_SERVER_BULKCOPY_FLAG", false),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		AdminListenAddr:     getEnv("ADMIN_LISTEN_ADDR", ":8090"),
		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		OTELExporterEnabled: getEnvBool("OTEL_EXPORTER_ENABLED", false),
		WorkerCount:         getEnvInt("WORKER_COUNT", 0),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, envPrefix+"DATABASE_URL")
	}
	if cfg.SourceLocation == "" {
		missing = append(missing, envPrefix+"SOURCE_LOCATION")
	}
	if cfg.ArchiveLocation == "" {
		missing = append(missing, envPrefix+"ARCHIVE_LOCATION")
	}
	if cfg.DuplicateLocation == "" {
		missing = append(missing, envPrefix+"DUPLICATE_LOCATION")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
