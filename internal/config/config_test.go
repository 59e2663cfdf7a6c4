package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		if len(e) > len(envPrefix) && e[:len(envPrefix)] == envPrefix {
			key := e[:indexByte(e, '=')]
			os.Unsetenv(key)
			t.Cleanup(func() { os.Unsetenv(key) })
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func TestLoadRequiresLocationSettings(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_DATABASE_URL")
	assert.Contains(t, err.Error(), "INGEST_SOURCE_LOCATION")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("INGEST_DATABASE_URL", "postgres://localhost/fileingest")
	os.Setenv("INGEST_SOURCE_LOCATION", "/data/source")
	os.Setenv("INGEST_ARCHIVE_LOCATION", "/data/archive")
	os.Setenv("INGEST_DUPLICATE_LOCATION", "/data/duplicates")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, PlatformDefault, cfg.Platform)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, ":8090", cfg.AdminListenAddr)
	assert.False(t, cfg.OTELExporterEnabled)
	assert.Equal(t, 0, cfg.WorkerCount)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("INGEST_DATABASE_URL", "postgres://localhost/fileingest")
	os.Setenv("INGEST_SOURCE_LOCATION", "/data/source")
	os.Setenv("INGEST_ARCHIVE_LOCATION", "/data/archive")
	os.Setenv("INGEST_DUPLICATE_LOCATION", "/data/duplicates")
	os.Setenv("INGEST_BATCH_SIZE", "500")
	os.Setenv("INGEST_FILE_HELPER_PLATFORM", "AWS")
	os.Setenv("INGEST_SQL_SERVER_BULKCOPY_FLAG", "true")
	os.Setenv("INGEST_WORKER_COUNT", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, PlatformAWS, cfg.Platform)
	assert.True(t, cfg.SQLServerBulkCopy)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestLoadFallsBackOnUnparsableInt(t *testing.T) {
	clearEnv(t)
	os.Setenv("INGEST_DATABASE_URL", "postgres://localhost/fileingest")
	os.Setenv("INGEST_SOURCE_LOCATION", "/data/source")
	os.Setenv("INGEST_ARCHIVE_LOCATION", "/data/archive")
	os.Setenv("INGEST_DUPLICATE_LOCATION", "/data/duplicates")
	os.Setenv("INGEST_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.BatchSize)
}
