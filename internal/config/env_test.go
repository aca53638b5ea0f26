package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/notesync/models"
)

func TestParseEnv_AllFields(t *testing.T) {
	// Arrange
	envVars := map[string]string{
		"CONFIG": "/path/to/config.json",

		"SYNC_ENABLED":           "true",
		"SYNC_PROVIDER":          "webdav",
		"SYNC_ENDPOINT":          "https://dav.example.com/remote.php/dav",
		"SYNC_USERNAME":          "alice",
		"SYNC_PASSWORD":          "s3cret",
		"SYNC_REMOTE_PATH":       "/kb",
		"SYNC_INTERVAL":          "10m",
		"SYNC_DEBOUNCE_INTERVAL": "3s",
		"SYNC_REQUEST_TIMEOUT":   "30s",
		"SYNC_CONFLICT_POLICY":   "local_wins",
		"SYNC_MAX_FILE_SIZE":     "1048576",
		"SYNC_ATTACHMENTS":       "true",

		"STORAGE_DB_PATH": "/var/lib/notesync/notesync.db",
		"LOG_FILE":        "/var/log/notesync/engine.log",
	}
	setEnvVars(t, envVars)

	// Act
	cfg := &Config{}
	err := parseEnv(cfg)

	// Assert
	require.NoError(t, err)

	assert.Equal(t, "/path/to/config.json", cfg.JSONFilePath)

	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, models.ProviderWebDAV, cfg.Sync.Provider)
	assert.Equal(t, "https://dav.example.com/remote.php/dav", cfg.Sync.Endpoint)
	assert.Equal(t, "alice", cfg.Sync.Username)
	assert.Equal(t, "s3cret", cfg.Sync.Password)
	assert.Equal(t, "/kb", cfg.Sync.RemotePath)
	assert.Equal(t, 10*time.Minute, cfg.Sync.SyncInterval)
	assert.Equal(t, 3*time.Second, cfg.Sync.DebounceInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, models.PolicyLocalWins, cfg.Sync.ConflictPolicy)
	assert.Equal(t, int64(1048576), cfg.Sync.MaxFileSize)
	assert.True(t, cfg.Sync.SyncAttachments)

	assert.Equal(t, "/var/lib/notesync/notesync.db", cfg.Storage.DB.Path)
	assert.Equal(t, "/var/log/notesync/engine.log", cfg.Log.File)
}

func TestParseEnv_PartialFields(t *testing.T) {
	setEnvVars(t, map[string]string{
		"SYNC_ENDPOINT": "https://dav.example.com",
	})

	cfg := &Config{}
	err := parseEnv(cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://dav.example.com", cfg.Sync.Endpoint)
	assert.Empty(t, cfg.Sync.Username)
	assert.Zero(t, cfg.Sync.SyncInterval)
	assert.Empty(t, cfg.Storage.DB.Path)
}

func TestParseEnv_InvalidDuration(t *testing.T) {
	setEnvVars(t, map[string]string{
		"SYNC_INTERVAL": "not-a-duration",
	})

	cfg := &Config{}
	err := parseEnv(cfg)
	require.Error(t, err)
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	clearEnvVars(t)
	for k, v := range vars {
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	known := []string{
		"CONFIG",
		"SYNC_ENABLED", "SYNC_PROVIDER", "SYNC_ENDPOINT", "SYNC_USERNAME",
		"SYNC_PASSWORD", "SYNC_REMOTE_PATH", "SYNC_INTERVAL",
		"SYNC_DEBOUNCE_INTERVAL", "SYNC_REQUEST_TIMEOUT",
		"SYNC_CONFLICT_POLICY", "SYNC_MAX_FILE_SIZE", "SYNC_ATTACHMENTS",
		"STORAGE_DB_PATH", "LOG_FILE",
	}
	for _, k := range known {
		require.NoError(t, os.Unsetenv(k))
	}
}
