package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUserConfigDefaults(t *testing.T) {
	userConfig, err := loadUserConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Empty(t, userConfig.WatchDirectory)
	assert.Equal(t, "Books", userConfig.DestinationDirectory)
	assert.Equal(t, 1, userConfig.DebounceSeconds)
	assert.Equal(t, 2, userConfig.PDFWorkers)
}

func TestLoadUserConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "watch_directory: /dropbox\ngoogle_books_api_key: secret\ndebounce_seconds: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	userConfig, err := loadUserConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dropbox", userConfig.WatchDirectory)
	assert.Equal(t, "secret", userConfig.GoogleBooksAPIKey)
	assert.Equal(t, 3, userConfig.DebounceSeconds)
	// Unset keys keep their defaults.
	assert.Equal(t, "Books", userConfig.DestinationDirectory)
}

func TestLoadUserConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch_directory: /dropbox\n"), 0644))

	t.Setenv("BOOKDROP_WATCH_DIRECTORY", "/elsewhere")

	userConfig, err := loadUserConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", userConfig.WatchDirectory)
}

func TestNewAppliesUserConfig(t *testing.T) {
	dir := t.TempDir()
	contents := "watch_directory: /dropbox\ndebounce_seconds: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0644))

	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("CONFIG_DIRECTORY", dir)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "/dropbox", cfg.WatchDirectory)
	assert.Equal(t, "Books", cfg.DestinationDirName)
	assert.Equal(t, 2*time.Second, cfg.DebounceInterval)
	assert.Equal(t, 3690, cfg.ServerPort)
}
