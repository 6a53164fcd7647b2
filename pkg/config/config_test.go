package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"WAF_API_URL", "WAF_POLL_INTERVAL", "WAF_LOG_PAGE_SIZE", "WAF_LIVE_TAIL", "WAF_CONSOLE_CONFIG"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := Load()
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Logs.PageSize)
	assert.True(t, cfg.Logs.LiveTail)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WAF_API_URL", "https://api.minishield.tech/")
	t.Setenv("WAF_POLL_INTERVAL", "2s")
	t.Setenv("WAF_LOG_PAGE_SIZE", "50")
	t.Setenv("WAF_LIVE_TAIL", "false")

	cfg := Load()
	assert.Equal(t, "https://api.minishield.tech", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 50, cfg.Logs.PageSize)
	assert.False(t, cfg.Logs.LiveTail)
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("WAF_POLL_INTERVAL", "soon")
	t.Setenv("WAF_LOG_PAGE_SIZE", "many")

	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 20, cfg.Logs.PageSize)
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("WAF_API_URL", "http://from-env:8080")
	t.Setenv("WAF_LOG_PAGE_SIZE", "30")

	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://from-file:9090/
poll:
  interval: 10s
log:
  level: debug
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-file:9090", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Logs.PageSize)
}

func TestLoadFileFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logs:\n  page_size: 5\n"), 0o600))
	t.Setenv("WAF_CONSOLE_CONFIG", path)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Logs.PageSize)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll: [unclosed"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Poll.Interval = 0
	cfg.Logs.PageSize = 0
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")
	assert.Contains(t, err.Error(), "page size")
	assert.Contains(t, err.Error(), "verbose")
}
