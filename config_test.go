package hxcommunity

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"HX_SHEET_ID", "HX_SCRIPT_URL", "HX_UPLOAD_URL", "HX_AI_URL", "HX_AI_API_KEY", "HX_AI_MODEL",
		"HX_ENCRYPTION_KEY", "HX_CACHE_VERSION", "HX_APP_ORIGIN", "HX_PUSH_SECRET", "HX_POLL_INTERVAL", "HX_HTTP_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("HX_SHEET_ID", "sheet-123")
	t.Setenv("HX_CACHE_VERSION", "v7")
	t.Setenv("HX_POLL_INTERVAL", "250ms")
	t.Setenv("HX_AI_API_KEY", "k")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", cfg.SheetID)
	assert.Equal(t, "v7", cfg.CacheVersion)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "k", cfg.AIAPIKey)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/sheet-123/gviz/tq", cfg.SheetURL())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("HX_POLL_INTERVAL", "not-a-duration")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"sheet":   func(c *Config) { c.SheetID = "" },
		"script":  func(c *Config) { c.ScriptURL = "" },
		"version": func(c *Config) { c.CacheVersion = "" },
		"poll":    func(c *Config) { c.PollInterval = 0 },
		"timeout": func(c *Config) { c.HTTPTimeout = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
