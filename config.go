package hxcommunity

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Default endpoints of the hosted community backend.
const (
	DefaultSheetID       = "1cQyIHRYMCwo_PMMW6gHm3Uul4e79oi7Z8uMra5-GQuI"
	DefaultScriptURL     = "https://script.google.com/macros/s/AKfycbw7r4-_Y2k-rh_5Z_vaLNMYxPQ9erwvK8PohDyDUNiux0PVHD-UVMxYbEaGyYFnZFmcCQ/exec"
	DefaultUploadURL     = "https://corsproxy.io/?https://catbox.moe/user/api.php"
	DefaultAIURL         = "https://api.longcat.ai/v1/chat"
	DefaultAIModel       = "gpt-4o-mini"
	DefaultEncryptionKey = "hx-community-secret-key-2024"
	DefaultCacheVersion  = "v1"
	DefaultAppOrigin     = "http://localhost:5173"
	DefaultPollInterval  = 5 * time.Second
	DefaultTimeout       = 30 * time.Second
)

// Config holds endpoint and local-state settings.
// Environment variables are parsed with the HX_ prefix (HX_SHEET_ID, ...).
type Config struct {
	SheetID       string        `envconfig:"SHEET_ID" default:"1cQyIHRYMCwo_PMMW6gHm3Uul4e79oi7Z8uMra5-GQuI"`
	ScriptURL     string        `envconfig:"SCRIPT_URL" default:"https://script.google.com/macros/s/AKfycbw7r4-_Y2k-rh_5Z_vaLNMYxPQ9erwvK8PohDyDUNiux0PVHD-UVMxYbEaGyYFnZFmcCQ/exec"`
	UploadURL     string        `envconfig:"UPLOAD_URL" default:"https://corsproxy.io/?https://catbox.moe/user/api.php"`
	AIURL         string        `envconfig:"AI_URL" default:"https://api.longcat.ai/v1/chat"`
	AIAPIKey      string        `envconfig:"AI_API_KEY" default:""`
	AIModel       string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	EncryptionKey string        `envconfig:"ENCRYPTION_KEY" default:"hx-community-secret-key-2024"`
	CacheVersion  string        `envconfig:"CACHE_VERSION" default:"v1"`
	AppOrigin     string        `envconfig:"APP_ORIGIN" default:"http://localhost:5173"`
	PushSecret    string        `envconfig:"PUSH_SECRET" default:""`
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

// DefaultConfig returns the built-in configuration without reading the
// environment.
func DefaultConfig() *Config {
	return &Config{
		SheetID:       DefaultSheetID,
		ScriptURL:     DefaultScriptURL,
		UploadURL:     DefaultUploadURL,
		AIURL:         DefaultAIURL,
		AIModel:       DefaultAIModel,
		EncryptionKey: DefaultEncryptionKey,
		CacheVersion:  DefaultCacheVersion,
		AppOrigin:     DefaultAppOrigin,
		PollInterval:  DefaultPollInterval,
		HTTPTimeout:   DefaultTimeout,
	}
}

// LoadConfig reads HX_* environment variables on top of the defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("HX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the SDK cannot run without.
func (c *Config) Validate() error {
	if c.SheetID == "" {
		return fmt.Errorf("sheet id is required")
	}
	if c.ScriptURL == "" {
		return fmt.Errorf("script url is required")
	}
	if c.CacheVersion == "" {
		return fmt.Errorf("cache version is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	return nil
}

// SheetURL returns the gviz query endpoint for the configured spreadsheet.
func (c *Config) SheetURL() string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/gviz/tq", c.SheetID)
}
