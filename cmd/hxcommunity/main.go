package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config is the CLI configuration stored in ~/.hxcommunity/config.toml.
// HX_* environment variables take precedence over it.
type Config struct {
	Default ConfigDefault `toml:"default"`
	AI      ConfigAI      `toml:"ai"`
	Push    ConfigPush    `toml:"push"`
}

// ConfigDefault holds backend endpoints and local cache settings.
type ConfigDefault struct {
	SheetID      string `toml:"sheet_id"`
	ScriptURL    string `toml:"script_url"`
	UploadURL    string `toml:"upload_url"`
	AppOrigin    string `toml:"app_origin"`
	CacheVersion string `toml:"cache_version"`
}

// ConfigAI holds the chat-completion endpoint.
type ConfigAI struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// ConfigPush holds the push receiver used by `serve`.
type ConfigPush struct {
	Secret string `toml:"secret"`
	Listen string `toml:"listen"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns ~/.hxcommunity, or $HXCOMMUNITY_HOME when set, creating
// it if needed.
func configDir() (string, error) {
	dir := os.Getenv("HXCOMMUNITY_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".hxcommunity")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func statePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// loadConfig reads the config file. A missing file yields a zero Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a field using dot notation (e.g. "ai.api_key").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.sheet_id)")
	}
	section, field := parts[0], parts[1]

	var target *string
	switch section {
	case "default":
		target = map[string]*string{
			"sheet_id":      &cfg.Default.SheetID,
			"script_url":    &cfg.Default.ScriptURL,
			"upload_url":    &cfg.Default.UploadURL,
			"app_origin":    &cfg.Default.AppOrigin,
			"cache_version": &cfg.Default.CacheVersion,
		}[field]
	case "ai":
		target = map[string]*string{
			"url":     &cfg.AI.URL,
			"api_key": &cfg.AI.APIKey,
			"model":   &cfg.AI.Model,
		}[field]
	case "push":
		target = map[string]*string{
			"secret": &cfg.Push.Secret,
			"listen": &cfg.Push.Listen,
		}[field]
	default:
		return fmt.Errorf("unknown config section %q (valid: default, ai, push)", section)
	}
	if target == nil {
		return fmt.Errorf("unknown field %q in section [%s]", field, section)
	}
	*target = value
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "hxcommunity",
	Short: "HX Community CLI",
	Long:  "Command-line client for the HX Community backend.\nBrowse the feed, post, message other members and run the offline cache worker.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
