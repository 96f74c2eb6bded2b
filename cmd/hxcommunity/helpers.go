package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/havenova-x/hxcommunity"
)

const requestTimeout = 30 * time.Second

// resolveConfig layers the config file over the built-in defaults. An HX_*
// environment variable wins over the file.
func resolveConfig(file *Config) (*hxcommunity.Config, error) {
	cfg, err := hxcommunity.LoadConfig()
	if err != nil {
		return nil, err
	}
	overlay(&cfg.SheetID, "HX_SHEET_ID", file.Default.SheetID)
	overlay(&cfg.ScriptURL, "HX_SCRIPT_URL", file.Default.ScriptURL)
	overlay(&cfg.UploadURL, "HX_UPLOAD_URL", file.Default.UploadURL)
	overlay(&cfg.AppOrigin, "HX_APP_ORIGIN", file.Default.AppOrigin)
	overlay(&cfg.CacheVersion, "HX_CACHE_VERSION", file.Default.CacheVersion)
	overlay(&cfg.AIURL, "HX_AI_URL", file.AI.URL)
	overlay(&cfg.AIAPIKey, "HX_AI_API_KEY", file.AI.APIKey)
	overlay(&cfg.AIModel, "HX_AI_MODEL", file.AI.Model)
	overlay(&cfg.PushSecret, "HX_PUSH_SECRET", file.Push.Secret)
	return cfg, cfg.Validate()
}

func overlay(dst *string, env, val string) {
	if _, set := os.LookupEnv(env); set || val == "" {
		return
	}
	*dst = val
}

// openApp opens the app over ~/.hxcommunity/state.db. Callers must Close it.
func openApp(opts ...hxcommunity.AppOption) (*hxcommunity.App, *Config, error) {
	file, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := resolveConfig(file)
	if err != nil {
		return nil, nil, err
	}
	path, err := statePath()
	if err != nil {
		return nil, nil, err
	}
	app, err := hxcommunity.OpenApp(cfg, path, opts...)
	if err != nil {
		return nil, nil, err
	}
	return app, file, nil
}

// withApp runs fn with an open app and a request-scoped context.
func withApp(fn func(ctx context.Context, app *hxcommunity.App) error) error {
	app, _, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, app)
}

// requireUser returns the signed-in user or a hint to log in.
func requireUser(app *hxcommunity.App) (*hxcommunity.User, error) {
	u := app.State.CurrentUser()
	if u == nil {
		return nil, errors.New("not signed in. Run 'hxcommunity login <username>' first")
	}
	return u, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// maskKey shows the first 4 and last 4 characters of a secret.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
