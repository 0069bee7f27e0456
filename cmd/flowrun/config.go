package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/rendis/flowrun/internal/providers"
)

const envPrefix = "FLOWRUN_"

// Duration is a time.Duration that reads and writes as "30s" in settings.json
// and in the environment.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all flowrun configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	Settings
	Plugins []providers.PluginConfig `json:"plugins,omitempty"`
}

// Settings are the scalar options; each can also be set from a FLOWRUN_ variable.
type Settings struct {
	DBPath          string   `json:"db_path" env:"DB_PATH"`
	LogLevel        string   `json:"log_level" env:"LOG_LEVEL"`
	LogFormat       string   `json:"log_format" env:"LOG_FORMAT"`
	VaultPassphrase string   `json:"vault_passphrase,omitempty" env:"VAULT_PASSPHRASE"`
	VaultSalt       string   `json:"vault_salt,omitempty" env:"VAULT_SALT"`
	HTTPTimeout     Duration `json:"http_timeout" env:"HTTP_TIMEOUT"`
	MetricsAddr     string   `json:"metrics_addr,omitempty" env:"METRICS_ADDR"`
	SlackBaseURL    string   `json:"slack_base_url,omitempty" env:"SLACK_BASE_URL"`
	OpenAIBaseURL   string   `json:"openai_base_url,omitempty" env:"OPENAI_BASE_URL"`
}

func defaultConfig() Config {
	return Config{Settings: Settings{
		DBPath:      filepath.Join(flowrunDir(), "flowrun.db"),
		LogLevel:    "info",
		LogFormat:   "text",
		HTTPTimeout: Duration(30 * time.Second),
	}}
}

func flowrunDir() string {
	if dir := os.Getenv(envPrefix + "HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowrun"
	}
	return filepath.Join(home, ".flowrun")
}

func settingsPath() string {
	return filepath.Join(flowrunDir(), "settings.json")
}

// loadConfig layers defaults, the settings file at path (ignored if
// missing) and the environment. environ nil reads the process environment.
func loadConfig(path string, environ map[string]string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: envPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg.Settings, opts); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative")
	}
	for i, p := range c.Plugins {
		if p.AppID == "" || p.Command == "" {
			return fmt.Errorf("plugins[%d]: app_id and command are required", i)
		}
	}
	return nil
}

// bindFlags registers the flags shared by every command. Current values
// become the flag defaults, so only flags given on the command line win.
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "database path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.StringVar(&c.VaultPassphrase, "vault-key", c.VaultPassphrase, "credential vault passphrase")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address")
}
