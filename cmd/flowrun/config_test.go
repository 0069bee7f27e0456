package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.VaultSalt, "the salt comes from init, never a shared default")
	assert.Equal(t, Duration(30*time.Second), cfg.HTTPTimeout)
	assert.Equal(t, "flowrun.db", filepath.Base(cfg.DBPath))
	assert.Empty(t, cfg.Plugins)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := writeSettings(t, `{
		"db_path": "/data/file.db",
		"log_level": "debug",
		"http_timeout": "5s",
		"plugins": [{"app_id": "github", "command": "flowrun-github"}]
	}`)

	cfg, err := loadConfig(path, map[string]string{
		"FLOWRUN_LOG_LEVEL":        "warn",
		"FLOWRUN_HTTP_TIMEOUT":     "45s",
		"FLOWRUN_VAULT_PASSPHRASE": "pw",
		"LOG_LEVEL":                "error",
	})
	require.NoError(t, err)
	assert.Equal(t, "/data/file.db", cfg.DBPath, "file value survives when env is unset")
	assert.Equal(t, "warn", cfg.LogLevel, "env beats file")
	assert.Equal(t, Duration(45*time.Second), cfg.HTTPTimeout)
	assert.Equal(t, "pw", cfg.VaultPassphrase)
	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, "github", cfg.Plugins[0].AppID)
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "none.json"), map[string]string{"FLOWRUN_LOG_LEVEL": "warn", "FLOWRUN_DB_PATH": "/env.db"})
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.bindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-log-level", "debug"}))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/env.db", cfg.DBPath, "unset flags keep the layered value")
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		environ map[string]string
	}{
		{"bad json", `{"log_level": `, nil},
		{"bad level", `{"log_level": "loud"}`, nil},
		{"bad format", `{"log_format": "xml"}`, nil},
		{"plugin without command", `{"plugins": [{"app_id": "x"}]}`, nil},
		{"bad duration", `{}`, map[string]string{"FLOWRUN_HTTP_TIMEOUT": "soon"}},
		{"negative timeout", `{"http_timeout": "-1s"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := tt.environ
			if environ == nil {
				environ = map[string]string{}
			}
			_, err := loadConfig(writeSettings(t, tt.file), environ)
			assert.Error(t, err)
		})
	}
}

func TestFlowrunDir_Override(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FLOWRUN_HOME", dir)
	assert.Equal(t, dir, flowrunDir())
	assert.Equal(t, filepath.Join(dir, "settings.json"), settingsPath())
}
