package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// cmdInit writes settings.json into the flowrun directory. The vault
// passphrase is never persisted; the salt is generated per installation
// unless -vault-salt is given.
func cmdInit(args []string, stdout io.Writer) error {
	dir := flowrunDir()
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	dbPath := fs.String("db", filepath.Join(dir, "flowrun.db"), "database path")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	httpTimeout := fs.Duration("http-timeout", 30*time.Second, "default timeout of the http provider")
	salt := fs.String("vault-salt", "", "key derivation salt for the credential vault (default: random)")
	force := fs.Bool("force", false, "overwrite an existing settings.json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := settingsPath()
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if *salt == "" {
		generated, err := newVaultSalt()
		if err != nil {
			return err
		}
		*salt = generated
	}

	cfg := Config{Settings: Settings{
		DBPath:      *dbPath,
		LogLevel:    *logLevel,
		LogFormat:   *logFormat,
		VaultSalt:   *salt,
		HTTPTimeout: Duration(*httpTimeout),
		MetricsAddr: *metricsAddr,
	}}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)
	return nil
}

func newVaultSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate vault salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}
