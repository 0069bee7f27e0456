package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rendis/flowrun/internal/credentials"
	"github.com/rendis/flowrun/internal/engine"
	"github.com/rendis/flowrun/internal/logging"
	"github.com/rendis/flowrun/internal/metrics"
	"github.com/rendis/flowrun/internal/providers"
	"github.com/rendis/flowrun/internal/store"
	"github.com/rendis/flowrun/internal/streaming"
	"github.com/rendis/flowrun/internal/validation"
	"github.com/rendis/flowrun/pkg/schema"
)

// app holds the components a command needs. Components that touch the
// filesystem or spawn processes are created on first use.
type app struct {
	cfg     Config
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	metrics *metrics.Collector
	hub     *streaming.MemoryHub

	registry *providers.Registry
	store    *store.LibSQLStore
	closers  []func() error
}

func newApp(cfg Config, stdout, stderr io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// Logs and followed run events share stderr.
	stderr = &lockedWriter{w: stderr}
	return &app{
		cfg:     cfg,
		stdout:  stdout,
		stderr:  stderr,
		logger:  logging.New(stderr, level, cfg.LogFormat),
		metrics: metrics.NewCollector(true),
		hub:     streaming.NewMemoryHub(0),
	}, nil
}

// providers returns the registry with the built-ins and configured plugins.
func (a *app) providers(ctx context.Context) (*providers.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	reg := providers.NewRegistry()
	err := providers.RegisterBuiltins(reg, providers.BuiltinConfig{
		HTTP:   providers.HTTPConfig{DefaultTimeout: time.Duration(a.cfg.HTTPTimeout)},
		Slack:  providers.SlackConfig{BaseURL: a.cfg.SlackBaseURL, Timeout: time.Duration(a.cfg.HTTPTimeout)},
		OpenAI: providers.OpenAIConfig{BaseURL: a.cfg.OpenAIBaseURL},
	})
	if err != nil {
		return nil, err
	}

	host := providers.NewPluginHost(reg, a.logger)
	a.closers = append(a.closers, host.Close)
	for _, p := range a.cfg.Plugins {
		if err := host.Load(ctx, p); err != nil {
			return nil, fmt.Errorf("load plugin %s: %w", p.AppID, err)
		}
	}
	a.registry = reg
	return reg, nil
}

func (a *app) validator(ctx context.Context) (*validation.WorkflowValidator, error) {
	reg, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	return validation.NewWorkflowValidator(reg)
}

// openStore opens and migrates the database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if dir := filepath.Dir(a.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// codec returns the vault codec, or an error when no passphrase is configured.
func (a *app) codec() (*credentials.AESCodec, error) {
	if a.cfg.VaultPassphrase == "" {
		return nil, schema.NewError(schema.ErrCodeCredentialDecrypt,
			"vault passphrase not configured (set FLOWRUN_VAULT_PASSPHRASE or -vault-key)")
	}
	if a.cfg.VaultSalt == "" {
		return nil, schema.NewError(schema.ErrCodeCredentialDecrypt,
			"vault salt not configured (run flowrun init or set FLOWRUN_VAULT_SALT)")
	}
	return credentials.NewAESCodec(credentials.CodecConfig{
		Passphrase: a.cfg.VaultPassphrase,
		Salt:       []byte(a.cfg.VaultSalt),
	})
}

// resolver checks credentials against the store. Without a passphrase every
// credential fails to decrypt, which only matters for nodes that use one.
func (a *app) resolver(ctx context.Context) (engine.CredentialResolver, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	codec, err := a.codec()
	if err != nil {
		return credentials.NewResolver(s, lockedVault{err: err}), nil
	}
	return credentials.NewResolver(s, codec), nil
}

// executor wires the engine with metrics, live events and, when archive is
// set, the run archive.
func (a *app) executor(ctx context.Context, archive bool) (*engine.Executor, error) {
	reg, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	resolver, err := a.resolver(ctx)
	if err != nil {
		return nil, err
	}

	observers := engine.Observers{a.metrics, streaming.NewObserver(a.hub, a.logger)}
	if archive {
		observers = append(observers, store.NewArchive(a.store, a.logger))
	}
	return engine.NewExecutor(reg, resolver, engine.ExecutorConfig{
		Logger:   a.logger,
		Observer: observers,
	}), nil
}

// serveMetrics exposes /metrics when an address is configured. The server
// stops when ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("metrics listening", slog.String("addr", a.cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

type lockedVault struct{ err error }

func (v lockedVault) Decrypt(context.Context, []byte) (map[string]any, error) {
	return nil, v.err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
