// Package app wires the wasend components together and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ndomo/wasend/internal/api"
	"github.com/ndomo/wasend/internal/bulk"
	"github.com/ndomo/wasend/internal/config"
	"github.com/ndomo/wasend/internal/ledger"
	"github.com/ndomo/wasend/internal/metrics"
	"github.com/ndomo/wasend/internal/pacing"
	"github.com/ndomo/wasend/internal/session"
	"github.com/ndomo/wasend/internal/whatsapp"
)

// PacingFile is the per-deployment pacing override inside the data dir.
// When present it replaces the pacing section of the main config, so the
// pacing knobs can be tuned without touching provider credentials.
const PacingFile = "pacing.yaml"

// App is the main application
type App struct {
	config    *config.Config
	ledger    *ledger.Ledger
	sessions  *session.Store
	stats     *pacing.Stats
	policy    *pacing.Policy
	client    *whatsapp.Client
	metrics   *metrics.Metrics
	runner    *bulk.Runner
	apiServer *api.Server
	logger    *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	led, err := ledger.Open(dataDir, logger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sessions, err := session.NewStore(filepath.Join(dataDir, "sessions"), logger.With("component", "sessions"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if maxAge := cfg.Storage.SessionMaxAge; maxAge > 0 {
		if n, err := sessions.CleanupOlderThan(maxAge); err != nil {
			logger.Warn("session cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned old sessions", "count", n, "max_age", maxAge)
		}
	}

	stats, err := pacing.OpenStats(filepath.Join(dataDir, "usage.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open usage counters: %w", err)
	}

	pacingCfg := cfg.Pacing
	if override, found, err := pacing.LoadConfig(filepath.Join(dataDir, PacingFile)); err != nil {
		stats.Close()
		return nil, fmt.Errorf("failed to load pacing override: %w", err)
	} else if found {
		logger.Info("using pacing override", "file", PacingFile)
		pacingCfg = override
		// Expert mode is an explicit opt-in from the main config or the
		// --expert flag; a stale override file must not silence it.
		if cfg.Pacing.ExpertMode {
			pacingCfg.ExpertMode = true
		}
	}

	policy := pacing.NewPolicy(pacingCfg, stats)

	client := whatsapp.NewClient(
		cfg.Provider.InstanceID,
		cfg.Provider.Token,
		cfg.Provider.BaseURL,
		logger.With("component", "whatsapp"),
	)

	m := metrics.New()
	runner := bulk.NewRunner(client, led, policy, sessions, m, logger.With("component", "bulk"))

	a := &App{
		config:   cfg,
		ledger:   led,
		sessions: sessions,
		stats:    stats,
		policy:   policy,
		client:   client,
		metrics:  m,
		runner:   runner,
		logger:   logger,
	}

	if cfg.API.Enabled {
		a.apiServer = api.NewServer(runner, policy, sessions, m, &cfg.API, logger.With("component", "api"))
	}

	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.config }

// Ledger returns the dedup ledger.
func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Sessions returns the session store.
func (a *App) Sessions() *session.Store { return a.sessions }

// Policy returns the pacing policy.
func (a *App) Policy() *pacing.Policy { return a.policy }

// Client returns the gateway client.
func (a *App) Client() *whatsapp.Client { return a.client }

// Runner returns the campaign runner.
func (a *App) Runner() *bulk.Runner { return a.runner }

// RunCampaign executes tasks under signal control: the first SIGINT or
// SIGTERM requests a graceful cancel, a second one aborts immediately.
// The control API, if enabled, serves for the duration of the run.
func (a *App) RunCampaign(ctx context.Context, tasks []bulk.Task, opts bulk.Options) (*session.Session, error) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		a.logger.Info("signal received, cancelling campaign (send again to abort)")
		a.runner.Cancel()

		<-sigCh
		a.logger.Error("second signal received, aborting")
		os.Exit(1)
	}()

	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.ListenAndServe(); err != nil {
				a.logger.Warn("control API server stopped", "error", err)
			}
		}()
	}

	return a.runner.Run(ctx, tasks, opts)
}

// Serve runs only the control API until a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	if a.apiServer == nil {
		return fmt.Errorf("control API is disabled in the configuration")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return a.apiServer.Shutdown(shutdownCtx)
}

// Close releases storage resources.
func (a *App) Close() error {
	if a.apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("api server shutdown error", "error", err)
		}
	}
	if err := a.stats.Close(); err != nil {
		a.logger.Error("usage counters close error", "error", err)
		return err
	}
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
