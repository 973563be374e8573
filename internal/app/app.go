// Package app assembles a delivery engine and its collaborators from a
// configuration file: logging, the native desktop, the profile registry,
// the journal, metrics, health checks, the focus watcher and the daemon
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"scrivener/internal/config"
	"scrivener/internal/engine"
	"scrivener/internal/focus"
	"scrivener/internal/health"
	"scrivener/internal/journal"
	"scrivener/internal/logging"
	"scrivener/internal/metrics"
	"scrivener/internal/platform"
	"scrivener/internal/server"
)

// Options controls assembly.
type Options struct {
	// ConfigPath is the configuration file; empty uses the default path.
	ConfigPath string
	Version    string

	// Desktop replaces the native platform, mainly for tests.
	Desktop *platform.Desktop
	// Logger replaces the configured logger.
	Logger *logging.Logger

	// WithoutJournal skips the journal even when it is enabled.
	WithoutJournal bool
}

// App is an assembled engine.
type App struct {
	loader  *config.Loader
	log     *logging.Logger
	ownsLog bool
	version string

	desk    *platform.Desktop
	engine  *engine.Engine
	journal *journal.Journal
	metrics *metrics.Recorder
	health  *health.Checker
	focus   *focus.Watcher
}

// New loads configuration and builds every enabled component.
func New(opts Options) (*App, error) {
	loader := config.NewLoader(opts.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	a := &App{loader: loader, log: opts.Logger, version: opts.Version}
	if a.version == "" {
		a.version = "dev"
	}
	if a.log == nil {
		lc, err := cfg.Logging.Settings()
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		if a.log, err = logging.New(lc); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		a.ownsLog = true
		logging.SetDefault(a.log)
	}

	if err := a.build(cfg, opts); err != nil {
		a.Close()
		return nil, err
	}
	loader.OnChange(a.applyConfig)
	return a, nil
}

func (a *App) build(cfg *config.Config, opts Options) error {
	a.desk = opts.Desktop
	if a.desk == nil {
		desk, err := platform.Native(cfg.Platform.Options(a.log))
		if err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		a.desk = desk
	}

	eopts := cfg.EngineOptions()
	eopts.Logger = a.log

	if cfg.Journal.Enabled && !opts.WithoutJournal {
		j, err := journal.Open(cfg.Journal.ResolvedPath())
		if err != nil {
			return err
		}
		a.journal = j
		eopts.Observers = append(eopts.Observers, journal.NewObserver(j, a.log))
	}

	if cfg.Metrics.Enabled {
		rec, err := metrics.New(cfg.Metrics.Namespace, cfg.Metrics.Runtime)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.metrics = rec
		eopts.Observers = append(eopts.Observers, rec)
	}

	eng, err := engine.New(a.desk, cfg.Registry(), eopts)
	if err != nil {
		return err
	}
	a.engine = eng

	a.health = health.NewChecker()
	a.health.RegisterProbes(a.desk.Probes)
	a.health.RegisterFunc("engine", false, health.BusyCheck(eng.Busy))
	if a.journal != nil {
		a.health.RegisterFunc("journal", true, health.DatabaseCheck(a.journal.Ping))
	}

	if cfg.Focus.Enabled {
		a.focus = focus.New(a.desk.Processes, eng.Cursor(), eng.Busy, cfg.Focus.Settings(), a.log)
	}
	return nil
}

// Config returns the configuration in effect.
func (a *App) Config() *config.Config {
	return a.loader.Config()
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger {
	return a.log
}

// Engine returns the delivery engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Journal returns the delivery journal, or nil when it is disabled.
func (a *App) Journal() *journal.Journal {
	return a.journal
}

// Health returns the health checker.
func (a *App) Health() *health.Checker {
	return a.health
}

// Deliver runs one delivery in process.
func (a *App) Deliver(ctx context.Context, req engine.Request) engine.Outcome {
	return a.engine.DeliverRequest(ctx, req)
}

// Prune drops journal entries older than the configured retention.
func (a *App) Prune(ctx context.Context) (int64, error) {
	if a.journal == nil {
		return 0, nil
	}
	cutoff, ok := a.Config().Journal.Cutoff(time.Now())
	if !ok {
		return 0, nil
	}
	n, err := a.journal.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.log.Info("journal pruned", "removed", n, "before", cutoff)
	}
	return n, nil
}

// Server builds the daemon server over the engine.
func (a *App) Server() (*server.Server, error) {
	sc, err := a.Config().Server.Settings()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithVersion(a.version),
		server.WithHealth(a.health),
	}
	// A nil *journal.Journal must not become a non-nil History.
	if a.journal != nil {
		opts = append(opts, server.WithHistory(a.journal))
	}
	if a.metrics != nil {
		opts = append(opts, server.WithMetrics(a.metrics.Handler()))
	}
	return server.New(sc, a.engine, opts...), nil
}

// Run serves the daemon until ctx is cancelled. It prunes the journal,
// starts the focus watcher and reloads profiles when the configuration
// file changes.
func (a *App) Run(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}
	if _, err := a.Prune(ctx); err != nil {
		a.log.Warn("journal prune failed", "error", err)
	}
	if err := a.loader.Watch(); err != nil {
		a.log.Warn("config hot reload disabled", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-a.loader.Errors():
				a.log.Warn("config reload rejected", "error", err)
			}
		}
	})
	if a.focus != nil {
		g.Go(func() error {
			err := a.focus.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		a.health.SetReady(true)
		defer a.health.SetReady(false)
		return srv.Serve(ctx)
	})

	a.log.Info("daemon started", "version", a.version, "socket", a.Config().Server.SocketPath)
	return g.Wait()
}

// applyConfig swaps in reloaded profile timings. Other sections need a
// restart.
func (a *App) applyConfig(old, cfg *config.Config) {
	a.engine.SetRegistry(cfg.Registry())
	a.log.Info("configuration reloaded", "profiles", len(cfg.Profiles))

	if old == nil {
		return
	}
	var stale []string
	if old.Server != cfg.Server {
		stale = append(stale, "server")
	}
	if old.Journal != cfg.Journal {
		stale = append(stale, "journal")
	}
	if old.Platform != cfg.Platform {
		stale = append(stale, "platform")
	}
	if len(stale) > 0 {
		a.log.Warn("restart required to apply changes", "sections", stale)
	}
}

// Close waits for pending journal writes, then releases the journal and
// the log file.
func (a *App) Close() error {
	var errs []error
	if a.engine != nil {
		a.engine.Wait()
	}
	if a.loader != nil {
		errs = append(errs, a.loader.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.ownsLog && a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}
