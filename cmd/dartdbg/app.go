package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/dartdbg/internal/config"
	"github.com/dshills/dartdbg/internal/integration/debug"
	"github.com/dshills/dartdbg/internal/integration/debug/devtools"
	"github.com/dshills/dartdbg/internal/integration/debug/host"
	"github.com/dshills/dartdbg/internal/integration/debug/serviceext"
	"github.com/dshills/dartdbg/internal/logging"
	"github.com/dshills/dartdbg/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// errSessionEnded stops the run group once the debug session is over.
var errSessionEnded = errors.New("session ended")

// app owns every component of a dartdbg process.
type app struct {
	log         zerolog.Logger
	metricsAddr string

	// Command line values that win over the config file, also on reload.
	logLevelOverride    *string
	metricsAddrOverride *string

	store     *config.Store
	watcher   *config.Watcher
	analytics *metrics.Analytics
	console   *console
	tracker   *serviceext.Tracker
	launcher  *devtools.Launcher
	auto      *devtools.AutoOpener
	orch      *debug.Orchestrator
	registry  *host.Registry

	disposers []func()
}

func newApp(opts globalOptions, flags *pflag.FlagSet, out io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	a := &app{
		analytics: metrics.New(nil),
		console:   newConsole(out),
	}
	if flags.Changed("log-level") {
		a.logLevelOverride = &opts.logLevel
	}
	if flags.Changed("metrics-addr") {
		a.metricsAddrOverride = &opts.metricsAddr
	}
	a.overrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	a.log = log
	a.metricsAddr = cfg.Metrics.Addr
	a.store = config.NewStore(opts.configPath, cfg)

	contexts := debug.NewFlags()
	a.tracker = serviceext.NewTracker(contexts, serviceext.WithLogger(log))
	a.launcher = devtools.NewLauncher(cfg.DevTools.Address, cfg.DevTools.ReuseWindows, nil, log)
	a.orch = debug.New(debug.Options{
		Logger:    logging.NewSink(log),
		Toggles:   a.tracker,
		Flags:     contexts,
		Launcher:  a.launcher,
		Navigator: a.console,
		Progress:  a.console,
		Status:    a.console,
		Analytics: a.analytics,
	})
	a.tracker.Bind(a.orch)

	a.registry = host.NewRegistry(host.WithLogger(log))
	a.orch.Attach(a.registry)
	a.disposers = append(a.disposers,
		a.registry.OnSessionEnd(a.launcher.Forget),
		a.registry.OnOutput(a.console.Output),
	)

	a.auto = devtools.NewAutoOpener(a.store.DevToolsPolicy,
		devtools.WithPolicySetter(a.store.SetDevToolsPolicy),
		devtools.WithPrompter(a.console),
		devtools.WithLogger(log),
	)
	a.auto.Attach(a.orch)

	a.orch.OnFirstFrame(func() { a.console.Printf("First frame rendered") })
	a.orch.OnWillHotReload(func() { a.console.Printf("Performing hot reload...") })
	a.orch.OnWillHotRestart(func() { a.console.Printf("Performing hot restart...") })
	a.orch.OnCoverage(func(report json.RawMessage) {
		a.console.Printf("Coverage report received (%d bytes)", len(report))
	})
	a.tracker.OnChange(func(c serviceext.Change) {
		a.log.Debug().Str("extension", c.Extension).Interface("value", c.Value).Msg("service extension changed")
	})

	if opts.configPath != "" {
		w, err := config.NewWatcher(a.store, config.WithWatchLogger(log))
		if err != nil {
			log.Warn().Err(err).Msg("config watcher not started")
		} else {
			a.watcher = w
		}
	}
	sub := a.store.OnChange(a.applyConfig)
	a.disposers = append(a.disposers, sub.Cancel)

	return a, nil
}

// overrides puts the command line values over cfg.
func (a *app) overrides(cfg *config.Config) {
	if a.logLevelOverride != nil {
		cfg.Log.Level = *a.logLevelOverride
	}
	if a.metricsAddrOverride != nil {
		cfg.Metrics.Addr = *a.metricsAddrOverride
	}
}

// applyConfig takes reloaded settings into effect. The metrics address is
// only read at startup.
func (a *app) applyConfig(cfg config.Config) {
	a.overrides(&cfg)
	level := logging.SetLevel(cfg.Log.Level)
	a.log.Debug().Str("level", level.String()).Msg("configuration applied")
	a.registry.Do(func() {
		a.launcher.Address = cfg.DevTools.Address
		a.launcher.ReuseWindows = cfg.DevTools.ReuseWindows
	})
}

// run drives the event loop, the metrics endpoint and the key loop while
// one session started by start is alive.
func (a *app) run(ctx context.Context, keys io.Reader, start func(context.Context) (*host.Session, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.registry.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if a.metricsAddr != "" {
		srv := &http.Server{
			Addr:              a.metricsAddr,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info().Str("addr", a.metricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	sess, err := start(ctx)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	a.console.Printf("Debugging %s (%s)", sess.Info.Name, keyHelp)

	g.Go(func() error {
		select {
		case <-sess.Done():
			return errSessionEnded
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return sess.Stop(stopCtx)
		}
	})

	runes := readKeys(keys)
	g.Go(func() error {
		return a.keyLoop(ctx, runes, sess)
	})

	err = g.Wait()
	if errors.Is(err, errSessionEnded) {
		return nil
	}
	return err
}

func (a *app) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.analytics.Handler())
	return mux
}

// close releases everything in reverse order of construction.
func (a *app) close() {
	a.console.Close()
	a.auto.Close()
	for _, dispose := range a.disposers {
		dispose()
	}
	if err := a.registry.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing sessions")
	}
	a.orch.Close()
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	a.store.Close()
}
