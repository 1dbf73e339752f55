// Package factory wires the components of each binary together.
package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/dependencies/clock"
	"github.com/mcoot/userdata/internal/dependencies/random"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/provider"
	"github.com/mcoot/userdata/internal/storage/gormstore"
	"github.com/mcoot/userdata/internal/throttle"
	memorythrottle "github.com/mcoot/userdata/internal/throttle/memory"
	redisthrottle "github.com/mcoot/userdata/internal/throttle/redis"
)

// App contains the wired components of the userdata server
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store    *gormstore.Store
	Limiter  throttle.Limiter
	Loop     *rpc.Loop
	Provider *provider.Service

	// Handler serves health, metrics and the provider websocket
	Handler http.Handler

	closers []func() error
}

// Dependencies are the injectable parts of an App. Zero fields get the
// production implementation.
type Dependencies struct {
	Clock    clock.Clock
	Random   random.Random
	Prompter gormstore.Prompter
	// Dialer opens handoff connections to games
	Dialer provider.Dialer
}

// New creates the userdata server with all dependencies wired. The event
// loop is started; call Close to stop everything.
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Random == nil {
		deps.Random = random.New()
	}

	registry := NewRegistry()
	m := metrics.New(registry)

	store, err := gormstore.New(cfg.DB.Store(), nil, deps.Prompter, m, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Clock:    deps.Clock,
		Random:   deps.Random,
		Registry: registry,
		Metrics:  m,
		Store:    store,
	}
	app.closers = append(app.closers, store.Close)

	limiter, closeLimiter, err := NewLimiter(cfg.Throttle, deps.Clock)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating limiter: %w", err)
	}
	app.Limiter = limiter
	if closeLimiter != nil {
		app.closers = append(app.closers, closeLimiter)
	}

	app.Loop = rpc.NewLoop(logger)
	go app.Loop.Run()
	app.closers = append(app.closers, func() error {
		app.Loop.Close()
		return nil
	})

	dial := deps.Dialer
	if dial == nil {
		dial = provider.WebsocketDialer(app.Loop, logger)
	}
	app.Provider = provider.New(cfg.Provider.Service(), store, limiter, deps.Random, app.Loop, dial, m, logger)

	app.Handler = api.NewRouter(api.RouterConfig{
		Logger:    logger,
		Component: "userdatad",
		Gatherer:  registry,
		Websocket: api.WebsocketHandler(api.WebsocketConfig{
			Loop:   app.Loop,
			Logger: logger,
			Accept: func(peer rpc.Peer, _ url.Values) (rpc.Handler, error) {
				return app.Provider.Accept(peer), nil
			},
		}),
	})
	return app, nil
}

// Connect opens the database so configuration errors surface at startup
func (a *App) Connect(ctx context.Context) error {
	return a.Store.Connect(ctx, false)
}

// Close stops the loop and releases the store and limiter, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewRegistry creates a metrics registry carrying the process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewLimiter creates the configured throttle backend. The returned close
// function is nil when there is nothing to release.
func NewLimiter(cfg config.ThrottleConfig, clk clock.Clock) (throttle.Limiter, func() error, error) {
	switch cfg.Backend {
	case config.ThrottleMemory, "":
		return memorythrottle.New(cfg.Limits(), clk), nil, nil
	case config.ThrottleRedis:
		limiter, err := redisthrottle.New(cfg.Redis(), cfg.Limits())
		if err != nil {
			return nil, nil, err
		}
		return limiter, limiter.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid throttle backend %q: must be %q or %q",
			cfg.Backend, config.ThrottleMemory, config.ThrottleRedis)
	}
}
