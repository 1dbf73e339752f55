package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/dependencies/clock"
	"github.com/mcoot/userdata/internal/dependencies/random"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/broker"
	"github.com/mcoot/userdata/internal/services/gateway"
)

// Game contains the wired components of a game server embedding the
// gateway
type Game struct {
	Config *config.Config
	Logger *zap.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Loop    *rpc.Loop
	Broker  *broker.Service
	Gateway *gateway.Server

	// Handler serves health, metrics and the visitor websocket
	Handler http.Handler

	link *rpc.Conn
}

// NewGame creates a game server whose players are built by players. The
// event loop is started; call Boot to link to the local provider.
func NewGame(cfg *config.Config, players gateway.PlayerFactory, logger *zap.Logger, deps Dependencies) *Game {
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

	loop := rpc.NewLoop(logger)
	go loop.Run()

	b := broker.New(broker.DefaultConfig(), deps.Random, deps.Clock, m, logger)
	server := gateway.New(cfg.Game.Gateway(), b, players, logger)

	handler := api.NewRouter(api.RouterConfig{
		Logger:    logger,
		Component: "game",
		Gatherer:  registry,
		Websocket: api.WebsocketHandler(api.WebsocketConfig{
			Loop:   loop,
			Logger: logger,
			Check:  gateway.CheckQuery,
			Accept: server.AcceptQuery,
		}),
	})

	return &Game{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  m,
		Loop:     loop,
		Broker:   b,
		Gateway:  server,
		Handler:  handler,
	}
}

// Boot dials the local provider, logs the game in and provisions its
// tables. It returns once the provider has answered.
func (g *Game) Boot(ctx context.Context) error {
	url := g.Config.Game.UserdataURL
	link, err := rpc.Dial(ctx, url, g.Loop, g.Logger)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	err = g.Loop.Do(func() {
		link.Start(g.Gateway.LinkHandler())
		if err := g.Gateway.Boot(link, func(err error) { done <- err }); err != nil {
			done <- err
		}
	})
	if err != nil {
		_ = link.Close()
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			_ = link.Close()
			return fmt.Errorf("booting against %s: %w", url, err)
		}
	case <-ctx.Done():
		_ = link.Close()
		return ctx.Err()
	}
	g.link = link
	g.Logger.Info("game linked to provider", zap.String("url", url))
	return nil
}

// LinkClosed is closed when the provider link goes away
func (g *Game) LinkClosed() <-chan struct{} {
	if g.link == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return g.link.Done()
}

// Close drops the provider link and stops the loop
func (g *Game) Close() error {
	var errs []error
	if g.link != nil {
		errs = append(errs, g.link.Close())
	}
	g.Loop.Close()
	return errors.Join(errs...)
}
