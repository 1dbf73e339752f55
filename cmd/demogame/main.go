// Command demogame is a minimal game server. It links to its local
// userdatad, offers visitors the configured login paths and answers a
// couple of calls once they are logged in.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/factory"
)

var errLinkLost = errors.New("provider link closed")

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:          "demogame",
		Short:        "Demo game server using userdata logins",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", os.Getenv("USERDATA_CONFIG"), "Config file (env: USERDATA_CONFIG)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	game := factory.NewGame(cfg, newPlayerFactory(logger), logger, factory.Dependencies{})
	defer func() {
		if err := game.Close(); err != nil {
			logger.Error("closing game", zap.Error(err))
		}
	}()

	if cfg.Game.UserdataURL != "" {
		bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := game.Boot(bootCtx)
		cancel()
		if err != nil {
			logger.Error("failed to link to provider", zap.Error(err))
			return err
		}
	}

	server := api.NewServer(game.Handler, cfg.Game.Listener(cfg.Server), logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stop when the provider link goes away
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if cfg.Game.UserdataURL != "" {
		go func() {
			select {
			case <-game.LinkClosed():
				logger.Error("lost the provider link, stopping")
				cancel(errLinkLost)
			case <-ctx.Done():
			}
		}()
	}

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	if errors.Is(context.Cause(ctx), errLinkLost) {
		return errLinkLost
	}
	logger.Info("game stopped")
	return nil
}
