// Command server runs userdatad, the identity provider and storage broker
// that games and visitors connect to over websocket.
package main

import (
	"context"
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

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:          "userdatad",
		Short:        "Userdata provider server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", os.Getenv("USERDATA_CONFIG"), "Config file (env: USERDATA_CONFIG)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := factory.New(cfg, logger, factory.Dependencies{})
	if err != nil {
		logger.Error("failed to create application", zap.Error(err))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("closing application", zap.Error(err))
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	err = app.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return err
	}

	server := api.NewServer(app.Handler, cfg.Server.API(), logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
