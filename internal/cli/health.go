package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/rpc"
)

func newHealthCmd() *cobra.Command {
	var websocket bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `health asks the server's health endpoint. With --websocket it also opens
and closes a connection on the websocket the provider serves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(commandContext(cmd), 10*time.Second)
			defer cancel()

			var result HealthResult
			if err := client.Get(ctx, "/api/v1/health", &result); err != nil {
				return err
			}
			if websocket {
				if err := probeWebsocket(ctx, cfg.ServerURL); err != nil {
					return fmt.Errorf("websocket: %w", err)
				}
				result.Websocket = "ok"
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&websocket, "websocket", false, "Also dial the websocket endpoint")

	return cmd
}

// probeWebsocket dials serverURL's websocket and hangs up
func probeWebsocket(ctx context.Context, serverURL string) error {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/") + "/websocket")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	loop := rpc.NewLoop(logger)
	go loop.Run()
	defer loop.Close()

	conn, err := rpc.Dial(ctx, u.String(), loop, logger)
	if err != nil {
		return err
	}
	return conn.Close()
}
