package api

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api/apierr"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
)

// Acceptor adopts an upgraded connection and returns its handler. It runs
// on the event loop. On error the connection is closed.
type Acceptor func(peer rpc.Peer, query url.Values) (rpc.Handler, error)

// WebsocketConfig holds what the websocket endpoint needs
type WebsocketConfig struct {
	Loop   *rpc.Loop
	Logger *zap.Logger
	// Check validates the query before the upgrade (optional). Its error is
	// answered as a JSON error body.
	Check func(query url.Values) error
	// Accept is required
	Accept Acceptor
}

// rejected serves a connection that is already closing
type rejected struct{}

func (rejected) Serve(req *rpc.Request) {
	req.Fail(model.ErrConnectionClosed)
}

func (rejected) Closed() {}

// WebsocketHandler upgrades requests to RPC connections
func WebsocketHandler(cfg WebsocketConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if cfg.Check != nil {
			if err := cfg.Check(query); err != nil {
				cfg.Logger.Info("websocket refused", zap.String("remote", r.RemoteAddr), zap.Error(err))
				apierr.WriteError(w, err)
				return
			}
		}

		conn, err := rpc.Upgrade(w, r, cfg.Loop, cfg.Logger)
		if err != nil {
			// The upgrader has already answered.
			cfg.Logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		var h rpc.Handler
		if derr := cfg.Loop.Do(func() { h, err = cfg.Accept(conn, query) }); derr != nil {
			err = derr
		}
		if err != nil {
			cfg.Logger.Info("connection rejected", zap.String("conn", conn.ID()), zap.Error(err))
			conn.Start(rejected{})
			_ = conn.Close()
			return
		}
		conn.Start(h)
	}
}
