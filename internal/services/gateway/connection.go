package gateway

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/broker"
)

// State is the login state of a connection
type State int

const (
	StateAnonymous State = iota
	StatePending
	StateActive
	StateProvider
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateProvider:
		return "provider"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SetupFlags tells a visitor which login paths are open
type SetupFlags struct {
	AllowLocal    bool   `json:"allow-local"`
	AllowOther    bool   `json:"allow-other"`
	LocalUserdata string `json:"local-userdata,omitempty"`
	Logout        bool   `json:"logout,omitempty"`
	// AllowNewPlayers offers registration of managed players
	AllowNewPlayers bool `json:"allow-new-players,omitempty"`
}

// PlayerSetup tells a visitor who it is logged in as
type PlayerSetup struct {
	Name    string `json:"name"`
	Managed string `json:"managed,omitempty"`
}

// Connection is one websocket accepted by the game
type Connection struct {
	server *Server
	peer   rpc.Peer
	logger *zap.Logger

	state State
	// epoch invalidates continuations from before the last state change
	epoch int

	token         string
	providerToken string
	session       *broker.Session
	managed       string
	player        Player
}

var (
	_ rpc.Handler  = (*Connection)(nil)
	_ broker.Owner = (*Connection)(nil)
)

func (c *Connection) ID() string {
	return c.peer.ID()
}

// State returns the current state
func (c *Connection) State() State {
	return c.state
}

// Token returns the token issued to the connection, empty when none is held
func (c *Connection) Token() string {
	return c.token
}

// Channel returns the assigned channel, 0 before activation
func (c *Connection) Channel() int {
	if c.session == nil {
		return 0
	}
	return c.session.Channel
}

// Player returns the player object of an active connection
func (c *Connection) Player() (Player, error) {
	if c.state != StateActive || c.player == nil {
		return nil, model.ErrNotAuthenticated
	}
	return c.player, nil
}

func (c *Connection) stale(epoch int) bool {
	return epoch != c.epoch || c.state == StateClosed
}

// beginLogin issues a fresh token and offers the visitor a login
func (c *Connection) beginLogin(loggedOut bool) {
	c.epoch++
	token, err := c.server.broker.Issue(c)
	if err != nil {
		c.logger.Error("issuing token", zap.Error(err))
		_ = c.peer.Close()
		return
	}
	c.token = token
	c.state = StatePending

	local := c.server.local
	if c.server.cfg.AllowLocal && local != nil {
		epoch := c.epoch
		err := local.CreateToken(token, func(providerToken string, err error) {
			if c.stale(epoch) {
				if err == nil && providerToken != "" && c.server.local != nil {
					_ = c.server.local.DropToken(providerToken)
				}
				return
			}
			if err != nil {
				c.logger.Warn("create_token failed, local login unavailable", zap.Error(err))
				c.pushLogin(loggedOut, "")
				return
			}
			c.providerToken = providerToken
			c.pushLogin(loggedOut, providerToken)
		})
		if err == nil {
			return
		}
		c.logger.Warn("create_token not sent", zap.Error(err))
	}
	c.pushLogin(loggedOut, "")
}

func (c *Connection) pushLogin(loggedOut bool, providerToken string) {
	cfg := c.server.cfg
	flags := SetupFlags{
		AllowLocal:    cfg.AllowLocal && providerToken != "",
		AllowOther:    cfg.AllowOther,
		LocalUserdata: cfg.LocalUserdata,
		Logout:        loggedOut,
	}
	if flags.AllowLocal {
		flags.AllowNewPlayers = cfg.AllowNew
	}
	var token any
	if cfg.AllowOther {
		token = c.token
	}
	if err := c.peer.Event(EventSetup, cfg.DefaultUserdata, cfg.GameURL, flags, token, nullable(providerToken)); err != nil {
		c.logger.Debug("login offer not sent", zap.Error(err))
	}
}

// activate completes a login once the provider has resolved the token
func (c *Connection) activate(session *broker.Session, managed string) {
	if c.state == StateClosed {
		return
	}
	c.session = session
	c.managed = managed
	c.epoch++
	epoch := c.epoch

	cfg := c.server.cfg
	if cfg.PlayerConfig == nil {
		c.register()
		return
	}
	err := session.Provider.SetupDB(cfg.PlayerConfig, func(err error) {
		if c.stale(epoch) {
			return
		}
		if err != nil {
			c.logger.Warn("setup_db failed, closing", zap.Error(err))
			_ = c.peer.Close()
			return
		}
		c.register()
	})
	if err != nil {
		c.logger.Warn("setup_db not sent, closing", zap.Error(err))
		_ = c.peer.Close()
	}
}

func (c *Connection) register() {
	s := c.server
	channel := c.session.Channel
	c.state = StateActive
	s.conns[channel] = c

	if c.providerToken != "" {
		if s.local != nil {
			_ = s.local.DropToken(c.providerToken)
		}
		c.providerToken = ""
	}

	name := s.sanitizer.Sanitize(c.session.Identity.DisplayName())
	player, err := s.factory(PlayerInfo{
		Channel:  channel,
		Name:     name,
		Identity: c.session.Identity,
		Userdata: c.session.Provider,
		Remote:   c.peer,
		Managed:  c.managed,
	})
	if err != nil {
		c.logger.Error("constructing player", zap.Error(err))
		_ = c.peer.Close()
		return
	}
	c.player = player
	s.players[channel] = player
	c.logger.Info("player logged in",
		zap.Int("channel", channel),
		zap.String("name", name),
		zap.Bool("managed", c.managed != ""))

	if t := s.cfg.Translations; t != nil {
		_ = c.peer.Event(EventTranslate, t.System, t.Game)
	}
	_ = c.peer.Event(EventSetup, nil, nil, PlayerSetup{Name: name, Managed: c.managed})

	epoch := c.epoch
	player.Init(func(err error) {
		if c.stale(epoch) {
			return
		}
		if err != nil {
			c.logger.Warn("player init failed, closing", zap.Error(err))
			_ = c.peer.Close()
		}
	})
}

// Logout returns an active connection to the login offer
func (c *Connection) Logout() error {
	if c.state != StateActive {
		return model.ErrNotAuthenticated
	}
	c.logger.Info("player logged out", zap.Int("channel", c.session.Channel))
	c.relogin()
	return nil
}

func (c *Connection) relogin() {
	c.teardown()
	c.beginLogin(true)
}

// teardown releases everything held for the current login
func (c *Connection) teardown() {
	s := c.server
	if c.session != nil {
		channel := c.session.Channel
		if s.conns[channel] == c {
			delete(s.conns, channel)
			delete(s.players, channel)
		}
		_ = c.session.Provider.Disconnected()
		c.session = nil
	}
	if c.player != nil {
		p := c.player
		c.player = nil
		p.Closed()
	}
	if c.token != "" {
		_ = s.broker.Revoke(c.token)
		c.token = ""
	}
	if c.providerToken != "" {
		if s.local != nil {
			_ = s.local.DropToken(c.providerToken)
		}
		c.providerToken = ""
	}
	c.managed = ""
}

// Closed runs once the socket is gone
func (c *Connection) Closed() {
	if c.state == StateClosed {
		return
	}
	prev := c.state
	c.epoch++
	c.teardown()
	c.state = StateClosed
	delete(c.server.live, c)
	c.logger.Debug("connection closed", zap.String("state", prev.String()))

	if prev == StateProvider {
		c.server.providerClosed(c.peer)
	}
}

func (c *Connection) Serve(req *rpc.Request) {
	switch {
	case req.Method == MethodLogout:
		if err := c.Logout(); err != nil {
			req.Fail(err)
			return
		}
		req.Reply(true)
	case c.state == StateProvider:
		req.Fail(fmt.Errorf("%w: %s", model.ErrInvalidCapability, req.Method))
	case c.state != StateActive:
		req.Fail(model.ErrNotAuthenticated)
	default:
		h, ok := c.player.(CallHandler)
		if !ok {
			req.Fail(fmt.Errorf("%w: %s", model.ErrInvalidCapability, req.Method))
			return
		}
		h.HandleCall(req)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
