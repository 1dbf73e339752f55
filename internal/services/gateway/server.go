// Package gateway runs the game side of the login handoff.
//
// Every websocket a game accepts becomes a Connection. Visitors start
// anonymous and are issued a token; a provider later pushes the resolved
// identity back, either over its own handoff connection or over the game's
// local provider link, and the visitor's connection becomes active with a
// player object constructed by the game. All methods run on the event loop.
package gateway

import (
	"fmt"
	"net/url"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/broker"
)

// MethodLogout is served on visitor connections
const MethodLogout = "userdata_logout"

// Events pushed to visitors
const (
	EventSetup     = "userdata_setup"
	EventTranslate = "userdata_translate"
)

// Server owns the connections of one game
type Server struct {
	cfg       Config
	broker    *broker.Service
	factory   PlayerFactory
	sanitizer *bluemonday.Policy
	logger    *zap.Logger

	// local is the channel 0 link to the game's own provider
	local *proxy.Provider

	live    map[*Connection]bool
	conns   map[int]*Connection
	players map[int]Player
}

// New creates a gateway server
func New(cfg Config, b *broker.Service, factory PlayerFactory, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		broker:    b,
		factory:   factory,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With(zap.String("component", "gateway")),
		live:      make(map[*Connection]bool),
		conns:     make(map[int]*Connection),
		players:   make(map[int]Player),
	}
}

// Accept adopts a new connection. A nil handshake makes an anonymous
// visitor connection that is offered a login straight away; otherwise the
// connection is a provider's handoff and the carried token is resolved.
func (s *Server) Accept(peer rpc.Peer, hs *Handshake) (*Connection, error) {
	c := s.newConnection(peer)
	if hs == nil {
		c.beginLogin(false)
		return c, nil
	}

	c.state = StateProvider
	session, owner, err := s.resolve(hs.Token, model.Identity{Name: hs.Name}, broker.BindTo(peer, hs.UID))
	if err != nil {
		c.logger.Info("handoff rejected", zap.Error(err))
		c.state = StateClosed
		delete(s.live, c)
		_ = peer.Close()
		return nil, err
	}
	owner.activate(session, "")
	return c, nil
}

// AcceptQuery accepts peer with the handshake carried by its websocket
// query, if any
func (s *Server) AcceptQuery(peer rpc.Peer, query url.Values) (rpc.Handler, error) {
	var hs *Handshake
	if HasHandshake(query) {
		var err error
		if hs, err = ParseHandshake(query); err != nil {
			_ = peer.Close()
			return nil, err
		}
	}
	c, err := s.Accept(peer, hs)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Server) newConnection(peer rpc.Peer) *Connection {
	c := &Connection{
		server: s,
		peer:   peer,
		state:  StateAnonymous,
		logger: s.logger.With(zap.String("conn", peer.ID())),
	}
	s.live[c] = true
	return c
}

// Boot links the game to its local provider over peer. done runs once the
// game is logged in and its own tables are provisioned.
func (s *Server) Boot(peer rpc.Peer, done func(error)) error {
	local := proxy.NewProvider(peer, 0)
	s.local = local
	return local.LoginGame(s.cfg.User, s.cfg.Game, s.cfg.Password, s.cfg.AllowNew, func(ok bool, err error) {
		if err != nil {
			done(fmt.Errorf("login_game: %w", err))
			return
		}
		if !ok {
			done(model.ErrAuth)
			return
		}
		s.logger.Info("logged in to local provider", zap.String("user", s.cfg.User), zap.String("game", s.cfg.Game))
		if s.cfg.DBConfig == nil {
			done(nil)
			return
		}
		if err := local.SetupDB(s.cfg.DBConfig, func(err error) {
			if err != nil {
				done(fmt.Errorf("setup_db: %w", err))
				return
			}
			done(nil)
		}); err != nil {
			done(err)
		}
	})
}

// LinkHandler serves the local provider link
func (s *Server) LinkHandler() rpc.Handler {
	return linkHandler{s}
}

// Local returns the channel 0 proxy to the local provider, nil before Boot
func (s *Server) Local() *proxy.Provider {
	return s.local
}

// Players returns a snapshot of the active players by channel
func (s *Server) Players() map[int]Player {
	out := make(map[int]Player, len(s.players))
	for ch, p := range s.players {
		out[ch] = p
	}
	return out
}

// Connection returns the active connection of channel
func (s *Server) Connection(channel int) (*Connection, bool) {
	c, ok := s.conns[channel]
	return c, ok
}

// providerClosed logs out every connection whose session was bound through
// peer
func (s *Server) providerClosed(peer rpc.Peer) {
	for c := range s.live {
		if c.session == nil || c.session.Provider.Peer() != peer {
			continue
		}
		c.logger.Info("provider gone, logging out", zap.String("provider", peer.ID()))
		c.relogin()
	}
}

// resolve activates the owner of token with a session bound by bind
func (s *Server) resolve(token string, identity model.Identity, bind broker.Binder) (*broker.Session, *Connection, error) {
	session, err := s.broker.Resolve(token, identity, bind)
	if err != nil {
		return nil, nil, err
	}
	owner, ok := session.Owner.(*Connection)
	if !ok {
		return nil, nil, fmt.Errorf("session owner %s is not a gateway connection", session.Owner.ID())
	}
	return session, owner, nil
}

type linkHandler struct {
	s *Server
}

func (h linkHandler) Serve(req *rpc.Request) {
	switch req.Method {
	case proxy.MethodSetupConnectPlayer:
		h.s.setupConnectPlayer(req)
	case proxy.MethodSetupConnect:
		h.s.setupConnect(req)
	default:
		req.Fail(fmt.Errorf("%w: %s", model.ErrInvalidCapability, req.Method))
	}
}

func (h linkHandler) Closed() {
	s := h.s
	if s.local == nil {
		return
	}
	peer := s.local.Peer()
	s.logger.Warn("local provider link closed")
	s.local = nil
	s.providerClosed(peer)
}

// setupConnectPlayer completes a managed player login relayed by the local
// provider
func (s *Server) setupConnectPlayer(req *rpc.Request) {
	var (
		userid                int
		token, name, fullname string
	)
	if err := req.Decode(&userid, &token, &name, &fullname); err != nil {
		req.Fail(err)
		return
	}
	if s.local == nil {
		req.Fail(model.ErrConnectionClosed)
		return
	}

	identity := model.Identity{Name: name, Fullname: fullname, Managed: name}
	session, owner, err := s.resolve(token, identity, broker.BindSame(s.local.Peer()))
	if err != nil {
		req.Fail(err)
		return
	}
	s.logger.Debug("managed login relayed", zap.Int("userid", userid), zap.Int("channel", session.Channel))
	owner.session = session

	epoch := owner.epoch
	// userid names the provider's pending login record, not a channel of ours
	login := proxy.NewProvider(s.local.Peer(), userid)
	err = login.AccessManagedPlayer(session.Channel, name, func(err error) {
		if owner.stale(epoch) {
			return
		}
		if err != nil {
			owner.logger.Warn("access_managed_player failed", zap.Error(err))
			_ = owner.peer.Close()
			return
		}
		owner.activate(session, name)
	})
	if err != nil {
		req.Fail(err)
		return
	}
	req.Reply(true)
}

// setupConnect completes a remote player login relayed over the local link
// instead of a handoff connection
func (s *Server) setupConnect(req *rpc.Request) {
	var (
		channel               int
		name, language, token string
	)
	if err := req.Decode(&channel, &name, &language, &token); err != nil {
		req.Fail(err)
		return
	}
	if s.local == nil {
		req.Fail(model.ErrConnectionClosed)
		return
	}

	session, owner, err := s.resolve(token, model.Identity{Name: name}, broker.BindTo(s.local.Peer(), channel))
	if err != nil {
		req.Fail(err)
		return
	}
	owner.logger.Debug("remote login relayed", zap.Int("channel", channel), zap.String("language", language))
	owner.activate(session, "")
	req.Reply(true)
}
