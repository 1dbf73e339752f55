package provider

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/throttle"
)

// binding is what a channel of a session refers to
type binding struct {
	scope model.Scope
	// game is set when the channel is a logged in game
	game     *model.GameIdentity
	allowNew bool
}

// Session is one connection to the provider. The same type serves game
// links, visitors and dialled handoff connections.
type Session struct {
	svc    *Service
	peer   rpc.Peer
	logger *zap.Logger

	channels map[int]*binding
	// user is set by login_user
	user *model.Identity

	tokens map[string]bool
	logins map[int]bool
}

// Ensure Session implements Handler
var _ rpc.Handler = (*Session)(nil)

// Scope returns the storage scope bound to channel
func (s *Session) Scope(channel int) (model.Scope, bool) {
	b, ok := s.channels[channel]
	if !ok {
		return model.Scope{}, false
	}
	return b.scope, true
}

func (s *Session) Serve(req *rpc.Request) {
	switch req.Method {
	case proxy.MethodLoginGame:
		s.loginGame(req)
	case proxy.MethodSetupDB:
		s.setupDB(req)
	case proxy.MethodCreateToken, proxy.MethodRequestLoginLink:
		s.createToken(req)
	case proxy.MethodDropToken:
		s.dropToken(req)
	case proxy.MethodDisconnected:
		s.disconnected(req)
	case proxy.MethodAccessManagedPlayer:
		s.accessManagedPlayer(req)
	case MethodLoginManaged:
		s.loginManaged(req)
	case MethodRegisterManaged:
		s.registerManaged(req)
	case MethodLoginUser:
		s.loginUser(req)
	case MethodConnectGame:
		s.connectGame(req)
	default:
		req.Fail(fmt.Errorf("%w: %s", model.ErrInvalidCapability, req.Method))
	}
}

// Closed forgets the tokens and pending logins the session handed out
func (s *Session) Closed() {
	for token := range s.tokens {
		s.svc.dropToken(token)
	}
	for id := range s.logins {
		s.svc.dropLogin(id)
	}
	s.channels = make(map[int]*binding)
	s.logger.Debug("provider session closed")
}

func (s *Session) loginGame(req *rpc.Request) {
	var (
		channel              int
		user, game, password string
		allowNew             bool
	)
	if err := req.Decode(&channel, &user, &game, &password, &allowNew); err != nil {
		req.Fail(err)
		return
	}

	ctx, cancel := s.svc.storeContext()
	defer cancel()
	var identity *model.GameIdentity
	err := s.svc.guard(ctx, "game", throttle.Key("game", user, game), func() error {
		var err error
		identity, err = s.svc.store.AuthenticateGame(ctx, user, game, password)
		return err
	})
	if errors.Is(err, model.ErrAuth) {
		req.Reply(false)
		return
	}
	if err != nil {
		req.Fail(err)
		return
	}

	s.channels[channel] = &binding{
		scope:    model.ContainerScope(user, identity.Containers[0]),
		game:     identity,
		allowNew: allowNew,
	}
	s.logger.Info("game logged in",
		zap.String("user", user), zap.String("game", game), zap.Int("channel", channel))
	req.Reply(true)
}

func (s *Session) setupDB(req *rpc.Request) {
	var (
		channel int
		tables  []model.TableSpec
	)
	if err := req.Decode(&channel, &tables); err != nil {
		req.Fail(err)
		return
	}
	b, ok := s.channels[channel]
	if !ok {
		req.Fail(model.ErrNotAuthenticated)
		return
	}

	ctx, cancel := s.svc.storeContext()
	defer cancel()
	if err := s.svc.store.Provision(ctx, b.scope, tables); err != nil {
		req.Fail(err)
		return
	}
	req.Reply(true)
}

// game returns the game binding of channel
func (s *Session) game(channel int) (*binding, error) {
	b, ok := s.channels[channel]
	if !ok || b.game == nil {
		return nil, model.ErrNotAuthenticated
	}
	return b, nil
}

func (s *Session) createToken(req *rpc.Request) {
	var (
		channel int
		pending string
	)
	if err := req.Decode(&channel, &pending); err != nil {
		req.Fail(err)
		return
	}
	if _, err := s.game(channel); err != nil {
		req.Fail(err)
		return
	}
	token, err := s.svc.newToken()
	if err != nil {
		req.Fail(err)
		return
	}
	s.svc.tokens[token] = &gameToken{game: s, channel: channel, pending: pending}
	s.tokens[token] = true
	req.Reply(token)
}

func (s *Session) dropToken(req *rpc.Request) {
	var (
		channel int
		token   string
	)
	if err := req.Decode(&channel, &token); err != nil {
		req.Fail(err)
		return
	}
	if s.tokens[token] {
		s.svc.dropToken(token)
	}
	req.Reply(true)
}

func (s *Session) disconnected(req *rpc.Request) {
	var channel int
	if err := req.Decode(&channel); err != nil {
		req.Fail(err)
		return
	}
	if b, ok := s.channels[channel]; ok {
		s.logger.Debug("channel disconnected",
			zap.Int("channel", channel), zap.String("scope", b.scope.Kind.String()))
		delete(s.channels, channel)
	}
	req.Reply(true)
}

// accessManagedPlayer binds a game channel to the managed player of a
// login reported earlier through setup_connect_player
func (s *Session) accessManagedPlayer(req *rpc.Request) {
	var (
		id, newChannel int
		name           string
	)
	if err := req.Decode(&id, &newChannel, &name); err != nil {
		req.Fail(err)
		return
	}
	login, ok := s.svc.logins[id]
	if !ok || login.game != s || login.name != name {
		req.Fail(fmt.Errorf("%w: no pending login %d for %q", model.ErrInvalidToken, id, name))
		return
	}
	s.svc.dropLogin(id)

	s.channels[newChannel] = &binding{
		scope: model.ManagedPlayerScope(login.user, login.gameName, login.name),
	}
	req.Reply(true)
}
