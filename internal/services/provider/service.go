// Package provider serves the identity provider's RPC surface.
//
// Games log in over a link connection and bind channels to storage scopes;
// visitors authenticate either as managed players of a game, relayed back
// over the game's link, or as users who then connect to a game by dialling
// it with a handoff query. Handlers run on the event loop and call the
// storage engine synchronously.
package provider

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/dependencies/random"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/storage"
	"github.com/mcoot/userdata/internal/throttle"
)

// Visitor-facing methods
const (
	MethodLoginManaged    = "login_managed"
	MethodRegisterManaged = "register_managed"
	MethodLoginUser       = "login_user"
	MethodConnectGame     = "connect_game"
)

// ErrTokenSpace is returned when no unused provider token could be generated
var ErrTokenSpace = errors.New("could not generate an unused provider token")

// Link is a connection the service dialled itself
type Link interface {
	rpc.Peer
	Start(h rpc.Handler)
}

// Dialer opens a handoff connection to a game
type Dialer func(ctx context.Context, url string) (Link, error)

// WebsocketDialer dials with gorilla websocket onto loop
func WebsocketDialer(loop *rpc.Loop, logger *zap.Logger) Dialer {
	return func(ctx context.Context, url string) (Link, error) {
		return rpc.Dial(ctx, url, loop, logger)
	}
}

// gameToken is a provider token handed to a game for one pending visitor
type gameToken struct {
	game    *Session
	channel int
	pending string
}

// managedLogin is a managed player login reported to a game and waiting
// for access_managed_player
type managedLogin struct {
	game *Session
	user string
	name string
	// gameName is the owning game
	gameName string
}

// Service holds the state shared by every provider connection
type Service struct {
	cfg     Config
	store   storage.Engine
	limiter throttle.Limiter
	random  random.Random
	loop    *rpc.Loop
	dial    Dialer
	metrics *metrics.Metrics
	logger  *zap.Logger

	tokens map[string]*gameToken
	logins map[int]*managedLogin
	nextID int
}

// New creates a provider service
func New(
	cfg Config,
	store storage.Engine,
	limiter throttle.Limiter,
	rng random.Random,
	loop *rpc.Loop,
	dial Dialer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		random:  rng,
		loop:    loop,
		dial:    dial,
		metrics: m,
		logger:  logger.With(zap.String("component", "provider")),
		tokens:  make(map[string]*gameToken),
		logins:  make(map[int]*managedLogin),
		nextID:  1,
	}
}

// Accept creates the session serving peer. Pass it to the connection's
// Start.
func (s *Service) Accept(peer rpc.Peer) *Session {
	return &Session{
		svc:      s,
		peer:     peer,
		logger:   s.logger.With(zap.String("conn", peer.ID())),
		channels: make(map[int]*binding),
		tokens:   make(map[string]bool),
		logins:   make(map[int]bool),
	}
}

func (s *Service) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
}

// id hands out provider-side context ids for logins and handoffs
func (s *Service) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Service) newToken() (string, error) {
	for attempt := 0; attempt < s.cfg.MaxTokenAttempts; attempt++ {
		token := s.random.Token()
		if _, taken := s.tokens[token]; token != "" && !taken {
			return token, nil
		}
	}
	return "", ErrTokenSpace
}

// guard runs check under the login throttle for key. Only ErrAuth counts as
// a failure; any other error leaves the counter alone.
func (s *Service) guard(ctx context.Context, kind, key string, check func() error) error {
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.LoginAttempts.WithLabelValues(kind, "throttled").Inc()
		s.logger.Warn("login throttled", zap.String("kind", kind), zap.String("key", key))
		return model.ErrThrottled
	}

	err = check()
	switch {
	case errors.Is(err, model.ErrAuth):
		s.metrics.LoginAttempts.WithLabelValues(kind, "failed").Inc()
		if ferr := s.limiter.Fail(ctx, key); ferr != nil {
			s.logger.Error("recording failed login", zap.Error(ferr))
		}
	case err != nil:
		s.metrics.LoginAttempts.WithLabelValues(kind, "error").Inc()
	default:
		s.metrics.LoginAttempts.WithLabelValues(kind, "ok").Inc()
		if rerr := s.limiter.Reset(ctx, key); rerr != nil {
			s.logger.Error("resetting login throttle", zap.Error(rerr))
		}
	}
	return err
}

func (s *Service) dropToken(token string) {
	gt, ok := s.tokens[token]
	if !ok {
		return
	}
	delete(s.tokens, token)
	delete(gt.game.tokens, token)
}

func (s *Service) dropLogin(id int) {
	l, ok := s.logins[id]
	if !ok {
		return
	}
	delete(s.logins, id)
	delete(l.game.logins, id)
}
