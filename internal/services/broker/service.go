// Package broker tracks session tokens between issue and resolution.
//
// A token is issued to an anonymous connection and sits in the pending
// table until the identity provider resolves it; it then moves to the active
// table together with a freshly assigned channel. The broker is not safe for
// concurrent use: all calls come from the event loop.
package broker

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/dependencies/clock"
	"github.com/mcoot/userdata/internal/dependencies/random"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
)

// ErrTokenSpace is returned when no unused token could be generated
var ErrTokenSpace = errors.New("could not generate an unused token")

// Owner is the connection a token was issued to
type Owner interface {
	ID() string
}

// Pending is an issued, unresolved token
type Pending struct {
	Token    string
	Owner    Owner
	IssuedAt time.Time
}

// Session is a resolved token
type Session struct {
	Token      string
	Owner      Owner
	Channel    int
	Identity   model.Identity
	Provider   *proxy.Provider
	ResolvedAt time.Time
}

// Binder creates the provider proxy for a newly assigned channel
type Binder func(channel int) *proxy.Provider

// BindTo binds to providerChannel on peer, for identities pushed by a remote
// provider that already chose its own context id
func BindTo(peer rpc.Peer, providerChannel int) Binder {
	return func(int) *proxy.Provider {
		return proxy.NewProvider(peer, providerChannel)
	}
}

// BindSame binds to the newly assigned channel on peer, for a provider link
// that is told about the channel afterwards
func BindSame(peer rpc.Peer) Binder {
	return func(channel int) *proxy.Provider {
		return proxy.NewProvider(peer, channel)
	}
}

// Config holds configuration for the broker
type Config struct {
	// MaxIssueAttempts bounds token regeneration on collision
	MaxIssueAttempts int
}

// DefaultConfig returns default broker configuration
func DefaultConfig() Config {
	return Config{MaxIssueAttempts: 8}
}

// Service owns the pending and active token tables of one server
type Service struct {
	cfg     Config
	random  random.Random
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	pending     map[string]*Pending
	active      map[string]*Session
	nextChannel int
}

// New creates a broker
func New(cfg Config, rng random.Random, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cfg.MaxIssueAttempts <= 0 {
		cfg.MaxIssueAttempts = DefaultConfig().MaxIssueAttempts
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		cfg:         cfg,
		random:      rng,
		clock:       clk,
		metrics:     m,
		logger:      logger.With(zap.String("component", "broker")),
		pending:     make(map[string]*Pending),
		active:      make(map[string]*Session),
		nextChannel: 1,
	}
}

// Issue creates a pending token for owner
func (s *Service) Issue(owner Owner) (string, error) {
	for attempt := 0; attempt < s.cfg.MaxIssueAttempts; attempt++ {
		token := s.random.Token()
		if token == "" || s.known(token) {
			s.logger.Warn("token collision, regenerating", zap.Int("attempt", attempt+1))
			continue
		}
		s.pending[token] = &Pending{Token: token, Owner: owner, IssuedAt: s.clock.Now()}
		s.updateGauges()
		s.logger.Debug("token issued", zap.String("owner", owner.ID()))
		return token, nil
	}
	return "", ErrTokenSpace
}

// Resolve moves a pending token to the active table, assigns it a channel
// and binds its provider proxy. The caller completes the activation.
func (s *Service) Resolve(token string, identity model.Identity, bind Binder) (*Session, error) {
	p, ok := s.pending[token]
	if !ok {
		s.metrics.Resolutions.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: not pending", model.ErrInvalidToken)
	}
	delete(s.pending, token)

	channel := s.nextChannel
	s.nextChannel++
	session := &Session{
		Token:      token,
		Owner:      p.Owner,
		Channel:    channel,
		Identity:   identity,
		Provider:   bind(channel),
		ResolvedAt: s.clock.Now(),
	}
	s.active[token] = session

	s.metrics.Resolutions.WithLabelValues("resolved").Inc()
	s.updateGauges()
	s.logger.Info("token resolved",
		zap.String("owner", p.Owner.ID()),
		zap.Int("channel", channel),
		zap.String("name", identity.Name),
		zap.Bool("managed", identity.Managed != ""))
	return session, nil
}

// Revoke forgets token, whichever table holds it. An unknown token is
// ErrInvalidToken and changes nothing. Connection teardown revokes whatever
// token it still holds and ignores this error, since a resolve or an earlier
// revoke may already have removed it.
func (s *Service) Revoke(token string) error {
	if _, ok := s.pending[token]; ok {
		delete(s.pending, token)
		s.updateGauges()
		return nil
	}
	if _, ok := s.active[token]; ok {
		delete(s.active, token)
		s.updateGauges()
		return nil
	}
	return model.ErrInvalidToken
}

// Pending returns the pending entry of token
func (s *Service) Pending(token string) (*Pending, bool) {
	p, ok := s.pending[token]
	return p, ok
}

// Active returns the session of token
func (s *Service) Active(token string) (*Session, bool) {
	a, ok := s.active[token]
	return a, ok
}

// Counts returns the sizes of the pending and active tables
func (s *Service) Counts() (pending, active int) {
	return len(s.pending), len(s.active)
}

func (s *Service) known(token string) bool {
	_, p := s.pending[token]
	_, a := s.active[token]
	return p || a
}

func (s *Service) updateGauges() {
	s.metrics.PendingTokens.Set(float64(len(s.pending)))
	s.metrics.ActiveSessions.Set(float64(len(s.active)))
}
