package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/userdata/internal/dependencies/mocks"
	"github.com/mcoot/userdata/internal/dependencies/random"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/broker"
	"github.com/mcoot/userdata/internal/testutil"
)

type testPlayer struct {
	info    PlayerInfo
	inits   int
	closed  int
	initErr error
}

func (p *testPlayer) Init(done func(error)) {
	p.inits++
	done(p.initErr)
}

func (p *testPlayer) Closed() {
	p.closed++
}

type callingPlayer struct {
	testPlayer
	calls []string
}

func (p *callingPlayer) HandleCall(req *rpc.Request) {
	p.calls = append(p.calls, req.Method)
	req.Reply("ok")
}

var playerTables = []model.TableSpec{
	{Name: "scores", Columns: []model.ColumnSpec{{Name: "score", Type: "INTEGER"}}},
}

type GatewaySuite struct {
	suite.Suite
	random  *mocks.MockRandom
	broker  *broker.Service
	server  *Server
	cfg     Config
	link    *mocks.MockPeer
	visitor *mocks.MockPeer

	players   []*testPlayer
	handlers  bool
	initErr   error
	nextToken int
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.random = mocks.NewMockRandom()
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.broker = broker.New(broker.DefaultConfig(), s.random, clk, metrics.New(nil), testutil.NopLogger())
	s.cfg = DefaultConfig()
	s.cfg.User = "alice"
	s.cfg.Game = "chess"
	s.cfg.Password = "secret"
	s.cfg.LocalUserdata = "ws://localhost:8080/websocket"
	s.cfg.PlayerConfig = playerTables
	s.link = mocks.NewMockPeer("link")
	s.visitor = mocks.NewMockPeer("visitor")
	s.players = nil
	s.handlers = false
	s.initErr = nil
	s.nextToken = 0
	s.newServer()
}

func (s *GatewaySuite) newServer() {
	s.server = New(s.cfg, s.broker, s.factory, testutil.NopLogger())
}

func (s *GatewaySuite) factory(info PlayerInfo) (Player, error) {
	if s.handlers {
		p := &callingPlayer{testPlayer: testPlayer{info: info, initErr: s.initErr}}
		s.players = append(s.players, &p.testPlayer)
		return p, nil
	}
	p := &testPlayer{info: info, initErr: s.initErr}
	s.players = append(s.players, p)
	return p, nil
}

func (s *GatewaySuite) queueToken() string {
	token := strings.Repeat(string(rune('a'+s.nextToken)), random.TokenLength)
	s.nextToken++
	s.random.QueueTokens(token)
	return token
}

func (s *GatewaySuite) boot() {
	var bootErr error
	booted := false
	s.Require().NoError(s.server.Boot(s.link, func(err error) {
		booted = true
		bootErr = err
	}))
	s.Require().NoError(s.link.Reply(proxy.MethodLoginGame, true))
	s.Require().True(booted)
	s.Require().NoError(bootErr)
}

// accept connects the visitor anonymously and answers create_token when
// the game is booted
func (s *GatewaySuite) accept() (*Connection, string) {
	token := s.queueToken()
	c, err := s.server.Accept(s.visitor, nil)
	s.Require().NoError(err)
	if s.server.Local() != nil {
		s.Require().NoError(s.link.Reply(proxy.MethodCreateToken, "ptok-"+token[:4]))
	}
	return c, token
}

// handoff pushes token back over a fresh provider connection and answers
// setup_db
func (s *GatewaySuite) handoff(token string) *mocks.MockPeer {
	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "bob"})
	s.Require().NoError(err)
	s.Require().NoError(provider.Reply(proxy.MethodSetupDB, true))
	return provider
}

func (s *GatewaySuite) lastSetup() []any {
	events := s.visitor.EventsNamed(EventSetup)
	s.Require().NotEmpty(events)
	return events[len(events)-1].Args
}

func (s *GatewaySuite) serve(c *Connection, method string, args ...any) (json.RawMessage, error) {
	var (
		result json.RawMessage
		failed error
	)
	req, err := rpc.NewRequest(s.visitor, method, args, func(r json.RawMessage, err error) {
		result, failed = r, err
	})
	s.Require().NoError(err)
	c.Serve(req)
	return result, failed
}

func (s *GatewaySuite) TestAnonymousConnectionIsOfferedLogin() {
	s.boot()
	c, token := s.accept()

	s.Equal(StatePending, c.State())
	s.Equal(token, c.Token())

	calls := s.link.CallsNamed(proxy.MethodCreateToken)
	s.Require().Len(calls, 1)
	s.Equal([]any{0, token}, calls[0].Args)

	args := s.lastSetup()
	s.Require().Len(args, 5)
	s.Equal(s.cfg.DefaultUserdata, args[0])
	s.Equal(s.cfg.GameURL, args[1])
	s.Equal(SetupFlags{
		AllowLocal:    true,
		AllowOther:    true,
		LocalUserdata: s.cfg.LocalUserdata,
	}, args[2])
	s.Equal(token, args[3])
	s.Equal("ptok-"+token[:4], args[4])
}

func (s *GatewaySuite) TestTokenWithheldWithoutAllowOther() {
	s.cfg.AllowOther = false
	s.newServer()
	s.accept()

	args := s.lastSetup()
	s.Nil(args[3])
	s.Nil(args[4])
	flags := args[2].(SetupFlags)
	s.False(flags.AllowLocal, "no local provider was booted")
	s.False(flags.AllowOther)
}

func (s *GatewaySuite) TestCreateTokenFailureStillOffersLogin() {
	s.boot()
	s.queueToken()
	_, err := s.server.Accept(s.visitor, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.link.Fail(proxy.MethodCreateToken, errors.New("provider busy")))

	args := s.lastSetup()
	s.False(args[2].(SetupFlags).AllowLocal)
	s.Nil(args[4])
}

func (s *GatewaySuite) TestHandoffActivatesOwner() {
	c, token := s.accept()
	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "<b>bob</b>"})
	s.Require().NoError(err)

	calls := provider.CallsNamed(proxy.MethodSetupDB)
	s.Require().Len(calls, 1)
	s.Equal([]any{7, playerTables}, calls[0].Args)
	s.Equal(StatePending, c.State(), "not active until setup_db answers")
	s.Empty(s.server.Players())

	s.Require().NoError(provider.Reply(proxy.MethodSetupDB, true))
	s.Equal(StateActive, c.State())
	s.Equal(1, c.Channel())

	players := s.server.Players()
	s.Require().Len(players, 1)
	s.Require().Len(s.players, 1)
	p := s.players[0]
	s.Equal("bob", p.info.Name)
	s.Equal(1, p.info.Channel)
	s.Same(s.visitor, p.info.Remote)
	s.Equal(7, p.info.Userdata.Channel())
	s.Equal(1, p.inits)

	got, err := c.Player()
	s.Require().NoError(err)
	s.Same(players[1], got)

	conn, ok := s.server.Connection(1)
	s.True(ok)
	s.Same(c, conn)

	s.Equal(PlayerSetup{Name: "bob"}, s.lastSetup()[2])
	_, active := s.broker.Active(token)
	s.True(active)
}

func (s *GatewaySuite) TestActivationWithoutPlayerConfigSkipsSetupDB() {
	s.cfg.PlayerConfig = nil
	s.newServer()
	c, token := s.accept()

	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "bob"})
	s.Require().NoError(err)
	s.Empty(provider.Calls)
	s.Equal(StateActive, c.State())
}

func (s *GatewaySuite) TestTranslationsPushedBeforeSetup() {
	s.cfg.Translations = &Translations{
		System: map[string]string{"login": "Anmelden"},
		Game:   map[string]string{"move": "Zug"},
	}
	s.newServer()
	_, token := s.accept()
	s.handoff(token)

	events := s.visitor.EventsNamed(EventTranslate)
	s.Require().Len(events, 1)
	s.Equal(map[string]string{"login": "Anmelden"}, events[0].Args[0])

	var order []string
	for _, e := range s.visitor.Events {
		order = append(order, e.Method)
	}
	s.Equal([]string{EventSetup, EventTranslate, EventSetup}, order)
}

func (s *GatewaySuite) TestHandoffWithUnknownTokenIsRejected() {
	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: "bogus", UID: 7, Name: "bob"})
	s.ErrorIs(err, model.ErrInvalidToken)
	s.True(provider.IsClosed())
}

func (s *GatewaySuite) TestTokenRevokedBeforeResolve() {
	c, token := s.accept()
	c.Closed()

	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "bob"})
	s.ErrorIs(err, model.ErrInvalidToken)
	s.Empty(s.server.Players())
}

func (s *GatewaySuite) TestTokenResolvesOnlyOnce() {
	_, token := s.accept()
	s.handoff(token)

	_, err := s.server.Accept(mocks.NewMockPeer("again"), &Handshake{Token: token, UID: 8, Name: "mallory"})
	s.ErrorIs(err, model.ErrInvalidToken)
	s.Len(s.server.Players(), 1)
}

func (s *GatewaySuite) TestSetupDBFailureClosesVisitor() {
	c, token := s.accept()
	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "bob"})
	s.Require().NoError(err)
	s.Require().NoError(provider.Fail(proxy.MethodSetupDB, model.ErrInvalidIdentifier))

	s.True(s.visitor.IsClosed())
	s.Empty(s.players)

	c.Closed()
	pending, active := s.broker.Counts()
	s.Zero(pending)
	s.Zero(active)
	s.Len(provider.EventsNamed(proxy.MethodDisconnected), 1)
}

func (s *GatewaySuite) TestStaleSetupDBReplyIsIgnored() {
	c, token := s.accept()
	provider := mocks.NewMockPeer("provider")
	_, err := s.server.Accept(provider, &Handshake{Token: token, UID: 7, Name: "bob"})
	s.Require().NoError(err)

	c.Closed()
	s.Require().NoError(provider.Reply(proxy.MethodSetupDB, true))

	s.Equal(StateClosed, c.State())
	s.Empty(s.players)
	s.Empty(s.server.Players())
}

func (s *GatewaySuite) TestInitFailureClosesVisitor() {
	s.initErr = errors.New("board full")
	_, token := s.accept()
	s.handoff(token)
	s.True(s.visitor.IsClosed())
}

func (s *GatewaySuite) TestPlayerUnavailableBeforeActive() {
	c, _ := s.accept()
	_, err := c.Player()
	s.ErrorIs(err, model.ErrNotAuthenticated)
}

func (s *GatewaySuite) TestCallsBeforeLoginAreRejected() {
	c, _ := s.accept()
	_, err := s.serve(c, "move", "e2e4")
	s.ErrorIs(err, model.ErrNotAuthenticated)
}

func (s *GatewaySuite) TestCallsAreForwardedToPlayer() {
	s.handlers = true
	c, token := s.accept()
	s.handoff(token)

	result, err := s.serve(c, "move", "e2e4")
	s.Require().NoError(err)
	s.JSONEq(`"ok"`, string(result))
}

func (s *GatewaySuite) TestPlayerWithoutHandlerRejectsCalls() {
	c, token := s.accept()
	s.handoff(token)

	_, err := s.serve(c, "move", "e2e4")
	s.ErrorIs(err, model.ErrInvalidCapability)
}

func (s *GatewaySuite) TestProviderConnectionServesNothing() {
	_, token := s.accept()
	provider := s.handoff(token)

	var pc *Connection
	for c := range s.server.live {
		if c.peer == provider {
			pc = c
		}
	}
	s.Require().NotNil(pc)
	s.Equal(StateProvider, pc.State())
	_, err := s.serve(pc, "move")
	s.ErrorIs(err, model.ErrInvalidCapability)
}

func (s *GatewaySuite) TestLogoutReissuesToken() {
	c, token := s.accept()
	provider := s.handoff(token)
	next := s.queueToken()

	result, err := s.serve(c, MethodLogout)
	s.Require().NoError(err)
	s.JSONEq(`true`, string(result))

	s.Equal(StatePending, c.State())
	s.Equal(next, c.Token())
	s.Empty(s.server.Players())
	s.Equal(1, s.players[0].closed)

	disconnected := provider.EventsNamed(proxy.MethodDisconnected)
	s.Require().Len(disconnected, 1)
	s.Equal([]any{7}, disconnected[0].Args)

	_, stillActive := s.broker.Active(token)
	s.False(stillActive)

	args := s.lastSetup()
	s.True(args[2].(SetupFlags).Logout)
	s.Equal(next, args[3])
}

func (s *GatewaySuite) TestLogoutRequiresActiveConnection() {
	c, _ := s.accept()
	_, err := s.serve(c, MethodLogout)
	s.ErrorIs(err, model.ErrNotAuthenticated)
	s.ErrorIs(c.Logout(), model.ErrNotAuthenticated)
}

func (s *GatewaySuite) TestClosingActiveConnectionCleansUp() {
	c, token := s.accept()
	provider := s.handoff(token)

	c.Closed()
	s.Equal(StateClosed, c.State())
	s.Empty(s.server.Players())
	_, ok := s.server.Connection(1)
	s.False(ok)
	s.Equal(1, s.players[0].closed)
	s.Len(provider.EventsNamed(proxy.MethodDisconnected), 1)

	pending, active := s.broker.Counts()
	s.Zero(pending)
	s.Zero(active)

	c.Closed()
	s.Equal(1, s.players[0].closed, "closing twice is a no-op")
}

func (s *GatewaySuite) TestClosingPendingConnectionDropsProviderToken() {
	s.boot()
	c, token := s.accept()
	c.Closed()

	drops := s.link.EventsNamed(proxy.MethodDropToken)
	s.Require().Len(drops, 1)
	s.Equal([]any{0, "ptok-" + token[:4]}, drops[0].Args)
	_, pending := s.broker.Pending(token)
	s.False(pending)
}

func (s *GatewaySuite) TestLateProviderTokenIsDropped() {
	s.boot()
	token := s.queueToken()
	c, err := s.server.Accept(s.visitor, nil)
	s.Require().NoError(err)
	c.Closed()

	s.Require().NoError(s.link.Reply(proxy.MethodCreateToken, "late"))
	drops := s.link.EventsNamed(proxy.MethodDropToken)
	s.Require().Len(drops, 1)
	s.Equal([]any{0, "late"}, drops[0].Args)
	s.Empty(s.visitor.EventsNamed(EventSetup), "no offer after close for %s", token)
}

func (s *GatewaySuite) TestProviderCloseLogsOutDependents() {
	c, token := s.accept()
	provider := s.handoff(token)
	s.queueToken()

	var pc *Connection
	for conn := range s.server.live {
		if conn.peer == provider {
			pc = conn
		}
	}
	s.Require().NotNil(pc)
	pc.Closed()

	s.Equal(StatePending, c.State())
	s.Equal(1, s.players[0].closed)
	s.Empty(s.server.Players())
	s.True(s.lastSetup()[2].(SetupFlags).Logout)
}

func (s *GatewaySuite) TestManagedLoginOverLocalLink() {
	s.boot()
	c, token := s.accept()

	var (
		replied json.RawMessage
		failed  error
	)
	req, err := rpc.NewRequest(s.link, proxy.MethodSetupConnectPlayer, []any{5, token, "carol", "Carol <i>C</i>"},
		func(r json.RawMessage, err error) { replied, failed = r, err })
	s.Require().NoError(err)
	s.server.LinkHandler().Serve(req)
	s.Require().NoError(failed)
	s.JSONEq(`true`, string(replied))

	access := s.link.CallsNamed(proxy.MethodAccessManagedPlayer)
	s.Require().Len(access, 1)
	s.Equal([]any{5, 1, "carol"}, access[0].Args)
	s.Require().NoError(s.link.Reply(proxy.MethodAccessManagedPlayer, true))

	setup := s.link.CallsNamed(proxy.MethodSetupDB)
	s.Require().Len(setup, 1)
	s.Equal([]any{1, playerTables}, setup[0].Args)
	s.Require().NoError(s.link.Reply(proxy.MethodSetupDB, true))

	s.Equal(StateActive, c.State())
	s.Require().Len(s.players, 1)
	s.Equal("carol", s.players[0].info.Managed)
	s.Equal("Carol C", s.players[0].info.Name)
	s.Equal(PlayerSetup{Name: "Carol C", Managed: "carol"}, s.lastSetup()[2])

	drops := s.link.EventsNamed(proxy.MethodDropToken)
	s.Require().Len(drops, 1)
	s.Equal([]any{0, "ptok-" + token[:4]}, drops[0].Args)
}

func (s *GatewaySuite) TestManagedLoginWithUnknownToken() {
	s.boot()
	var failed error
	req, err := rpc.NewRequest(s.link, proxy.MethodSetupConnectPlayer, []any{5, "bogus", "carol", "Carol"},
		func(_ json.RawMessage, err error) { failed = err })
	s.Require().NoError(err)
	s.server.LinkHandler().Serve(req)
	s.ErrorIs(failed, model.ErrInvalidToken)
	s.Empty(s.link.CallsNamed(proxy.MethodAccessManagedPlayer))
}

func (s *GatewaySuite) TestLocalLinkCloseLogsOutManagedPlayers() {
	s.boot()
	c, token := s.accept()
	req, err := rpc.NewRequest(s.link, proxy.MethodSetupConnectPlayer, []any{5, token, "carol", "Carol"}, nil)
	s.Require().NoError(err)
	s.server.LinkHandler().Serve(req)
	s.Require().NoError(s.link.Reply(proxy.MethodAccessManagedPlayer, true))
	s.Require().NoError(s.link.Reply(proxy.MethodSetupDB, true))
	s.Require().Equal(StateActive, c.State())

	s.queueToken()
	s.server.LinkHandler().Closed()

	s.Nil(s.server.Local())
	s.Equal(StatePending, c.State())
	s.Equal(1, s.players[0].closed)
	s.False(s.lastSetup()[2].(SetupFlags).AllowLocal)
}

func (s *GatewaySuite) TestUnknownLinkMethod() {
	s.boot()
	var failed error
	req, err := rpc.NewRequest(s.link, "drop_everything", nil, func(_ json.RawMessage, err error) { failed = err })
	s.Require().NoError(err)
	s.server.LinkHandler().Serve(req)
	s.ErrorIs(failed, model.ErrInvalidCapability)
}

func (s *GatewaySuite) TestBootRejectedLogin() {
	var bootErr error
	s.Require().NoError(s.server.Boot(s.link, func(err error) { bootErr = err }))
	s.Require().NoError(s.link.Reply(proxy.MethodLoginGame, false))
	s.ErrorIs(bootErr, model.ErrAuth)
}

func (s *GatewaySuite) TestBootProvisionsGameTables() {
	s.cfg.DBConfig = playerTables
	s.newServer()

	var (
		bootErr error
		done    bool
	)
	s.Require().NoError(s.server.Boot(s.link, func(err error) { bootErr, done = err, true }))

	login := s.link.CallsNamed(proxy.MethodLoginGame)
	s.Require().Len(login, 1)
	s.Equal([]any{0, "alice", "chess", "secret", false}, login[0].Args)
	s.Require().NoError(s.link.Reply(proxy.MethodLoginGame, true))
	s.False(done, "waits for setup_db")

	s.Require().NoError(s.link.Fail(proxy.MethodSetupDB, model.ErrUnknownParent))
	s.True(done)
	s.ErrorIs(bootErr, model.ErrUnknownParent)
}

func (s *GatewaySuite) TestRemoteLoginRelayedOverLocalLink() {
	s.boot()
	c, token := s.accept()

	var failed error
	req, err := rpc.NewRequest(s.link, proxy.MethodSetupConnect, []any{9, "bob", "de", token},
		func(_ json.RawMessage, err error) { failed = err })
	s.Require().NoError(err)
	s.server.LinkHandler().Serve(req)
	s.Require().NoError(failed)

	setup := s.link.CallsNamed(proxy.MethodSetupDB)
	s.Require().Len(setup, 1)
	s.Equal([]any{9, playerTables}, setup[0].Args)
	s.Require().NoError(s.link.Reply(proxy.MethodSetupDB, true))

	s.Equal(StateActive, c.State())
	s.Equal("", s.players[0].info.Managed)
	s.Equal(9, s.players[0].info.Userdata.Channel())
}
