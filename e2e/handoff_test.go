package e2e_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/dependencies/mocks"
	"github.com/mcoot/userdata/internal/factory"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/gateway"
	"github.com/mcoot/userdata/internal/storage"
	"github.com/mcoot/userdata/internal/testutil"
)

const waitFor = 5 * time.Second

func ptr[T any](v T) *T { return &v }

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"
}

// event is a notification received by a visitor
type event struct {
	method string
	args   []json.RawMessage
}

// visitor is the browser side of a connection
type visitor struct {
	events chan event
	closed chan struct{}
}

func newVisitor() *visitor {
	return &visitor{events: make(chan event, 32), closed: make(chan struct{})}
}

func (v *visitor) Serve(req *rpc.Request) {
	if req.IsEvent() {
		v.events <- event{method: req.Method, args: req.Args}
		return
	}
	req.Fail(model.ErrInvalidCapability)
}

func (v *visitor) Closed() {
	close(v.closed)
}

// testPlayer answers whoami with what the gateway told it
type testPlayer struct {
	info gateway.PlayerInfo
}

func (p *testPlayer) Init(done func(error)) { done(nil) }

func (p *testPlayer) Closed() {}

func (p *testPlayer) HandleCall(req *rpc.Request) {
	req.Reply(map[string]any{
		"name":     p.info.Name,
		"managed":  p.info.Managed,
		"identity": p.info.Identity,
	})
}

type HandoffSuite struct {
	suite.Suite
	ctx context.Context

	app      *factory.App
	provider *httptest.Server
	game     *factory.Game
	gameSrv  *httptest.Server
	loop     *rpc.Loop
	conns    []*rpc.Conn
}

func TestHandoffSuite(t *testing.T) {
	suite.Run(t, new(HandoffSuite))
}

func (s *HandoffSuite) SetupTest() {
	s.ctx = context.Background()
	s.conns = nil

	cfg, err := config.Load("")
	s.Require().NoError(err)
	cfg.DB.Driver = "sqlite"
	cfg.DB.DSN = filepath.Join(s.T().TempDir(), "userdata.db")
	cfg.DB.Prefix = "e2e_"

	app, err := factory.New(cfg, testutil.NopLogger(), factory.Dependencies{Prompter: mocks.NewMockPrompter()})
	s.Require().NoError(err)
	s.app = app
	s.Require().NoError(app.Connect(s.ctx))
	s.Require().NoError(app.Store.Setup(s.ctx, storage.SetupOptions{CreateGlobals: true}))
	s.Require().NoError(app.Store.AddUser(s.ctx, model.User{Name: "alice", Fullname: "Alice A"}, ptr("pw")))
	s.Require().NoError(app.Store.AddGame(s.ctx, model.Game{User: "alice", Name: "chess"}, ptr("gpw")))
	s.Require().NoError(app.Store.AddManagedPlayer(s.ctx,
		model.ManagedPlayer{User: "alice", Game: "chess", Name: "carol", Fullname: "Carol"}, ptr("cpw")))
	s.provider = httptest.NewServer(app.Handler)

	// The game's public url must be known before its handler exists
	var gameHandler http.Handler
	s.gameSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gameHandler.ServeHTTP(w, r)
	}))

	cfg.Game.UserdataURL = wsURL(s.provider)
	cfg.Game.DefaultUserdata = wsURL(s.provider)
	cfg.Game.GameURL = wsURL(s.gameSrv)
	cfg.Game.User = "alice"
	cfg.Game.Name = "chess"
	cfg.Game.Password = "gpw"
	cfg.Game.AllowLocal = true
	cfg.Game.AllowOther = true
	cfg.Game.DBTables = []model.TableSpec{
		{Name: "scores", Columns: []model.ColumnSpec{{Name: "points", Type: "INTEGER"}}},
	}
	cfg.Game.PlayerTables = []model.TableSpec{
		{Name: "progress", Columns: []model.ColumnSpec{{Name: "level", Type: "INTEGER"}}},
	}

	s.game = factory.NewGame(cfg, func(info gateway.PlayerInfo) (gateway.Player, error) {
		return &testPlayer{info: info}, nil
	}, testutil.NopLogger(), factory.Dependencies{})
	gameHandler = s.game.Handler

	ctx, cancel := context.WithTimeout(s.ctx, waitFor)
	defer cancel()
	s.Require().NoError(s.game.Boot(ctx))

	s.loop = rpc.NewLoop(testutil.NopLogger())
	go s.loop.Run()
}

func (s *HandoffSuite) TearDownTest() {
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.loop.Close()
	s.gameSrv.Close()
	_ = s.game.Close()
	s.provider.Close()
	_ = s.app.Close()
}

func (s *HandoffSuite) dial(url string) (*rpc.Conn, *visitor) {
	conn, err := rpc.Dial(s.ctx, url, s.loop, testutil.NopLogger())
	s.Require().NoError(err)
	v := newVisitor()
	conn.Start(v)
	s.conns = append(s.conns, conn)
	return conn, v
}

// call waits for the answer to a call on conn
func (s *HandoffSuite) call(conn *rpc.Conn, method string, args ...any) (json.RawMessage, error) {
	type answer struct {
		raw json.RawMessage
		err error
	}
	answers := make(chan answer, 1)
	s.Require().NoError(conn.Call(method, args, func(raw json.RawMessage, err error) {
		answers <- answer{raw, err}
	}))
	select {
	case a := <-answers:
		return a.raw, a.err
	case <-time.After(waitFor):
		s.FailNow("no answer to " + method)
		return nil, nil
	}
}

// next returns the next event named method, skipping others
func (s *HandoffSuite) next(v *visitor, method string) event {
	deadline := time.After(waitFor)
	for {
		select {
		case e := <-v.events:
			if e.method == method {
				return e
			}
		case <-deadline:
			s.FailNow("no " + method + " event")
			return event{}
		}
	}
}

// loginOffer connects to the game and returns the offered tokens
func (s *HandoffSuite) loginOffer() (*rpc.Conn, *visitor, string, string) {
	conn, v := s.dial(wsURL(s.gameSrv))
	e := s.next(v, gateway.EventSetup)
	s.Require().Len(e.args, 5)

	var flags gateway.SetupFlags
	s.Require().NoError(json.Unmarshal(e.args[2], &flags))
	s.True(flags.AllowLocal)
	s.True(flags.AllowOther)

	var token, providerToken string
	s.Require().NoError(json.Unmarshal(e.args[3], &token))
	s.Require().NoError(json.Unmarshal(e.args[4], &providerToken))
	s.Require().NotEmpty(token)
	s.Require().NotEmpty(providerToken)
	return conn, v, token, providerToken
}

func (s *HandoffSuite) whoami(conn *rpc.Conn) map[string]any {
	raw, err := s.call(conn, "whoami")
	s.Require().NoError(err)
	var got map[string]any
	s.Require().NoError(json.Unmarshal(raw, &got))
	return got
}

func (s *HandoffSuite) TestGameProvisionedItsTablesAtBoot() {
	tables, err := s.app.Store.ListTables(s.ctx, model.ContainerScope("alice", "chess"))
	s.Require().NoError(err)
	s.Len(tables, 1)
}

func (s *HandoffSuite) TestManagedLoginThroughLocalProvider() {
	gameConn, gameVisitor, _, providerToken := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	raw, err := s.call(providerConn, "login_managed", providerToken, "carol", "cpw")
	s.Require().NoError(err)
	var identity model.Identity
	s.Require().NoError(json.Unmarshal(raw, &identity))
	s.Equal("carol", identity.Managed)
	s.Equal("chess", identity.Game)

	e := s.next(gameVisitor, gateway.EventSetup)
	var setup gateway.PlayerSetup
	s.Require().NoError(json.Unmarshal(e.args[2], &setup))
	s.Equal("Carol", setup.Name)
	s.Equal("carol", setup.Managed)

	got := s.whoami(gameConn)
	s.Equal("Carol", got["name"])
	s.Equal("carol", got["managed"])

	tables, err := s.app.Store.ListTables(s.ctx, model.ManagedPlayerScope("alice", "chess", "carol"))
	s.Require().NoError(err)
	s.Len(tables, 1)
}

func (s *HandoffSuite) TestProviderTokenIsSingleUse() {
	_, _, _, providerToken := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	_, err := s.call(providerConn, "login_managed", providerToken, "carol", "cpw")
	s.Require().NoError(err)

	_, err = s.call(providerConn, "login_managed", providerToken, "carol", "cpw")
	s.ErrorIs(err, model.ErrInvalidToken)
}

func (s *HandoffSuite) TestWrongManagedPasswordKeepsVisitorPending() {
	gameConn, _, _, providerToken := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	_, err := s.call(providerConn, "login_managed", providerToken, "carol", "nope")
	s.ErrorIs(err, model.ErrAuth)

	_, err = s.call(gameConn, "whoami")
	s.ErrorIs(err, model.ErrNotAuthenticated)
}

func (s *HandoffSuite) TestRemoteUserConnectsGame() {
	gameConn, gameVisitor, token, _ := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	_, err := s.call(providerConn, "login_user", "alice", "pw")
	s.Require().NoError(err)

	raw, err := s.call(providerConn, "connect_game", wsURL(s.gameSrv), token, "")
	s.Require().NoError(err)
	var uid int
	s.Require().NoError(json.Unmarshal(raw, &uid))
	s.Positive(uid)

	e := s.next(gameVisitor, gateway.EventSetup)
	var setup gateway.PlayerSetup
	s.Require().NoError(json.Unmarshal(e.args[2], &setup))
	s.Equal("Alice A", setup.Name)
	s.Empty(setup.Managed)

	got := s.whoami(gameConn)
	s.Equal("Alice A", got["name"])

	player, err := s.app.Store.DefaultRemotePlayer(s.ctx, "alice", wsURL(s.gameSrv))
	s.Require().NoError(err)
	s.Equal("alice", player.Name)
}

func (s *HandoffSuite) TestConnectGameNeedsLogin() {
	_, _, token, _ := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	_, err := s.call(providerConn, "connect_game", wsURL(s.gameSrv), token, "")
	s.ErrorIs(err, model.ErrNotAuthenticated)
}

func (s *HandoffSuite) TestLogoutReturnsToLoginOffer() {
	gameConn, gameVisitor, _, providerToken := s.loginOffer()

	providerConn, _ := s.dial(wsURL(s.provider))
	_, err := s.call(providerConn, "login_managed", providerToken, "carol", "cpw")
	s.Require().NoError(err)
	s.next(gameVisitor, gateway.EventSetup)

	_, err = s.call(gameConn, gateway.MethodLogout)
	s.Require().NoError(err)

	e := s.next(gameVisitor, gateway.EventSetup)
	var flags gateway.SetupFlags
	s.Require().NoError(json.Unmarshal(e.args[2], &flags))
	s.True(flags.Logout)

	_, err = s.call(gameConn, "whoami")
	s.ErrorIs(err, model.ErrNotAuthenticated)
}
