package proxy

import "github.com/mcoot/userdata/internal/rpc"

// Game-facing methods, served on a game's provider link
const (
	MethodSetupConnectPlayer = "setup_connect_player"
	MethodSetupConnect       = "setup_connect"
)

// GameCapabilities is every method a provider may call on a game
var GameCapabilities = []string{
	MethodSetupConnectPlayer,
	MethodSetupConnect,
}

// Game is a typed client for the game's side of a provider link. Its
// channel is the provider's context id for the login being reported.
type Game struct {
	*Proxy
}

// NewGame binds id on peer to the game capabilities
func NewGame(peer rpc.Peer, id int) *Game {
	return &Game{Proxy: New(peer, id, GameCapabilities...)}
}

// SetupConnectPlayer reports a managed player login for the game's
// pending token
func (g *Game) SetupConnectPlayer(token, name, fullname string, done func(error)) error {
	return g.Call(MethodSetupConnectPlayer, []any{token, name, fullname}, Await(func(_ bool, err error) { done(err) }))
}

// SetupConnect reports a remote player login relayed over the link
func (g *Game) SetupConnect(name, language, token string, done func(error)) error {
	return g.Call(MethodSetupConnect, []any{name, language, token}, Await(func(_ bool, err error) { done(err) }))
}
