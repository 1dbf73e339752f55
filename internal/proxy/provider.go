package proxy

import (
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
)

// Provider-facing methods
const (
	MethodLoginGame           = "login_game"
	MethodSetupDB             = "setup_db"
	MethodCreateToken         = "create_token"
	MethodRequestLoginLink    = "request_login_link"
	MethodDropToken           = "drop_token"
	MethodDisconnected        = "disconnected"
	MethodAccessManagedPlayer = "access_managed_player"
)

// ProviderCapabilities is every method a game may call on its provider
var ProviderCapabilities = []string{
	MethodLoginGame,
	MethodSetupDB,
	MethodCreateToken,
	MethodRequestLoginLink,
	MethodDropToken,
	MethodDisconnected,
	MethodAccessManagedPlayer,
}

// Provider is a typed client for the provider's RPC surface
type Provider struct {
	*Proxy
}

// NewProvider binds channel on peer to the provider capabilities
func NewProvider(peer rpc.Peer, channel int) *Provider {
	return &Provider{Proxy: New(peer, channel, ProviderCapabilities...)}
}

// LoginGame authenticates the game process itself
func (p *Provider) LoginGame(user, game, password string, allowNew bool, done func(bool, error)) error {
	return p.Call(MethodLoginGame, []any{user, game, password, allowNew}, Await(done))
}

// SetupDB provisions the tables of the bound channel's scope
func (p *Provider) SetupDB(tables []model.TableSpec, done func(error)) error {
	return p.Call(MethodSetupDB, []any{tables}, Await(func(_ bool, err error) { done(err) }))
}

// CreateToken asks for a provider token the visitor can log in with
func (p *Provider) CreateToken(pendingToken string, done func(string, error)) error {
	return p.Call(MethodCreateToken, []any{pendingToken}, Await(done))
}

// DropToken discards a provider token
func (p *Provider) DropToken(providerToken string) error {
	return p.Event(MethodDropToken, providerToken)
}

// Disconnected tells the provider the bound channel is gone
func (p *Provider) Disconnected() error {
	return p.Event(MethodDisconnected)
}

// AccessManagedPlayer binds newChannel to a managed player of the game
func (p *Provider) AccessManagedPlayer(newChannel int, name string, done func(error)) error {
	return p.Call(MethodAccessManagedPlayer, []any{newChannel, name}, Await(func(_ bool, err error) { done(err) }))
}
