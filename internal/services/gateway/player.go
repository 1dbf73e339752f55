package gateway

import (
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/proxy"
	"github.com/mcoot/userdata/internal/rpc"
)

// Player is the game's object for an authenticated connection
type Player interface {
	// Init runs last during activation; a non-nil error closes the
	// connection
	Init(done func(error))
	// Closed runs when the player is torn down by logout or disconnect
	Closed()
}

// CallHandler is implemented by players that accept calls from the
// visitor. Without it every game call fails with ErrInvalidCapability.
type CallHandler interface {
	HandleCall(req *rpc.Request)
}

// PlayerInfo is what a player is constructed from
type PlayerInfo struct {
	Channel  int
	Name     string
	Identity model.Identity
	// Userdata reaches the player's storage on the provider
	Userdata *proxy.Provider
	// Remote is the visitor's connection
	Remote rpc.Peer
	// Managed holds the login name for game-owned accounts
	Managed string
}

// PlayerFactory constructs the caller's player object
type PlayerFactory func(info PlayerInfo) (Player, error)
