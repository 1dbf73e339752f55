package storage

import (
	"context"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage/seed"
)

// SetupOptions controls schema bootstrap
type SetupOptions struct {
	// Clean drops prefixed tables that are neither declared nor owned by a
	// registered user
	Clean bool
	// CreateGlobals creates the baseline tables and applies Seed
	CreateGlobals bool
	// Schema holds extra table declarations (may be empty)
	Schema []seed.TableDef
	// Seed is applied idempotently after the tables exist (optional)
	Seed *seed.File
}

// UserUpdate holds changed user fields; nil fields stay as they are
type UserUpdate struct {
	Fullname *string
	Email    *string
	Password *string
}

// GameUpdate holds changed game fields; nil fields stay as they are
type GameUpdate struct {
	Fullname   *string
	Password   *string
	Containers []string
}

// PlayerUpdate holds changed remote player fields; nil fields stay as they are
type PlayerUpdate struct {
	Fullname   *string
	Language   *string
	IsDefault  *bool
	Containers []string
}

// ManagedUpdate holds changed managed player fields; nil fields stay as they are
type ManagedUpdate struct {
	Fullname *string
	Email    *string
	Language *string
	Password *string
}

// Engine defines the storage engine operations
type Engine interface {
	// Connection management
	Connect(ctx context.Context, reconnect bool) error
	Close() error

	// Schema bootstrap
	Setup(ctx context.Context, opts SetupOptions) error

	// User operations
	AddUser(ctx context.Context, user model.User, password *string) error
	UpdateUser(ctx context.Context, name string, upd UserUpdate) error
	RemoveUser(ctx context.Context, name string) error
	GetUser(ctx context.Context, name string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Game operations
	AddGame(ctx context.Context, game model.Game, password *string) error
	UpdateGame(ctx context.Context, user, name string, upd GameUpdate, removeOrphans bool) error
	RemoveGame(ctx context.Context, user, name string) error
	GetGame(ctx context.Context, user, name string) (*model.Game, error)
	ListGames(ctx context.Context, user string) ([]model.Game, error)

	// Remote player operations
	AddRemotePlayer(ctx context.Context, player model.RemotePlayer) error
	UpdateRemotePlayer(ctx context.Context, user, url, name string, upd PlayerUpdate, removeOrphans bool) error
	RemoveRemotePlayer(ctx context.Context, user, url, name string) error
	GetRemotePlayer(ctx context.Context, user, url, name string) (*model.RemotePlayer, error)
	ListRemotePlayers(ctx context.Context, user, url string) ([]model.RemotePlayer, error)
	DefaultRemotePlayer(ctx context.Context, user, url string) (*model.RemotePlayer, error)

	// Managed player operations
	AddManagedPlayer(ctx context.Context, player model.ManagedPlayer, password *string) error
	UpdateManagedPlayer(ctx context.Context, user, game, name string, upd ManagedUpdate) error
	RemoveManagedPlayer(ctx context.Context, user, game, name string) error
	GetManagedPlayer(ctx context.Context, user, game, name string) (*model.ManagedPlayer, error)
	ListManagedPlayers(ctx context.Context, user, game string) ([]model.ManagedPlayer, error)

	// Container operations
	GetContainer(ctx context.Context, user, name string) (*model.Container, error)
	ListContainers(ctx context.Context, user string) ([]model.Container, error)
	ReconcileContainers(ctx context.Context, user string) (int, error)

	// Data tables
	Provision(ctx context.Context, scope model.Scope, tables []model.TableSpec) error
	ListTables(ctx context.Context, scope model.Scope) ([]string, error)

	// Authentication
	AuthenticateUser(ctx context.Context, name, password string) (*model.Identity, error)
	AuthenticateGame(ctx context.Context, user, game, password string) (*model.GameIdentity, error)
	AuthenticateManagedPlayer(ctx context.Context, user, game, name, password string) (*model.Identity, error)
}
