package model

// ColumnSpec describes one column of a provisioned data table.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSpec describes a data table requested through setup_db.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ScopeKind selects which namespace a Scope refers to.
type ScopeKind int

const (
	ScopeContainer ScopeKind = iota
	ScopeRemotePlayer
	ScopeManagedPlayer
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeContainer:
		return "container"
	case ScopeRemotePlayer:
		return "remote"
	case ScopeManagedPlayer:
		return "managed"
	default:
		return "unknown"
	}
}

// Scope names the namespace data tables are provisioned under.
//
//	ScopeContainer:     User + Container
//	ScopeRemotePlayer:  User + URL + Player
//	ScopeManagedPlayer: User + Game + Player
type Scope struct {
	Kind      ScopeKind
	User      string
	Container string
	Game      string
	URL       string
	Player    string
}

// ContainerScope returns the scope of a user's container.
func ContainerScope(user, container string) Scope {
	return Scope{Kind: ScopeContainer, User: user, Container: container}
}

// RemotePlayerScope returns the scope of a remote player's own tables.
func RemotePlayerScope(user, url, player string) Scope {
	return Scope{Kind: ScopeRemotePlayer, User: user, URL: url, Player: player}
}

// ManagedPlayerScope returns the scope of a managed player's own tables.
func ManagedPlayerScope(user, game, player string) Scope {
	return Scope{Kind: ScopeManagedPlayer, User: user, Game: game, Player: player}
}
