package model

// User is an account known to the userdata service.
// The password hash is never part of this type.
type User struct {
	Name     string `json:"name"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

// Container is a named, reference counted bucket of storage tables
// belonging to a user.
type Container struct {
	User     string `json:"user"`
	Name     string `json:"name"`
	Refcount int    `json:"refcount"`
}

// Game is a game registered under a user. Containers[0] is the game's own
// container; any further entries are shared containers it opted into.
type Game struct {
	User       string   `json:"user"`
	Name       string   `json:"name"`
	Fullname   string   `json:"fullname"`
	Containers []string `json:"containers"`
}

// RemotePlayer binds (user, url, name) to a set of containers.
type RemotePlayer struct {
	User       string   `json:"user"`
	URL        string   `json:"url"`
	Name       string   `json:"name"`
	Fullname   string   `json:"fullname"`
	Language   string   `json:"language,omitempty"`
	Containers []string `json:"containers"`
	IsDefault  bool     `json:"is_default"`
}

// ManagedPlayer is a player account owned and authenticated by a game.
type ManagedPlayer struct {
	User     string `json:"user"`
	Game     string `json:"game"`
	Name     string `json:"name"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Language string `json:"language,omitempty"`
}

// Identity is the public result of a successful authentication.
type Identity struct {
	Name     string `json:"name"`
	Fullname string `json:"fullname"`
	// Managed is set when the identity belongs to a managed player. It holds
	// the login name; Fullname is then the display name.
	Managed string `json:"managed,omitempty"`
	// User is the owning user for game and managed player identities.
	User string `json:"user,omitempty"`
	// Game is set for managed player identities.
	Game string `json:"game,omitempty"`
}

// DisplayName returns the name to show to other people.
func (i Identity) DisplayName() string {
	if i.Fullname != "" {
		return i.Fullname
	}
	return i.Name
}

// GameIdentity is returned when a game process authenticates itself.
type GameIdentity struct {
	Identity
	Containers []string `json:"containers"`
}
