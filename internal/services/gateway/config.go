package gateway

import "github.com/mcoot/userdata/internal/model"

// Translations are pushed to visitors after login
type Translations struct {
	System map[string]string `json:"system"`
	Game   map[string]string `json:"game"`
}

// Config holds configuration for the gateway
type Config struct {
	// DefaultUserdata is the provider location offered to visitors
	DefaultUserdata string
	// GameURL is the public websocket address of this game
	GameURL string
	// LocalUserdata is the address of the provider this game is linked to
	LocalUserdata string

	// AllowLocal offers managed player login through the local provider
	AllowLocal bool
	// AllowOther offers login through any provider; the token is only sent
	// to visitors when this is set
	AllowOther bool

	// Game credentials for the local provider link
	User     string
	Game     string
	Password string
	AllowNew bool

	// DBConfig is provisioned for the game itself at boot
	DBConfig []model.TableSpec
	// PlayerConfig is provisioned for every player on login; nil skips it
	PlayerConfig []model.TableSpec

	// Translations is sent on login when set
	Translations *Translations
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		DefaultUserdata: "ws://localhost:8080/websocket",
		GameURL:         "ws://localhost:8081/websocket",
		AllowLocal:      true,
		AllowOther:      true,
	}
}
