// Package config loads the settings of every userdata binary.
//
// Values come from defaults, then an optional YAML file, then environment
// variables prefixed USERDATA_ with dots replaced by underscores
// (USERDATA_DB_DSN sets db.dsn).
package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/services/gateway"
	"github.com/mcoot/userdata/internal/services/provider"
	"github.com/mcoot/userdata/internal/storage/gormstore"
	"github.com/mcoot/userdata/internal/throttle"
	redisthrottle "github.com/mcoot/userdata/internal/throttle/redis"
)

// Throttle backends
const (
	ThrottleMemory = "memory"
	ThrottleRedis  = "redis"
)

// Config is the full configuration tree
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Setup    SetupConfig    `mapstructure:"setup"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Provider ProviderConfig `mapstructure:"provider"`
	Game     GameConfig     `mapstructure:"game"`
}

// LogConfig selects the zap preset and level
type LogConfig struct {
	Dev   bool   `mapstructure:"dev"`
	Level string `mapstructure:"level"`
}

// ServerConfig is the HTTP listener of userdatad
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig is the backing store
type DBConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	Prefix        string        `mapstructure:"prefix"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// SetupConfig names the files used by schema bootstrap
type SetupConfig struct {
	SchemaFile string `mapstructure:"schema_file"`
	SeedFile   string `mapstructure:"seed_file"`
}

// ThrottleConfig is the failed login limiter
type ThrottleConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

// ProviderConfig tunes the provider service
type ProviderConfig struct {
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// GameConfig configures a game server embedding the gateway
type GameConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// UserdataURL is the websocket of the game's own provider
	UserdataURL     string `mapstructure:"userdata_url"`
	DefaultUserdata string `mapstructure:"default_userdata"`
	GameURL         string `mapstructure:"game_url"`

	User     string `mapstructure:"user"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`

	AllowLocal      bool `mapstructure:"allow_local"`
	AllowOther      bool `mapstructure:"allow_other"`
	AllowNewPlayers bool `mapstructure:"allow_new_players"`

	DBTables     []model.TableSpec     `mapstructure:"db_tables"`
	PlayerTables []model.TableSpec     `mapstructure:"player_tables"`
	Translations *gateway.Translations `mapstructure:"translations"`
}

// Logger builds the process logger
func (c LogConfig) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

// API returns the userdatad listener settings
func (c ServerConfig) API() api.ServerConfig {
	return api.ServerConfig{
		Host:            c.Host,
		Port:            c.Port,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// Store returns the storage engine settings
func (c DBConfig) Store() gormstore.Config {
	return gormstore.Config{
		Driver:        c.Driver,
		DSN:           c.DSN,
		Prefix:        c.Prefix,
		MaxOpenConns:  c.MaxOpenConns,
		SlowThreshold: c.SlowThreshold,
	}
}

// Limits returns the limiter settings shared by both backends
func (c ThrottleConfig) Limits() throttle.Config {
	return throttle.Config{MaxAttempts: c.MaxAttempts, Window: c.Window}
}

// Redis returns the connection settings of the redis backend
func (c ThrottleConfig) Redis() redisthrottle.Config {
	cfg := redisthrottle.DefaultConfig()
	cfg.URL = c.RedisURL
	return cfg
}

// Service returns the provider service settings
func (c ProviderConfig) Service() provider.Config {
	cfg := provider.DefaultConfig()
	cfg.StoreTimeout = c.StoreTimeout
	cfg.DialTimeout = c.DialTimeout
	return cfg
}

// Gateway returns the gateway settings
func (c GameConfig) Gateway() gateway.Config {
	return gateway.Config{
		DefaultUserdata: c.DefaultUserdata,
		GameURL:         c.GameURL,
		LocalUserdata:   c.UserdataURL,
		AllowLocal:      c.AllowLocal,
		AllowOther:      c.AllowOther,
		User:            c.User,
		Game:            c.Name,
		Password:        c.Password,
		AllowNew:        c.AllowNewPlayers,
		DBConfig:        c.DBTables,
		PlayerConfig:    c.PlayerTables,
		Translations:    c.Translations,
	}
}

// Listener returns the game server's HTTP settings, sharing the timeouts
// of server
func (c GameConfig) Listener(server ServerConfig) api.ServerConfig {
	cfg := server.API()
	cfg.Host = c.Host
	cfg.Port = c.Port
	return cfg
}
