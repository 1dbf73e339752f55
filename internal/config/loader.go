package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/services/gateway"
	"github.com/mcoot/userdata/internal/services/provider"
	"github.com/mcoot/userdata/internal/storage/gormstore"
	"github.com/mcoot/userdata/internal/throttle"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "USERDATA"

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "userdata"

// Load reads the configuration. An empty path looks for userdata.yaml in
// the working directory and tolerates its absence; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key, which also makes it visible to
// AutomaticEnv
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.dev", false)
	v.SetDefault("log.level", "info")

	srv := api.DefaultServerConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)

	db := gormstore.DefaultConfig()
	v.SetDefault("db.driver", db.Driver)
	v.SetDefault("db.dsn", db.DSN)
	v.SetDefault("db.prefix", db.Prefix)
	v.SetDefault("db.max_open_conns", db.MaxOpenConns)
	v.SetDefault("db.slow_threshold", db.SlowThreshold)

	v.SetDefault("setup.schema_file", "")
	v.SetDefault("setup.seed_file", "")

	th := throttle.DefaultConfig()
	v.SetDefault("throttle.backend", ThrottleMemory)
	v.SetDefault("throttle.redis_url", "redis://localhost:6379")
	v.SetDefault("throttle.max_attempts", th.MaxAttempts)
	v.SetDefault("throttle.window", th.Window)

	pv := provider.DefaultConfig()
	v.SetDefault("provider.store_timeout", pv.StoreTimeout)
	v.SetDefault("provider.dial_timeout", pv.DialTimeout)

	gw := gateway.DefaultConfig()
	v.SetDefault("game.host", "")
	v.SetDefault("game.port", 8081)
	v.SetDefault("game.userdata_url", gw.DefaultUserdata)
	v.SetDefault("game.default_userdata", gw.DefaultUserdata)
	v.SetDefault("game.game_url", gw.GameURL)
	v.SetDefault("game.user", "")
	v.SetDefault("game.name", "")
	v.SetDefault("game.password", "")
	v.SetDefault("game.allow_local", gw.AllowLocal)
	v.SetDefault("game.allow_other", gw.AllowOther)
	v.SetDefault("game.allow_new_players", gw.AllowNew)
}
