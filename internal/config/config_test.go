package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
)

type ConfigSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ConfigSuite) write(body string) string {
	path := filepath.Join(s.dir, "userdata.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o600))
	return path
}

func (s *ConfigSuite) TestDefaults() {
	path := s.write("")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(8080, cfg.Server.Port)
	s.Equal("sqlite", cfg.DB.Driver)
	s.Equal("ud_", cfg.DB.Prefix)
	s.Equal(ThrottleMemory, cfg.Throttle.Backend)
	s.Equal(5, cfg.Throttle.MaxAttempts)
	s.Equal(15*time.Minute, cfg.Throttle.Window)
	s.Equal(10*time.Second, cfg.Provider.StoreTimeout)
	s.True(cfg.Game.AllowLocal)
	s.True(cfg.Game.AllowOther)
	s.Nil(cfg.Game.Translations)
}

func (s *ConfigSuite) TestFileOverridesDefaults() {
	path := s.write(`
server:
  port: 9000
db:
  driver: postgres
  dsn: postgres://localhost/userdata
  slow_threshold: 1s
throttle:
  backend: redis
  window: 30s
`)

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(9000, cfg.Server.Port)
	s.Equal("postgres", cfg.DB.Store().Driver)
	s.Equal("postgres://localhost/userdata", cfg.DB.DSN)
	s.Equal(time.Second, cfg.DB.SlowThreshold)
	s.Equal(ThrottleRedis, cfg.Throttle.Backend)
	s.Equal(30*time.Second, cfg.Throttle.Limits().Window)
	s.Equal(15*time.Second, cfg.Server.ReadTimeout)
}

func (s *ConfigSuite) TestEnvironmentOverridesFile() {
	path := s.write("db:\n  prefix: file_\n")
	s.T().Setenv("USERDATA_DB_PREFIX", "env_")
	s.T().Setenv("USERDATA_GAME_ALLOW_OTHER", "false")

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal("env_", cfg.DB.Prefix)
	s.False(cfg.Game.Gateway().AllowOther)
}

func (s *ConfigSuite) TestExplicitFileMustExist() {
	_, err := Load(filepath.Join(s.dir, "missing.yaml"))
	s.Error(err)
}

func (s *ConfigSuite) TestMissingDefaultFileIsTolerated() {
	s.T().Chdir(s.dir)

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Equal(8080, cfg.Server.Port)
}

func (s *ConfigSuite) TestGameTables() {
	path := s.write(`
game:
  user: alice
  name: chess
  password: secret
  allow_new_players: true
  db_tables:
    - name: rankings
      columns:
        - {name: player, type: text}
        - {name: score, type: int}
  player_tables:
    - name: prefs
      columns:
        - {name: theme, type: text}
  translations:
    system:
      login: Log in
    game:
      move: Move
`)

	cfg, err := Load(path)
	s.Require().NoError(err)

	gw := cfg.Game.Gateway()
	s.Equal("alice", gw.User)
	s.Equal("chess", gw.Game)
	s.True(gw.AllowNew)
	s.Require().Len(gw.DBConfig, 1)
	s.Equal("rankings", gw.DBConfig[0].Name)
	s.Require().Len(gw.DBConfig[0].Columns, 2)
	s.Equal("int", gw.DBConfig[0].Columns[1].Type)
	s.Require().Len(gw.PlayerConfig, 1)
	s.Require().NotNil(gw.Translations)
	s.Equal("Log in", gw.Translations.System["login"])
	s.Equal("Move", gw.Translations.Game["move"])

	listener := cfg.Game.Listener(cfg.Server)
	s.Equal(8081, listener.Port)
}

func (s *ConfigSuite) TestLoggerLevel() {
	logger, err := LogConfig{Level: "debug"}.Logger()
	s.Require().NoError(err)
	s.NotNil(logger.Check(zapcore.DebugLevel, "debug"))

	_, err = LogConfig{Level: "loud"}.Logger()
	s.Error(err)
}
