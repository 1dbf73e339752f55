// Package gormstore implements the storage engine on top of gorm.
//
// Every user gets a namespace of dynamic tables (containers, games, remote
// players, per-game managed players and the data tables provisioned for
// them). Table names are built exclusively through the mangle package.
package gormstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"

	"github.com/mcoot/userdata/internal/credential"
	"github.com/mcoot/userdata/internal/mangle"
	"github.com/mcoot/userdata/internal/metrics"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

// Store is the gorm-backed storage engine
type Store struct {
	cfg     Config
	tables  tables
	hasher  credential.Hasher
	prompt  Prompter
	metrics *metrics.Metrics
	logger  *zap.Logger

	// open creates a new database handle; replaced in tests
	open func(ctx context.Context) (*gorm.DB, error)

	// mu serializes every operation on the shared handle
	mu sync.Mutex
	db *gorm.DB

	dummyOnce sync.Once
	dummy     string
}

// Ensure Store implements the interface
var _ storage.Engine = (*Store)(nil)

// New creates a storage engine. No connection is opened until first use.
// Nil dependencies are replaced by defaults.
func New(cfg Config, hasher credential.Hasher, prompt Prompter, m *metrics.Metrics, logger *zap.Logger) (*Store, error) {
	if cfg.Prefix != "" {
		if err := mangle.ValidateIdentifier(cfg.Prefix); err != nil {
			return nil, fmt.Errorf("table prefix: %w", err)
		}
	}
	if _, err := cfg.dialector(); err != nil {
		return nil, err
	}
	if hasher == nil {
		hasher = credential.NewBcrypt(0)
	}
	if prompt == nil {
		prompt = NewTerminalPrompter()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		cfg:     cfg,
		tables:  tables{prefix: cfg.Prefix, maxLen: cfg.maxIdentifier()},
		hasher:  hasher,
		prompt:  prompt,
		metrics: m,
		logger:  logger.With(zap.String("component", "storage")),
	}
	s.open = s.openDefault
	return s, nil
}

// Connect opens the database handle. It is a no-op when already connected
// unless reconnect is set, in which case the old handle is closed first.
func (s *Store) Connect(ctx context.Context, reconnect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx, reconnect)
}

// Close closes the database handle, if any
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := closeDB(s.db)
	s.db = nil
	return err
}

func (s *Store) connectLocked(ctx context.Context, reconnect bool) error {
	if s.db != nil && !reconnect {
		return nil
	}
	if s.db != nil {
		s.metrics.Reconnects.Inc()
		if err := closeDB(s.db); err != nil {
			s.logger.Debug("closing stale database handle", zap.Error(err))
		}
		s.db = nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransientConnection, err)
	}
	s.db = db
	s.logger.Info("connected to database", zap.String("driver", s.cfg.Driver), zap.Bool("reconnect", reconnect))
	return nil
}

func (s *Store) openDefault(ctx context.Context) (*gorm.DB, error) {
	dialector, err := s.cfg.dialector()
	if err != nil {
		return nil, err
	}

	gl := zapgorm2.New(s.logger)
	gl.SlowThreshold = s.cfg.SlowThreshold
	gl.IgnoreRecordNotFoundError = true

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gl.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if s.cfg.Driver == DriverSQLite || s.cfg.Driver == "" {
		// One connection: ":memory:" databases are per connection.
		sqlDB.SetMaxOpenConns(1)
	} else if s.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.cfg.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// run executes fn in one transaction. A transient fault forces a reconnect
// and fn is retried exactly once; fn must therefore not leak state between
// attempts.
func (s *Store) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(ctx, false); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil || !isTransient(err) {
		return err
	}

	s.logger.Warn("transient database error, reconnecting", zap.Error(err))
	if err := s.connectLocked(ctx, true); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(fn)
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %w", model.ErrTransientConnection, err)
	}
	return err
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	// database/sql does not export this one
	return strings.Contains(err.Error(), "sql: database is closed")
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// take loads one row into dest. It reports false without error on a miss.
func take(tx *gorm.DB, table string, dest any, query string, args ...any) (bool, error) {
	err := tx.Table(table).Where(query, args...).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// names lists the name column of a registry table
func names(tx *gorm.DB, table string) ([]string, error) {
	var out []string
	if err := tx.Table(table).Pluck("name", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// dropPrefixed drops every table whose name starts with prefix
func (s *Store) dropPrefixed(tx *gorm.DB, prefix string) (int, error) {
	names, err := tx.Migrator().GetTables()
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := tx.Migrator().DropTable(name); err != nil {
			return dropped, fmt.Errorf("drop table %s: %w", name, err)
		}
		dropped++
		s.metrics.TablesDropped.Inc()
		s.logger.Debug("dropped table", zap.String("table", name))
	}
	return dropped, nil
}

// password returns *pw, or prompts for one when pw is nil
func (s *Store) password(pw *string, prompt string) (string, error) {
	if pw != nil {
		return *pw, nil
	}
	value, err := s.prompt.Password(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return value, nil
}

func (s *Store) hash(pw *string, prompt string) (string, error) {
	value, err := s.password(pw, prompt)
	if err != nil {
		return "", err
	}
	return s.hasher.Hash(value)
}

// dummyHash is verified against on lookup misses so both failure paths
// cost one hash comparison.
func (s *Store) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("userdata-dummy-password")
		if err == nil {
			s.dummy = h
		}
	})
	return s.dummy
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

func isUnknownParent(err error) bool {
	return errors.Is(err, model.ErrUnknownParent)
}
