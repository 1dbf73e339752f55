package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/mangle"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
	"github.com/mcoot/userdata/internal/storage/seed"
)

// Setup bootstraps the schema. Tables are created first, then stray tables
// are cleaned, then the seed file is applied one entity at a time.
func (s *Store) Setup(ctx context.Context, opts storage.SetupOptions) error {
	declared := make(map[string]bool, len(opts.Schema)+1)
	declared[s.tables.users()] = true
	for _, def := range opts.Schema {
		if err := mangle.ValidateIdentifier(def.Name); err != nil {
			return fmt.Errorf("schema table %q: %w", def.Name, err)
		}
		name, err := s.tables.fit(s.tables.prefix+def.Name, nil)
		if err != nil {
			return err
		}
		declared[name] = true
	}

	err := s.run(ctx, func(tx *gorm.DB) error {
		if opts.CreateGlobals {
			if err := s.ensureUserTable(tx); err != nil {
				return err
			}
			for _, def := range opts.Schema {
				if err := s.createDeclared(tx, def); err != nil {
					return err
				}
			}
		}
		if opts.Clean {
			return s.clean(tx, declared)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if opts.CreateGlobals && opts.Seed != nil {
		return s.applySeed(ctx, opts.Seed)
	}
	return nil
}

func (s *Store) createDeclared(tx *gorm.DB, def seed.TableDef) error {
	name := s.tables.prefix + def.Name
	if tx.Migrator().HasTable(name) {
		return nil
	}
	// Column definitions come from the operator's schema file.
	sql := fmt.Sprintf("CREATE TABLE %s (%s)", tx.Statement.Quote(name), def.Columns)
	if err := tx.Exec(sql).Error; err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	s.logger.Info("created table", zap.String("table", name))
	return nil
}

// clean drops prefixed tables that are not declared and do not belong to
// a registered user. The user table is always kept.
func (s *Store) clean(tx *gorm.DB, declared map[string]bool) error {
	var namespaces []string
	if tx.Migrator().HasTable(s.tables.users()) {
		var users []userRow
		if err := tx.Table(s.tables.users()).Find(&users).Error; err != nil {
			return err
		}
		for _, u := range users {
			ns, err := s.tables.namespace(u.Name)
			if err != nil {
				s.logger.Warn("user with unusable name", zap.String("user", u.Name), zap.Error(err))
				continue
			}
			namespaces = append(namespaces, ns)
		}
	}

	names, err := tx.Migrator().GetTables()
	if err != nil {
		return err
	}
	dropped := 0
	for _, name := range names {
		if !strings.HasPrefix(name, s.tables.prefix) || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		if declared[name] || ownedBy(name, namespaces) {
			continue
		}
		if err := tx.Migrator().DropTable(name); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
		dropped++
		s.metrics.TablesDropped.Inc()
		s.logger.Info("dropped stray table", zap.String("table", name))
	}
	s.logger.Info("clean finished", zap.Int("dropped", dropped))
	return nil
}

func ownedBy(table string, namespaces []string) bool {
	for _, ns := range namespaces {
		if strings.HasPrefix(table, ns) {
			return true
		}
	}
	return false
}

// applySeed creates or updates every entity in f. Errors carry the line of
// the block that caused them.
func (s *Store) applySeed(ctx context.Context, f *seed.File) error {
	for _, u := range f.Users {
		if err := s.seedUser(ctx, u); err != nil {
			return fmt.Errorf("seed line %d: %w", u.Line, err)
		}
		for _, g := range u.Games {
			if err := s.seedGame(ctx, u.Name, g); err != nil {
				return fmt.Errorf("seed line %d: %w", g.Line, err)
			}
			for _, m := range g.Managed {
				if err := s.seedManaged(ctx, u.Name, g.Name, m); err != nil {
					return fmt.Errorf("seed line %d: %w", m.Line, err)
				}
			}
		}
		for _, p := range u.Players {
			if err := s.seedPlayer(ctx, u.Name, p); err != nil {
				return fmt.Errorf("seed line %d: %w", p.Line, err)
			}
		}
	}
	return nil
}

func (s *Store) seedUser(ctx context.Context, u seed.User) error {
	_, err := s.GetUser(ctx, u.Name)
	if errors.Is(err, model.ErrNotFound) {
		return s.AddUser(ctx, model.User{Name: u.Name, Fullname: u.Fullname, Email: u.Email}, u.Password)
	}
	if err != nil {
		return err
	}
	return s.UpdateUser(ctx, u.Name, storage.UserUpdate{
		Fullname: &u.Fullname,
		Email:    &u.Email,
		Password: u.Password,
	})
}

func (s *Store) seedGame(ctx context.Context, user string, g seed.Game) error {
	_, err := s.GetGame(ctx, user, g.Name)
	if errors.Is(err, model.ErrNotFound) {
		return s.AddGame(ctx, model.Game{
			User:       user,
			Name:       g.Name,
			Fullname:   g.Fullname,
			Containers: g.Containers,
		}, g.Password)
	}
	if err != nil {
		return err
	}
	return s.UpdateGame(ctx, user, g.Name, storage.GameUpdate{
		Fullname:   &g.Fullname,
		Password:   g.Password,
		Containers: g.Containers,
	}, true)
}

func (s *Store) seedPlayer(ctx context.Context, user string, p seed.Player) error {
	_, err := s.GetRemotePlayer(ctx, user, p.URL, p.Name)
	if errors.Is(err, model.ErrNotFound) {
		return s.AddRemotePlayer(ctx, model.RemotePlayer{
			User:       user,
			URL:        p.URL,
			Name:       p.Name,
			Fullname:   p.Fullname,
			Language:   p.Language,
			Containers: p.Containers,
			IsDefault:  p.IsDefault,
		})
	}
	if err != nil {
		return err
	}
	return s.UpdateRemotePlayer(ctx, user, p.URL, p.Name, storage.PlayerUpdate{
		Fullname:   &p.Fullname,
		Language:   &p.Language,
		IsDefault:  &p.IsDefault,
		Containers: p.Containers,
	}, true)
}

func (s *Store) seedManaged(ctx context.Context, user, game string, m seed.Managed) error {
	_, err := s.GetManagedPlayer(ctx, user, game, m.Name)
	if errors.Is(err, model.ErrNotFound) {
		return s.AddManagedPlayer(ctx, model.ManagedPlayer{
			User:     user,
			Game:     game,
			Name:     m.Name,
			Fullname: m.Fullname,
			Email:    m.Email,
			Language: m.Language,
		}, m.Password)
	}
	if err != nil {
		return err
	}
	return s.UpdateManagedPlayer(ctx, user, game, m.Name, storage.ManagedUpdate{
		Fullname: &m.Fullname,
		Email:    &m.Email,
		Language: &m.Language,
		Password: m.Password,
	})
}
