package gormstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

// AddUser creates a user and its registries. A nil password is prompted for.
func (s *Store) AddUser(ctx context.Context, user model.User, password *string) error {
	if _, err := s.tables.namespace(user.Name); err != nil {
		return err
	}

	// Check first so a duplicate never prompts.
	if _, err := s.GetUser(ctx, user.Name); err == nil {
		return fmt.Errorf("%w: user %q", model.ErrDuplicateEntity, user.Name)
	} else if !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrUnknownParent) {
		return err
	}

	hash, err := s.hash(password, fmt.Sprintf("Password for user %s: ", user.Name))
	if err != nil {
		return err
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		if err := s.ensureUserTable(tx); err != nil {
			return err
		}

		var existing userRow
		found, err := take(tx, s.tables.users(), &existing, "name = ?", user.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: user %q", model.ErrDuplicateEntity, user.Name)
		}
		taken, err := names(tx, s.tables.users())
		if err != nil {
			return err
		}
		if other, ok := clash(taken, user.Name); ok {
			return fmt.Errorf("%w: user %q shares its tables with %q", model.ErrDuplicateEntity, user.Name, other)
		}

		row := userRow{Name: user.Name, Fullname: user.Fullname, Email: user.Email, Password: hash}
		if err := tx.Table(s.tables.users()).Create(&row).Error; err != nil {
			return err
		}

		if err := s.createRegistries(tx, user.Name); err != nil {
			return err
		}

		s.logger.Info("user added", zap.String("user", user.Name))
		return nil
	})
}

// UpdateUser changes the given fields of a user
func (s *Store) UpdateUser(ctx context.Context, name string, upd storage.UserUpdate) error {
	var hash string
	if upd.Password != nil {
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return err
		}
		hash = h
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		row, err := s.findUser(tx, name)
		if err != nil {
			return err
		}
		if upd.Fullname != nil {
			row.Fullname = *upd.Fullname
		}
		if upd.Email != nil {
			row.Email = *upd.Email
		}
		if upd.Password != nil {
			row.Password = hash
		}
		return tx.Table(s.tables.users()).Save(row).Error
	})
}

// RemoveUser removes a user with all its games, remote players and
// containers. Children that are already gone are logged and skipped.
func (s *Store) RemoveUser(ctx context.Context, name string) error {
	return s.run(ctx, func(tx *gorm.DB) error {
		if _, err := s.findUser(tx, name); err != nil {
			return err
		}
		log := s.logger.With(zap.String("user", name))

		games, err := s.gameRows(tx, name)
		if err != nil {
			log.Warn("listing games for removal", zap.Error(err))
		}
		for _, g := range games {
			if err := s.removeGame(tx, name, g.Name); err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					return err
				}
				log.Warn("game already removed", zap.String("game", g.Name), zap.Error(err))
			}
		}

		players, err := s.playerRows(tx, name, "")
		if err != nil {
			log.Warn("listing remote players for removal", zap.Error(err))
		}
		for _, p := range players {
			if err := s.removeRemotePlayer(tx, name, p.URL, p.Name); err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					return err
				}
				log.Warn("remote player already removed", zap.String("player", p.Name), zap.Error(err))
			}
		}

		// Whatever is left has a non-positive count or was never referenced.
		containers, err := s.containerRows(tx, name)
		if err != nil {
			log.Warn("listing containers for removal", zap.Error(err))
		}
		for _, c := range containers {
			if err := s.dropContainer(tx, name, c.Name); err != nil {
				return err
			}
		}

		namespace, err := s.tables.namespace(name)
		if err != nil {
			return err
		}
		if _, err := s.dropPrefixed(tx, namespace); err != nil {
			return err
		}

		if err := tx.Table(s.tables.users()).Where("name = ?", name).Delete(&userRow{}).Error; err != nil {
			return err
		}
		log.Info("user removed")
		return nil
	})
}

// GetUser returns a user by name
func (s *Store) GetUser(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	err := s.run(ctx, func(tx *gorm.DB) error {
		row, err := s.findUser(tx, name)
		if err != nil {
			return err
		}
		user = row.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users ordered by name
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.run(ctx, func(tx *gorm.DB) error {
		users = nil
		if !tx.Migrator().HasTable(s.tables.users()) {
			return nil
		}
		var rows []userRow
		if err := tx.Table(s.tables.users()).Order("name").Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			users = append(users, r.toModel())
		}
		return nil
	})
	return users, err
}

// findUser loads a user row; a missing row (or user table) is ErrNotFound
func (s *Store) findUser(tx *gorm.DB, name string) (*userRow, error) {
	if !tx.Migrator().HasTable(s.tables.users()) {
		return nil, fmt.Errorf("%w: user %q", model.ErrNotFound, name)
	}
	var row userRow
	found, err := take(tx, s.tables.users(), &row, "name = ?", name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: user %q", model.ErrNotFound, name)
	}
	return &row, nil
}

// requireUser is findUser for child operations: a missing user is an
// unknown parent
func (s *Store) requireUser(tx *gorm.DB, name string) error {
	_, err := s.findUser(tx, name)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: user %q", model.ErrUnknownParent, name)
	}
	return err
}

func (s *Store) ensureUserTable(tx *gorm.DB) error {
	if tx.Migrator().HasTable(s.tables.users()) {
		return nil
	}
	return tx.Table(s.tables.users()).Migrator().CreateTable(&userRow{})
}

func (s *Store) createRegistries(tx *gorm.DB, user string) error {
	containers, err := s.tables.containers(user)
	if err != nil {
		return err
	}
	games, err := s.tables.games(user)
	if err != nil {
		return err
	}
	players, err := s.tables.players(user)
	if err != nil {
		return err
	}

	for _, t := range []struct {
		name string
		row  any
	}{
		{containers, &containerRow{}},
		{games, &gameRow{}},
		{players, &playerRow{}},
	} {
		if tx.Migrator().HasTable(t.name) {
			continue
		}
		if err := tx.Table(t.name).Migrator().CreateTable(t.row); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	return nil
}
