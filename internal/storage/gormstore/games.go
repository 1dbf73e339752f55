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

// AddGame registers a game under its user. Containers[0] is the game's own
// container and defaults to the game name.
func (s *Store) AddGame(ctx context.Context, game model.Game, password *string) error {
	if _, err := s.tables.managed(game.User, game.Name); err != nil {
		return err
	}
	containers := normalize(game.Containers)
	if len(containers) == 0 {
		containers = []string{game.Name}
	}

	if err := s.checkNewGame(ctx, game.User, game.Name); err != nil {
		return err
	}
	hash, err := s.hash(password, fmt.Sprintf("Password for game %s/%s: ", game.User, game.Name))
	if err != nil {
		return err
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		if err := s.requireUser(tx, game.User); err != nil {
			return err
		}
		gamesTable, err := s.tables.games(game.User)
		if err != nil {
			return err
		}
		var existing gameRow
		found, err := take(tx, gamesTable, &existing, "name = ?", game.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: game %q of user %q", model.ErrDuplicateEntity, game.Name, game.User)
		}
		taken, err := names(tx, gamesTable)
		if err != nil {
			return err
		}
		if other, ok := clash(taken, game.Name); ok {
			return fmt.Errorf("%w: game %q of user %q shares its tables with %q",
				model.ErrDuplicateEntity, game.Name, game.User, other)
		}

		if err := s.increfAll(tx, game.User, containers); err != nil {
			return err
		}

		managedTable, err := s.tables.managed(game.User, game.Name)
		if err != nil {
			return err
		}
		if !tx.Migrator().HasTable(managedTable) {
			if err := tx.Table(managedTable).Migrator().CreateTable(&managedRow{}); err != nil {
				return fmt.Errorf("create table %s: %w", managedTable, err)
			}
		}

		row := gameRow{Name: game.Name, Fullname: game.Fullname, Password: hash, Containers: containers}
		if err := tx.Table(gamesTable).Create(&row).Error; err != nil {
			return err
		}

		s.logger.Info("game added",
			zap.String("user", game.User),
			zap.String("game", game.Name),
			zap.Strings("containers", containers))
		return nil
	})
}

// checkNewGame fails early, before any password prompt
func (s *Store) checkNewGame(ctx context.Context, user, name string) error {
	_, err := s.GetGame(ctx, user, name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: game %q of user %q", model.ErrDuplicateEntity, name, user)
	case errors.Is(err, model.ErrNotFound):
		return nil
	default:
		return err
	}
}

// UpdateGame changes a game. When the container list changes, removed
// containers are decremented (dropped at zero if removeOrphans is set) and
// added ones incremented.
func (s *Store) UpdateGame(ctx context.Context, user, name string, upd storage.GameUpdate, removeOrphans bool) error {
	if upd.Containers != nil && len(normalize(upd.Containers)) == 0 {
		return fmt.Errorf("%w: a game needs at least one container", model.ErrInvalidIdentifier)
	}
	var hash string
	if upd.Password != nil {
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return err
		}
		hash = h
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		row, table, err := s.findGame(tx, user, name)
		if err != nil {
			return err
		}

		if upd.Containers != nil {
			next := normalize(upd.Containers)
			if err := s.decrefAll(tx, user, difference(row.Containers, next), removeOrphans); err != nil {
				return err
			}
			if err := s.increfAll(tx, user, difference(next, row.Containers)); err != nil {
				return err
			}
			row.Containers = next
		}
		if upd.Fullname != nil {
			row.Fullname = *upd.Fullname
		}
		if upd.Password != nil {
			row.Password = hash
		}
		return tx.Table(table).Save(row).Error
	})
}

// RemoveGame removes a game, its managed players and its table, and
// decrements its containers
func (s *Store) RemoveGame(ctx context.Context, user, name string) error {
	return s.run(ctx, func(tx *gorm.DB) error {
		return s.removeGame(tx, user, name)
	})
}

func (s *Store) removeGame(tx *gorm.DB, user, name string) error {
	row, gamesTable, err := s.findGame(tx, user, name)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("user", user), zap.String("game", name))

	managedTable, err := s.tables.managed(user, name)
	if err != nil {
		return err
	}
	if tx.Migrator().HasTable(managedTable) {
		var players []managedRow
		if err := tx.Table(managedTable).Find(&players).Error; err != nil {
			return err
		}
		for _, p := range players {
			if err := s.removeManaged(tx, user, name, p.Name); err != nil {
				if !isNotFound(err) {
					return err
				}
				log.Warn("managed player already removed", zap.String("player", p.Name))
			}
		}
	} else {
		log.Warn("managed player table missing")
	}

	if err := s.decrefAll(tx, user, row.Containers, true); err != nil {
		return err
	}

	if tx.Migrator().HasTable(managedTable) {
		if err := tx.Migrator().DropTable(managedTable); err != nil {
			return err
		}
		s.metrics.TablesDropped.Inc()
	}

	if err := tx.Table(gamesTable).Where("name = ?", name).Delete(&gameRow{}).Error; err != nil {
		return err
	}
	log.Info("game removed")
	return nil
}

// GetGame returns a game
func (s *Store) GetGame(ctx context.Context, user, name string) (*model.Game, error) {
	var game model.Game
	err := s.run(ctx, func(tx *gorm.DB) error {
		row, _, err := s.findGame(tx, user, name)
		if err != nil {
			return err
		}
		game = row.toModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// ListGames returns the games of a user ordered by name
func (s *Store) ListGames(ctx context.Context, user string) ([]model.Game, error) {
	var games []model.Game
	err := s.run(ctx, func(tx *gorm.DB) error {
		games = nil
		if err := s.requireUser(tx, user); err != nil {
			return err
		}
		rows, err := s.gameRows(tx, user)
		if err != nil {
			return err
		}
		for _, r := range rows {
			games = append(games, r.toModel(user))
		}
		return nil
	})
	return games, err
}

// findGame loads a game row and returns the registry it lives in. A missing
// user surfaces as ErrUnknownParent, a missing game as ErrNotFound.
func (s *Store) findGame(tx *gorm.DB, user, name string) (*gameRow, string, error) {
	if err := s.requireUser(tx, user); err != nil {
		return nil, "", err
	}
	table, err := s.tables.games(user)
	if err != nil {
		return nil, "", err
	}
	if !tx.Migrator().HasTable(table) {
		return nil, "", fmt.Errorf("%w: game registry of user %q", model.ErrNotFound, user)
	}
	var row gameRow
	found, err := take(tx, table, &row, "name = ?", name)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", fmt.Errorf("%w: game %q of user %q", model.ErrNotFound, name, user)
	}
	return &row, table, nil
}

func (s *Store) gameRows(tx *gorm.DB, user string) ([]gameRow, error) {
	table, err := s.tables.games(user)
	if err != nil {
		return nil, err
	}
	if !tx.Migrator().HasTable(table) {
		return nil, fmt.Errorf("%w: game registry of user %q", model.ErrNotFound, user)
	}
	var rows []gameRow
	if err := tx.Table(table).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
