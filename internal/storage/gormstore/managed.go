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

// AddManagedPlayer creates a player account owned by a game
func (s *Store) AddManagedPlayer(ctx context.Context, player model.ManagedPlayer, password *string) error {
	if _, err := s.tables.scope(model.ManagedPlayerScope(player.User, player.Game, player.Name)); err != nil {
		return err
	}

	_, err := s.GetManagedPlayer(ctx, player.User, player.Game, player.Name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: managed player %q of game %s/%s",
			model.ErrDuplicateEntity, player.Name, player.User, player.Game)
	case !errors.Is(err, model.ErrNotFound):
		return err
	}

	hash, err := s.hash(password, fmt.Sprintf("Password for player %s of %s/%s: ", player.Name, player.User, player.Game))
	if err != nil {
		return err
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		table, err := s.managedTable(tx, player.User, player.Game)
		if err != nil {
			return err
		}
		var existing managedRow
		found, err := take(tx, table, &existing, "name = ?", player.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: managed player %q of game %s/%s",
				model.ErrDuplicateEntity, player.Name, player.User, player.Game)
		}
		taken, err := names(tx, table)
		if err != nil {
			return err
		}
		if other, ok := clash(taken, player.Name); ok {
			return fmt.Errorf("%w: managed player %q of game %s/%s shares its tables with %q",
				model.ErrDuplicateEntity, player.Name, player.User, player.Game, other)
		}

		row := managedRow{
			Name:     player.Name,
			Fullname: player.Fullname,
			Email:    player.Email,
			Language: player.Language,
			Password: hash,
		}
		if err := tx.Table(table).Create(&row).Error; err != nil {
			return err
		}
		s.logger.Info("managed player added",
			zap.String("user", player.User),
			zap.String("game", player.Game),
			zap.String("player", player.Name))
		return nil
	})
}

// UpdateManagedPlayer changes the given fields of a managed player
func (s *Store) UpdateManagedPlayer(ctx context.Context, user, game, name string, upd storage.ManagedUpdate) error {
	var hash string
	if upd.Password != nil {
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return err
		}
		hash = h
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		row, table, err := s.findManaged(tx, user, game, name)
		if err != nil {
			return err
		}
		if upd.Fullname != nil {
			row.Fullname = *upd.Fullname
		}
		if upd.Email != nil {
			row.Email = *upd.Email
		}
		if upd.Language != nil {
			row.Language = *upd.Language
		}
		if upd.Password != nil {
			row.Password = hash
		}
		return tx.Table(table).Save(row).Error
	})
}

// RemoveManagedPlayer drops the player's tables and deletes its row
func (s *Store) RemoveManagedPlayer(ctx context.Context, user, game, name string) error {
	return s.run(ctx, func(tx *gorm.DB) error {
		return s.removeManaged(tx, user, game, name)
	})
}

func (s *Store) removeManaged(tx *gorm.DB, user, game, name string) error {
	_, table, err := s.findManaged(tx, user, game, name)
	if err != nil {
		return err
	}
	prefix, err := s.tables.scope(model.ManagedPlayerScope(user, game, name))
	if err != nil {
		return err
	}
	dropped, err := s.dropPrefixed(tx, prefix)
	if err != nil {
		return err
	}
	if err := tx.Table(table).Where("name = ?", name).Delete(&managedRow{}).Error; err != nil {
		return err
	}
	s.logger.Info("managed player removed",
		zap.String("user", user),
		zap.String("game", game),
		zap.String("player", name),
		zap.Int("tables", dropped))
	return nil
}

// GetManagedPlayer returns one managed player
func (s *Store) GetManagedPlayer(ctx context.Context, user, game, name string) (*model.ManagedPlayer, error) {
	var p model.ManagedPlayer
	err := s.run(ctx, func(tx *gorm.DB) error {
		row, _, err := s.findManaged(tx, user, game, name)
		if err != nil {
			return err
		}
		p = row.toModel(user, game)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListManagedPlayers returns the managed players of a game ordered by name
func (s *Store) ListManagedPlayers(ctx context.Context, user, game string) ([]model.ManagedPlayer, error) {
	var players []model.ManagedPlayer
	err := s.run(ctx, func(tx *gorm.DB) error {
		players = nil
		table, err := s.managedTable(tx, user, game)
		if err != nil {
			return err
		}
		var rows []managedRow
		if err := tx.Table(table).Order("name").Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			players = append(players, r.toModel(user, game))
		}
		return nil
	})
	return players, err
}

// managedTable resolves the managed player table of an existing game. A
// missing user or game is an unknown parent.
func (s *Store) managedTable(tx *gorm.DB, user, game string) (string, error) {
	if _, _, err := s.findGame(tx, user, game); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: game %q of user %q", model.ErrUnknownParent, game, user)
		}
		return "", err
	}
	table, err := s.tables.managed(user, game)
	if err != nil {
		return "", err
	}
	if !tx.Migrator().HasTable(table) {
		return "", fmt.Errorf("%w: managed player table of game %s/%s", model.ErrUnknownParent, user, game)
	}
	return table, nil
}

func (s *Store) findManaged(tx *gorm.DB, user, game, name string) (*managedRow, string, error) {
	table, err := s.managedTable(tx, user, game)
	if err != nil {
		return nil, "", err
	}
	var row managedRow
	found, err := take(tx, table, &row, "name = ?", name)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", fmt.Errorf("%w: managed player %q of game %s/%s", model.ErrNotFound, name, user, game)
	}
	return &row, table, nil
}
