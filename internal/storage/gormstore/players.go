package gormstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

// AddRemotePlayer binds (user, url, name) to its containers. A default
// player replaces any previous default for the same (user, url).
func (s *Store) AddRemotePlayer(ctx context.Context, player model.RemotePlayer) error {
	if _, err := s.tables.scope(model.RemotePlayerScope(player.User, player.URL, player.Name)); err != nil {
		return err
	}
	containers := normalize(player.Containers)
	if len(containers) == 0 {
		containers = []string{player.Name}
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		if err := s.requireUser(tx, player.User); err != nil {
			return err
		}
		table, err := s.tables.players(player.User)
		if err != nil {
			return err
		}
		var existing playerRow
		found, err := take(tx, table, &existing, "url = ? AND name = ?", player.URL, player.Name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: player %q at %q of user %q",
				model.ErrDuplicateEntity, player.Name, player.URL, player.User)
		}
		if err := playerClash(tx, table, player); err != nil {
			return err
		}

		if player.IsDefault {
			if err := clearDefault(tx, table, player.URL); err != nil {
				return err
			}
		}
		if err := s.increfAll(tx, player.User, containers); err != nil {
			return err
		}

		row := playerRow{
			URL:        player.URL,
			Name:       player.Name,
			Fullname:   player.Fullname,
			Language:   player.Language,
			IsDefault:  player.IsDefault,
			Containers: containers,
		}
		if err := tx.Table(table).Create(&row).Error; err != nil {
			return err
		}

		s.logger.Info("remote player added",
			zap.String("user", player.User),
			zap.String("url", player.URL),
			zap.String("player", player.Name),
			zap.Bool("default", player.IsDefault))
		return nil
	})
}

// UpdateRemotePlayer changes a remote player, adjusting container counts
// the same way UpdateGame does
func (s *Store) UpdateRemotePlayer(ctx context.Context, user, url, name string, upd storage.PlayerUpdate, removeOrphans bool) error {
	if upd.Containers != nil && len(normalize(upd.Containers)) == 0 {
		return fmt.Errorf("%w: a player needs at least one container", model.ErrInvalidIdentifier)
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		row, table, err := s.findPlayer(tx, user, url, name)
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
		if upd.IsDefault != nil {
			if *upd.IsDefault && !row.IsDefault {
				if err := clearDefault(tx, table, url); err != nil {
					return err
				}
			}
			row.IsDefault = *upd.IsDefault
		}
		if upd.Fullname != nil {
			row.Fullname = *upd.Fullname
		}
		if upd.Language != nil {
			row.Language = *upd.Language
		}
		return tx.Table(table).Save(row).Error
	})
}

// RemoveRemotePlayer drops the player's own tables, decrements its
// containers and deletes its row
func (s *Store) RemoveRemotePlayer(ctx context.Context, user, url, name string) error {
	return s.run(ctx, func(tx *gorm.DB) error {
		return s.removeRemotePlayer(tx, user, url, name)
	})
}

func (s *Store) removeRemotePlayer(tx *gorm.DB, user, url, name string) error {
	row, table, err := s.findPlayer(tx, user, url, name)
	if err != nil {
		return err
	}

	prefix, err := s.tables.scope(model.RemotePlayerScope(user, url, name))
	if err != nil {
		return err
	}
	if _, err := s.dropPrefixed(tx, prefix); err != nil {
		return err
	}
	if err := s.decrefAll(tx, user, row.Containers, true); err != nil {
		return err
	}
	if err := tx.Table(table).Delete(&playerRow{}, row.ID).Error; err != nil {
		return err
	}

	s.logger.Info("remote player removed",
		zap.String("user", user),
		zap.String("url", url),
		zap.String("player", name))
	return nil
}

// GetRemotePlayer returns one remote player
func (s *Store) GetRemotePlayer(ctx context.Context, user, url, name string) (*model.RemotePlayer, error) {
	var p model.RemotePlayer
	err := s.run(ctx, func(tx *gorm.DB) error {
		row, _, err := s.findPlayer(tx, user, url, name)
		if err != nil {
			return err
		}
		p = row.toModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListRemotePlayers returns the remote players of a user at url, or at every
// url when url is empty
func (s *Store) ListRemotePlayers(ctx context.Context, user, url string) ([]model.RemotePlayer, error) {
	var players []model.RemotePlayer
	err := s.run(ctx, func(tx *gorm.DB) error {
		players = nil
		if err := s.requireUser(tx, user); err != nil {
			return err
		}
		rows, err := s.playerRows(tx, user, url)
		if err != nil {
			return err
		}
		for _, r := range rows {
			players = append(players, r.toModel(user))
		}
		return nil
	})
	return players, err
}

// DefaultRemotePlayer returns the flagged default player for (user, url).
// Without one, a sole player at url is the default; otherwise ErrNotFound.
func (s *Store) DefaultRemotePlayer(ctx context.Context, user, url string) (*model.RemotePlayer, error) {
	var p model.RemotePlayer
	err := s.run(ctx, func(tx *gorm.DB) error {
		if err := s.requireUser(tx, user); err != nil {
			return err
		}
		rows, err := s.playerRows(tx, user, url)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.IsDefault {
				p = r.toModel(user)
				return nil
			}
		}
		if len(rows) == 1 {
			p = rows[0].toModel(user)
			return nil
		}
		return fmt.Errorf("%w: no default player at %q for user %q", model.ErrNotFound, url, user)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) findPlayer(tx *gorm.DB, user, url, name string) (*playerRow, string, error) {
	if err := s.requireUser(tx, user); err != nil {
		return nil, "", err
	}
	table, err := s.tables.players(user)
	if err != nil {
		return nil, "", err
	}
	if !tx.Migrator().HasTable(table) {
		return nil, "", fmt.Errorf("%w: player registry of user %q", model.ErrNotFound, user)
	}
	var row playerRow
	found, err := take(tx, table, &row, "url = ? AND name = ?", url, name)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", fmt.Errorf("%w: player %q at %q of user %q", model.ErrNotFound, name, url, user)
	}
	return &row, table, nil
}

// playerRows lists a user's remote players, restricted to url unless empty
func (s *Store) playerRows(tx *gorm.DB, user, url string) ([]playerRow, error) {
	table, err := s.tables.players(user)
	if err != nil {
		return nil, err
	}
	if !tx.Migrator().HasTable(table) {
		return nil, fmt.Errorf("%w: player registry of user %q", model.ErrNotFound, user)
	}
	q := tx.Table(table)
	if url != "" {
		q = q.Where("url = ?", url)
	}
	var rows []playerRow
	if err := q.Order("url").Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func clearDefault(tx *gorm.DB, table, url string) error {
	return tx.Table(table).
		Where("url = ? AND is_default = ?", url, true).
		Update("is_default", false).Error
}

// playerClash rejects a player whose data tables would be another player's
func playerClash(tx *gorm.DB, table string, player model.RemotePlayer) error {
	var rows []playerRow
	if err := tx.Table(table).Select("url", "name").Find(&rows).Error; err != nil {
		return err
	}
	key := foldKey(player.URL, player.Name)
	for _, row := range rows {
		if row.URL == player.URL && row.Name == player.Name {
			continue
		}
		if foldKey(row.URL, row.Name) == key {
			return fmt.Errorf("%w: player %q at %q of user %q shares its tables with %q at %q",
				model.ErrDuplicateEntity, player.Name, player.URL, player.User, row.Name, row.URL)
		}
	}
	return nil
}
