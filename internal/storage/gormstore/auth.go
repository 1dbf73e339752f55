package gormstore

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/model"
)

// AuthenticateUser verifies a user's password. Every failure is
// model.ErrAuth; only the log says which check failed.
func (s *Store) AuthenticateUser(ctx context.Context, name, password string) (*model.Identity, error) {
	var row *userRow
	err := s.run(ctx, func(tx *gorm.DB) error {
		r, err := s.findUser(tx, name)
		if err != nil && !isNotFound(err) {
			return err
		}
		row = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := ""
	if row != nil {
		stored = row.Password
	}
	if !s.verify(row != nil, stored, password, zap.String("kind", "user"), zap.String("user", name)) {
		return nil, model.ErrAuth
	}
	return &model.Identity{Name: row.Name, Fullname: row.Fullname}, nil
}

// AuthenticateGame verifies a game's password and returns its containers
func (s *Store) AuthenticateGame(ctx context.Context, user, game, password string) (*model.GameIdentity, error) {
	var row *gameRow
	err := s.run(ctx, func(tx *gorm.DB) error {
		r, _, err := s.findGame(tx, user, game)
		if err != nil && !isNotFound(err) && !isUnknownParent(err) {
			return err
		}
		row = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := ""
	if row != nil {
		stored = row.Password
	}
	if !s.verify(row != nil, stored, password,
		zap.String("kind", "game"), zap.String("user", user), zap.String("game", game)) {
		return nil, model.ErrAuth
	}
	return &model.GameIdentity{
		Identity:   model.Identity{Name: row.Name, Fullname: row.Fullname, User: user},
		Containers: row.Containers,
	}, nil
}

// AuthenticateManagedPlayer verifies a managed player's password
func (s *Store) AuthenticateManagedPlayer(ctx context.Context, user, game, name, password string) (*model.Identity, error) {
	var row *managedRow
	err := s.run(ctx, func(tx *gorm.DB) error {
		r, _, err := s.findManaged(tx, user, game, name)
		if err != nil && !isNotFound(err) && !isUnknownParent(err) {
			return err
		}
		row = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := ""
	if row != nil {
		stored = row.Password
	}
	if !s.verify(row != nil, stored, password,
		zap.String("kind", "managed"), zap.String("user", user),
		zap.String("game", game), zap.String("player", name)) {
		return nil, model.ErrAuth
	}
	return &model.Identity{
		Name:     row.Name,
		Fullname: row.Fullname,
		Managed:  row.Name,
		User:     user,
		Game:     game,
	}, nil
}

// verify checks password against stored. On a lookup miss the dummy hash is
// checked instead so both failure paths take the same time.
func (s *Store) verify(found bool, stored, password string, fields ...zap.Field) bool {
	if !found {
		s.hasher.Verify(password, s.dummyHash())
		s.logger.Info("authentication failed: unknown principal", fields...)
		return false
	}
	if !s.hasher.Verify(password, stored) {
		s.logger.Info("authentication failed: wrong password", fields...)
		return false
	}
	s.logger.Debug("authenticated", fields...)
	return true
}
