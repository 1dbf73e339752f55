package gormstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/model"
)

// incref creates the container with count 1 or increments it
func (s *Store) incref(tx *gorm.DB, user, container string) error {
	// Validates the container name before anything is written.
	if _, err := s.tables.scope(model.ContainerScope(user, container)); err != nil {
		return err
	}
	table, err := s.tables.containers(user)
	if err != nil {
		return err
	}

	var row containerRow
	found, err := take(tx, table, &row, "name = ?", container)
	if err != nil {
		return err
	}
	if found {
		return tx.Table(table).Where("name = ?", container).
			Update("refcount", gorm.Expr("refcount + ?", 1)).Error
	}

	taken, err := names(tx, table)
	if err != nil {
		return err
	}
	if other, ok := clash(taken, container); ok {
		return fmt.Errorf("%w: container %q of user %q shares its tables with %q",
			model.ErrInvalidIdentifier, container, user, other)
	}
	return tx.Table(table).Create(&containerRow{Name: container, Refcount: 1}).Error
}

// decref decrements the container. At zero or below it is dropped together
// with its data tables when removeOrphans is set; otherwise it is left for
// ReconcileContainers.
func (s *Store) decref(tx *gorm.DB, user, container string, removeOrphans bool) error {
	table, err := s.tables.containers(user)
	if err != nil {
		return err
	}

	var row containerRow
	found, err := take(tx, table, &row, "name = ?", container)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: container %q of user %q", model.ErrNotFound, container, user)
	}

	count := row.Refcount - 1
	if count <= 0 && removeOrphans {
		return s.dropContainer(tx, user, container)
	}
	return tx.Table(table).Where("name = ?", container).Update("refcount", count).Error
}

// dropContainer drops the container's data tables and its row
func (s *Store) dropContainer(tx *gorm.DB, user, container string) error {
	prefix, err := s.tables.scope(model.ContainerScope(user, container))
	if err != nil {
		return err
	}
	table, err := s.tables.containers(user)
	if err != nil {
		return err
	}

	dropped, err := s.dropPrefixed(tx, prefix)
	if err != nil {
		return err
	}
	if err := tx.Table(table).Where("name = ?", container).Delete(&containerRow{}).Error; err != nil {
		return err
	}

	s.metrics.ContainersDropped.Inc()
	s.logger.Info("container dropped",
		zap.String("user", user),
		zap.String("container", container),
		zap.Int("tables", dropped))
	return nil
}

// decrefAll decrements each container, logging the ones already gone
func (s *Store) decrefAll(tx *gorm.DB, user string, containers []string, removeOrphans bool) error {
	for _, c := range containers {
		if err := s.decref(tx, user, c, removeOrphans); err != nil {
			if !isNotFound(err) {
				return err
			}
			s.logger.Warn("container already removed",
				zap.String("user", user),
				zap.String("container", c))
		}
	}
	return nil
}

func (s *Store) increfAll(tx *gorm.DB, user string, containers []string) error {
	for _, c := range containers {
		if err := s.incref(tx, user, c); err != nil {
			return err
		}
	}
	return nil
}

// GetContainer returns a container and its reference count
func (s *Store) GetContainer(ctx context.Context, user, name string) (*model.Container, error) {
	var c model.Container
	err := s.run(ctx, func(tx *gorm.DB) error {
		row, err := s.findContainer(tx, user, name)
		if err != nil {
			return err
		}
		c = model.Container{User: user, Name: row.Name, Refcount: row.Refcount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContainers returns the containers of a user ordered by name
func (s *Store) ListContainers(ctx context.Context, user string) ([]model.Container, error) {
	var out []model.Container
	err := s.run(ctx, func(tx *gorm.DB) error {
		out = nil
		if err := s.requireUser(tx, user); err != nil {
			return err
		}
		rows, err := s.containerRows(tx, user)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out = append(out, model.Container{User: user, Name: r.Name, Refcount: r.Refcount})
		}
		return nil
	})
	return out, err
}

// ReconcileContainers drops every container of user whose count is not
// positive and returns how many were dropped
func (s *Store) ReconcileContainers(ctx context.Context, user string) (int, error) {
	var dropped int
	err := s.run(ctx, func(tx *gorm.DB) error {
		dropped = 0
		if err := s.requireUser(tx, user); err != nil {
			return err
		}
		table, err := s.tables.containers(user)
		if err != nil {
			return err
		}
		var rows []containerRow
		if err := tx.Table(table).Where("refcount <= ?", 0).Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			if err := s.dropContainer(tx, user, r.Name); err != nil {
				return err
			}
			dropped++
		}
		return nil
	})
	return dropped, err
}

func (s *Store) containerRows(tx *gorm.DB, user string) ([]containerRow, error) {
	table, err := s.tables.containers(user)
	if err != nil {
		return nil, err
	}
	if !tx.Migrator().HasTable(table) {
		return nil, fmt.Errorf("%w: container registry of user %q", model.ErrNotFound, user)
	}
	var rows []containerRow
	if err := tx.Table(table).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) findContainer(tx *gorm.DB, user, name string) (*containerRow, error) {
	if err := s.requireUser(tx, user); err != nil {
		return nil, err
	}
	table, err := s.tables.containers(user)
	if err != nil {
		return nil, err
	}
	var row containerRow
	found, err := take(tx, table, &row, "name = ?", name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: container %q of user %q", model.ErrNotFound, name, user)
	}
	return &row, nil
}
