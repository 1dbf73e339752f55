package gormstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mcoot/userdata/internal/mangle"
	"github.com/mcoot/userdata/internal/model"
)

// columnTypePattern whitelists the portable column types, optionally
// followed by NOT NULL, PRIMARY KEY or UNIQUE
var columnTypePattern = regexp.MustCompile(
	`^(INTEGER|BIGINT|REAL|TEXT|BLOB|BOOLEAN|VARCHAR\([0-9]{1,5}\))((?: NOT NULL| PRIMARY KEY| UNIQUE)*)$`)

// Provision creates the data tables of a scope that do not exist yet. The
// scope's owner (container, remote player or managed player) must exist.
func (s *Store) Provision(ctx context.Context, scope model.Scope, specs []model.TableSpec) error {
	type column struct{ name, typ string }
	type planned struct {
		table   string
		columns []column
	}
	plan := make([]planned, 0, len(specs))
	for _, spec := range specs {
		table, err := s.tables.dataTable(scope, spec.Name)
		if err != nil {
			return err
		}
		if len(spec.Columns) == 0 {
			return fmt.Errorf("%w: table %q has no columns", model.ErrInvalidIdentifier, spec.Name)
		}
		cols := make([]column, 0, len(spec.Columns))
		for _, c := range spec.Columns {
			if err := mangle.ValidateIdentifier(c.Name); err != nil {
				return fmt.Errorf("table %q column: %w", spec.Name, err)
			}
			typ, err := s.columnType(c.Type)
			if err != nil {
				return fmt.Errorf("table %q column %q: %w", spec.Name, c.Name, err)
			}
			cols = append(cols, column{name: c.Name, typ: typ})
		}
		plan = append(plan, planned{table: table, columns: cols})
	}

	return s.run(ctx, func(tx *gorm.DB) error {
		if err := s.requireScope(tx, scope); err != nil {
			return err
		}
		for _, p := range plan {
			if tx.Migrator().HasTable(p.table) {
				continue
			}
			defs := make([]string, len(p.columns))
			for i, c := range p.columns {
				defs[i] = tx.Statement.Quote(c.name) + " " + c.typ
			}
			sql := fmt.Sprintf("CREATE TABLE %s (%s)", tx.Statement.Quote(p.table), strings.Join(defs, ", "))
			if err := tx.Exec(sql).Error; err != nil {
				return fmt.Errorf("create table %s: %w", p.table, err)
			}
			s.logger.Debug("provisioned table",
				zap.String("scope", scope.Kind.String()),
				zap.String("table", p.table))
		}
		return nil
	})
}

// ListTables returns the names of the data tables under scope
func (s *Store) ListTables(ctx context.Context, scope model.Scope) ([]string, error) {
	prefix, err := s.tables.scope(scope)
	if err != nil {
		return nil, err
	}
	var out []string
	err = s.run(ctx, func(tx *gorm.DB) error {
		out = nil
		names, err := tx.Migrator().GetTables()
		if err != nil {
			return err
		}
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// columnType normalises a declared type and maps it onto the driver
func (s *Store) columnType(raw string) (string, error) {
	typ := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if !columnTypePattern.MatchString(typ) {
		return "", fmt.Errorf("%w: unsupported column type %q", model.ErrInvalidIdentifier, raw)
	}
	if s.cfg.Driver == DriverPostgres && strings.HasPrefix(typ, "BLOB") {
		typ = "BYTEA" + strings.TrimPrefix(typ, "BLOB")
	}
	return typ, nil
}

// requireScope fails with ErrUnknownParent unless the owner of scope exists
func (s *Store) requireScope(tx *gorm.DB, scope model.Scope) error {
	var err error
	switch scope.Kind {
	case model.ScopeContainer:
		_, err = s.findContainer(tx, scope.User, scope.Container)
	case model.ScopeRemotePlayer:
		_, _, err = s.findPlayer(tx, scope.User, scope.URL, scope.Player)
	case model.ScopeManagedPlayer:
		_, _, err = s.findManaged(tx, scope.User, scope.Game, scope.Player)
	default:
		return fmt.Errorf("%w: unknown scope kind %d", model.ErrInvalidIdentifier, scope.Kind)
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s scope: %v", model.ErrUnknownParent, scope.Kind, err)
	}
	return err
}
