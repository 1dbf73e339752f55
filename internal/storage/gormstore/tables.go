package gormstore

import (
	"fmt"
	"strings"

	"github.com/mcoot/userdata/internal/mangle"
	"github.com/mcoot/userdata/internal/model"
)

// Fixed name segments. They sit at fixed positions between mangled parts,
// which keeps e.g. a container and a game of the same name apart.
const (
	userTable       = "user"
	segContainers   = "containers"
	segGames        = "games"
	segPlayers      = "players"
	segGame         = "game"
	segManagedTable = "player"
	segData         = "data"
	segManaged      = "managed"
	segRemote       = "remote"
)

// tables generates table names for a global prefix
type tables struct {
	prefix string
	// maxLen bounds identifier length; zero means unbounded
	maxLen int
}

// fit rejects names the database would silently truncate
func (t tables) fit(name string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if t.maxLen > 0 && len(name) > t.maxLen {
		return "", fmt.Errorf("%w: %q is longer than %d bytes", model.ErrInvalidIdentifier, name, t.maxLen)
	}
	return name, nil
}

// users returns the global user registry
func (t tables) users() string {
	return t.prefix + userTable
}

// namespace returns the prefix shared by every table of a user
func (t tables) namespace(user string) (string, error) {
	return t.fit(mangle.Prefix(t.prefix, user))
}

// containers returns the per-user container registry
func (t tables) containers(user string) (string, error) {
	return t.fit(mangle.TableName(t.prefix, user, segContainers))
}

// games returns the per-user game registry
func (t tables) games(user string) (string, error) {
	return t.fit(mangle.TableName(t.prefix, user, segGames))
}

// players returns the per-user remote player registry
func (t tables) players(user string) (string, error) {
	return t.fit(mangle.TableName(t.prefix, user, segPlayers))
}

// managed returns the managed player table of a game
func (t tables) managed(user, game string) (string, error) {
	return t.fit(mangle.TableName(t.prefix, user, segGame, game, segManagedTable))
}

// scope returns the prefix of every data table under scope
func (t tables) scope(scope model.Scope) (string, error) {
	switch scope.Kind {
	case model.ScopeContainer:
		return t.fit(mangle.Prefix(t.prefix, scope.User, segData, scope.Container))
	case model.ScopeRemotePlayer:
		return t.fit(mangle.Prefix(t.prefix, scope.User, segRemote, scope.URL, scope.Player))
	case model.ScopeManagedPlayer:
		return t.fit(mangle.Prefix(t.prefix, scope.User, segGame, scope.Game, segManaged, scope.Player))
	default:
		return "", fmt.Errorf("%w: unknown scope kind %d", model.ErrInvalidIdentifier, scope.Kind)
	}
}

// dataTable returns the full name of a data table under scope
func (t tables) dataTable(scope model.Scope, name string) (string, error) {
	prefix, err := t.scope(scope)
	if err != nil {
		return "", err
	}
	mangled, err := mangle.Mangle(name)
	if err != nil {
		return "", err
	}
	full := prefix + mangled
	return t.fit(full, mangle.ValidateIdentifier(full))
}

// foldKey is the identity of parts as table names. sqlite compares
// identifiers without regard to case and Mangle's escapes can meet a literal
// name, so two entities with equal keys would share tables.
func foldKey(parts ...string) string {
	folded := make([]string, len(parts))
	for i, part := range parts {
		m, err := mangle.Mangle(part)
		if err != nil {
			m = part
		}
		folded[i] = strings.ToLower(m)
	}
	return strings.Join(folded, "_")
}

// clash returns the first of existing, other than name itself, whose tables
// would be name's
func clash(existing []string, name string) (string, bool) {
	key := foldKey(name)
	for _, other := range existing {
		if other != name && foldKey(other) == key {
			return other, true
		}
	}
	return "", false
}
