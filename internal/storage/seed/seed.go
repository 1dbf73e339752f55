// Package seed parses the declarative user definition file and the table
// definition file used by storage setup.
//
// A user definition file is made of blocks of "key: value" lines. The
// indentation of a block selects what it defines:
//
//	user: alice                  <- level 0: user
//	name: Alice
//	password: secret
//	    game: chess              <- level 1: game (or remote player)
//	    name: Chess
//	        player: bob          <- level 2: managed player of chess
//	        password: hunter2
//
// A blank line or a comment line ends a block, as does a change of
// indentation.
package seed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// File is a parsed user definition file
type File struct {
	Users []User
}

// User is a level 0 block
type User struct {
	Line     int
	Name     string
	Fullname string
	Email    string
	Password *string
	Games    []Game
	Players  []Player
}

// Game is a level 1 block with a "game" key
type Game struct {
	Line       int
	Name       string
	Fullname   string
	Password   *string
	Containers []string
	Managed    []Managed
}

// Player is a level 1 block with a "player" key
type Player struct {
	Line       int
	Name       string
	URL        string
	Fullname   string
	Language   string
	IsDefault  bool
	Containers []string
}

// Managed is a level 2 block
type Managed struct {
	Line     int
	Name     string
	Fullname string
	Email    string
	Language string
	Password *string
}

var allowedKeys = map[string]map[string]bool{
	"user":    {"user": true, "name": true, "email": true, "password": true},
	"game":    {"game": true, "name": true, "password": true, "containers": true},
	"player":  {"player": true, "url": true, "name": true, "language": true, "is_default": true, "containers": true},
	"managed": {"player": true, "name": true, "password": true, "email": true, "language": true},
}

// ParseFile parses the user definition file at path
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses a user definition file
func Parse(r io.Reader) (*File, error) {
	p := &parser{file: &File{}, widths: []int{0}}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if err := p.flush(); err != nil {
				return nil, err
			}
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key: value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if p.block == nil || indent != p.block.indent {
			if err := p.flush(); err != nil {
				return nil, err
			}
			p.block = &block{indent: indent, line: lineNo, values: map[string]string{}}
		}

		if _, dup := p.block.values[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate key %q", lineNo, key)
		}
		p.block.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.file, nil
}

type block struct {
	indent int
	line   int
	values map[string]string
}

type parser struct {
	file  *File
	block *block
	// widths maps level to indentation width, as first seen
	widths []int

	user *User
	game *Game
}

func (p *parser) level(indent int) (int, error) {
	if indent == 0 {
		p.widths = p.widths[:1]
		return 0, nil
	}
	for lvl := 1; lvl < len(p.widths); lvl++ {
		if p.widths[lvl] == indent {
			p.widths = p.widths[:lvl+1]
			return lvl, nil
		}
	}
	if indent > p.widths[len(p.widths)-1] && len(p.widths) < 3 {
		p.widths = append(p.widths, indent)
		return len(p.widths) - 1, nil
	}
	return 0, fmt.Errorf("inconsistent indentation")
}

func (p *parser) flush() error {
	b := p.block
	p.block = nil
	if b == nil || len(b.values) == 0 {
		return nil
	}

	lvl, err := p.level(b.indent)
	if err != nil {
		return fmt.Errorf("line %d: %w", b.line, err)
	}

	switch lvl {
	case 0:
		return p.addUser(b)
	case 1:
		if p.user == nil {
			return fmt.Errorf("line %d: indented block outside a user", b.line)
		}
		if _, ok := b.values["game"]; ok {
			return p.addGame(b)
		}
		if _, ok := b.values["player"]; ok {
			return p.addPlayer(b)
		}
		return fmt.Errorf("line %d: block defines neither a game nor a player", b.line)
	default:
		if p.game == nil {
			return fmt.Errorf("line %d: managed player outside a game", b.line)
		}
		return p.addManaged(b)
	}
}

func (p *parser) addUser(b *block) error {
	if err := checkKeys(b, "user", "user"); err != nil {
		return err
	}
	p.file.Users = append(p.file.Users, User{
		Line:     b.line,
		Name:     b.values["user"],
		Fullname: b.values["name"],
		Email:    b.values["email"],
		Password: optional(b, "password"),
	})
	p.user = &p.file.Users[len(p.file.Users)-1]
	p.game = nil
	return nil
}

func (p *parser) addGame(b *block) error {
	if err := checkKeys(b, "game", "game"); err != nil {
		return err
	}
	p.user.Games = append(p.user.Games, Game{
		Line:       b.line,
		Name:       b.values["game"],
		Fullname:   b.values["name"],
		Password:   optional(b, "password"),
		Containers: splitList(b.values["containers"]),
	})
	p.game = &p.user.Games[len(p.user.Games)-1]
	return nil
}

func (p *parser) addPlayer(b *block) error {
	if err := checkKeys(b, "player", "player", "url"); err != nil {
		return err
	}
	isDefault := false
	if raw, ok := b.values["is_default"]; ok && raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("line %d: is_default: %w", b.line, err)
		}
		isDefault = v
	}
	p.user.Players = append(p.user.Players, Player{
		Line:       b.line,
		Name:       b.values["player"],
		URL:        b.values["url"],
		Fullname:   b.values["name"],
		Language:   b.values["language"],
		IsDefault:  isDefault,
		Containers: splitList(b.values["containers"]),
	})
	p.game = nil
	return nil
}

func (p *parser) addManaged(b *block) error {
	if err := checkKeys(b, "managed", "player"); err != nil {
		return err
	}
	p.game.Managed = append(p.game.Managed, Managed{
		Line:     b.line,
		Name:     b.values["player"],
		Fullname: b.values["name"],
		Email:    b.values["email"],
		Language: b.values["language"],
		Password: optional(b, "password"),
	})
	return nil
}

func checkKeys(b *block, kind string, required ...string) error {
	for key := range b.values {
		if !allowedKeys[kind][key] {
			return fmt.Errorf("line %d: unknown %s key %q", b.line, kind, key)
		}
	}
	for _, key := range required {
		if b.values[key] == "" {
			return fmt.Errorf("line %d: %s block requires %q", b.line, kind, key)
		}
	}
	return nil
}

func optional(b *block, key string) *string {
	v, ok := b.values[key]
	if !ok {
		return nil
	}
	return &v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
