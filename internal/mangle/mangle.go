// Package mangle turns arbitrary names into safe SQL identifiers.
//
// Every dynamic segment of a table name passes through Mangle before it is
// composed into SQL text. Fixed names are checked with ValidateIdentifier.
package mangle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcoot/userdata/internal/model"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Mangle escapes name into an identifier. ASCII letters and digits pass
// through, '_' becomes '$' and every other byte becomes $xx$ (hex). A leading
// digit is escaped as well so the result always satisfies the grammar.
func Mangle(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", model.ErrInvalidIdentifier)
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isLetter(c):
			b.WriteByte(c)
		case isDigit(c) && i > 0:
			b.WriteByte(c)
		case c == '_':
			b.WriteByte('$')
		default:
			fmt.Fprintf(&b, "$%02x$", c)
		}
	}

	result := b.String()
	if err := ValidateIdentifier(result); err != nil {
		return "", err
	}
	return result, nil
}

// ValidateIdentifier fails with model.ErrInvalidIdentifier unless name
// matches [A-Za-z_$][A-Za-z0-9_$]*.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", model.ErrInvalidIdentifier, name)
	}
	return nil
}

// TableName joins prefix and the mangled parts with '_'. Mangled parts never
// contain '_', so segment boundaries stay unambiguous.
func TableName(prefix string, parts ...string) (string, error) {
	if prefix != "" {
		if err := ValidateIdentifier(prefix); err != nil {
			return "", err
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no table name parts", model.ErrInvalidIdentifier)
	}

	mangled := make([]string, len(parts))
	for i, part := range parts {
		m, err := Mangle(part)
		if err != nil {
			return "", err
		}
		mangled[i] = m
	}

	name := prefix + strings.Join(mangled, "_")
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return name, nil
}

// Prefix returns the namespace prefix shared by every table below parts,
// i.e. TableName(prefix, parts...) followed by '_'.
func Prefix(prefix string, parts ...string) (string, error) {
	name, err := TableName(prefix, parts...)
	if err != nil {
		return "", err
	}
	return name + "_", nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
