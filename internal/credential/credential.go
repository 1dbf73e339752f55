// Package credential hashes and verifies passwords.
package credential

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns passwords into stored hashes and checks them again later.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// Bcrypt implements Hasher with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt Hasher. A cost of zero selects bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Ensure Bcrypt implements Hasher
var _ Hasher = (*Bcrypt)(nil)

// Hash returns the salted bcrypt hash of password
func (b *Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches stored. A malformed stored value
// never matches.
func (b *Bcrypt) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
