// Package throttle limits failed login attempts per key.
package throttle

import (
	"context"
	"strings"
	"time"
)

// Limiter counts failures per key inside a fixed window
type Limiter interface {
	// Allow reports whether another attempt is permitted for key
	Allow(ctx context.Context, key string) (bool, error)
	// Fail records a failed attempt for key
	Fail(ctx context.Context, key string) error
	// Reset forgets the failures of key, after a successful login
	Reset(ctx context.Context, key string) error
}

// Config holds limiter settings shared by the backends
type Config struct {
	// MaxAttempts is the number of failures allowed per window
	MaxAttempts int
	// Window is counted from the first failure
	Window time.Duration
}

// DefaultConfig returns sensible defaults for throttling
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Window:      15 * time.Minute,
	}
}

// Key joins the parts identifying what is being throttled
func Key(kind string, parts ...string) string {
	return kind + ":" + strings.Join(parts, "/")
}
