// Package memory is an in-process throttle.Limiter.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/userdata/internal/dependencies/clock"
	"github.com/mcoot/userdata/internal/throttle"
)

// Limiter keeps failure counts in a map
type Limiter struct {
	cfg   throttle.Config
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	failures int
	expires  time.Time
}

// Ensure Limiter implements the interface
var _ throttle.Limiter = (*Limiter)(nil)

// New creates an in-memory limiter
func New(cfg throttle.Config, clk clock.Clock) *Limiter {
	return &Limiter{
		cfg:     cfg,
		clock:   clk,
		entries: make(map[string]*entry),
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.current(key)
	return e == nil || e.failures < l.cfg.MaxAttempts, nil
}

func (l *Limiter) Fail(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.current(key)
	if e == nil {
		e = &entry{expires: l.clock.Now().Add(l.cfg.Window)}
		l.entries[key] = e
	}
	e.failures++
	return nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// current returns the live entry for key, dropping an expired one
func (l *Limiter) current(key string) *entry {
	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	if !l.clock.Now().Before(e.expires) {
		delete(l.entries, key)
		return nil
	}
	return e
}
