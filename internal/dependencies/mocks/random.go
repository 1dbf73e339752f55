package mocks

import (
	"sync"

	"github.com/mcoot/userdata/internal/dependencies/random"
)

// MockRandom hands out queued tokens, then empty ones
type MockRandom struct {
	mu     sync.Mutex
	tokens []string
	drawn  int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a MockRandom answering with tokens in order
func NewMockRandom(tokens ...string) *MockRandom {
	return &MockRandom{tokens: tokens}
}

// Token returns the next queued token
func (r *MockRandom) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawn++
	if len(r.tokens) == 0 {
		return ""
	}
	token := r.tokens[0]
	r.tokens = r.tokens[1:]
	return token
}

// QueueTokens adds tokens to the queue
func (r *MockRandom) QueueTokens(tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, tokens...)
}

// Drawn returns how many tokens were asked for
func (r *MockRandom) Drawn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drawn
}
