package mocks

import (
	"errors"
	"sync"
)

// ErrNoPassword is returned by MockPrompter when its queue is empty
var ErrNoPassword = errors.New("mock prompter: no password queued")

// MockPrompter answers password prompts from a queue and records the prompts
type MockPrompter struct {
	mu        sync.Mutex
	passwords []string
	Prompts   []string
}

// NewMockPrompter creates a MockPrompter answering with passwords in order
func NewMockPrompter(passwords ...string) *MockPrompter {
	return &MockPrompter{passwords: passwords}
}

// Password returns the next queued password
func (p *MockPrompter) Password(prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Prompts = append(p.Prompts, prompt)
	if len(p.passwords) == 0 {
		return "", ErrNoPassword
	}
	pw := p.passwords[0]
	p.passwords = p.passwords[1:]
	return pw, nil
}

// Queue adds passwords to the queue
func (p *MockPrompter) Queue(passwords ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwords = append(p.passwords, passwords...)
}

// Calls returns how many prompts were answered or refused
func (p *MockPrompter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Prompts)
}
