package provider

import "time"

// Config holds configuration for the provider service
type Config struct {
	// StoreTimeout bounds every storage call made for a request
	StoreTimeout time.Duration
	// DialTimeout bounds the handoff connection to a game
	DialTimeout time.Duration
	// MaxTokenAttempts bounds provider token regeneration on collision
	MaxTokenAttempts int
}

// DefaultConfig returns default provider configuration
func DefaultConfig() Config {
	return Config{
		StoreTimeout:     10 * time.Second,
		DialTimeout:      10 * time.Second,
		MaxTokenAttempts: 8,
	}
}
