// Package random draws the unguessable tokens handed to visitors and games.
package random

import (
	"crypto/rand"
)

// TokenAlphabet is the URL-safe alphabet tokens are drawn from
const TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// TokenLength gives 192 bits of entropy over TokenAlphabet
const TokenLength = 32

// Random generates tokens. An empty token means the source failed and the
// caller should retry or give up.
type Random interface {
	Token() string
}

// CryptoRandom reads crypto/rand
type CryptoRandom struct{}

// New creates a CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Token returns TokenLength characters of TokenAlphabet. The alphabet has
// 64 entries so each byte maps onto it without bias.
func (r *CryptoRandom) Token() string {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	for i, b := range buf {
		buf[i] = TokenAlphabet[int(b)%len(TokenAlphabet)]
	}
	return string(buf)
}
