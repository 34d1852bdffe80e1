package storage

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"
)

// TokenStore maps opaque random download tokens to an object reference and
// an expiry instant. It is owned by whoever constructs the filesystem
// backend and injected into it; the clock is injectable so tests control
// expiry deterministically. Expired tokens are collected lazily on the next
// mint rather than by a background job.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
	now    func() time.Time
}

type tokenEntry struct {
	ref       string
	expiresAt time.Time
}

// NewTokenStore creates a TokenStore. A nil clock defaults to time.Now.
func NewTokenStore(clock func() time.Time) *TokenStore {
	if clock == nil {
		clock = time.Now
	}
	return &TokenStore{
		tokens: make(map[string]tokenEntry),
		now:    clock,
	}
}

// Mint creates a fresh token for ref valid for ttl. Expired entries are
// pruned as a side effect.
func (s *TokenStore) Mint(ref string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("storage: mint token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, e := range s.tokens {
		if !e.expiresAt.After(now) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = tokenEntry{ref: ref, expiresAt: now.Add(ttl)}
	return token, nil
}

// Resolve returns the reference a live token grants access to. An expired or
// unknown token resolves to nothing; expired entries are dropped on lookup.
func (s *TokenStore) Resolve(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.tokens, token)
		return "", false
	}
	return e.ref, true
}

// Len reports the number of live or not-yet-collected tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
