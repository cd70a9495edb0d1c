package store

import (
	"context"
	"fmt"
	"sync"

	"peoplefinder/internal/tokens"
	"peoplefinder/pkg/platform/sentinel"
)

// InMemoryStore keeps tokens in process memory. Entries are replaced whole.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]tokens.CachedToken
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tokens: make(map[string]tokens.CachedToken),
	}
}

// Load returns the entry for backend, or sentinel.ErrNotFound.
func (s *InMemoryStore) Load(_ context.Context, backend string) (tokens.CachedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cached, ok := s.tokens[backend]; ok {
		return cached, nil
	}
	return tokens.CachedToken{}, fmt.Errorf("token for %s: %w", backend, sentinel.ErrNotFound)
}

// Save overwrites the entry for token.Backend.
func (s *InMemoryStore) Save(_ context.Context, token tokens.CachedToken) error {
	if token.Backend == "" {
		return fmt.Errorf("token backend is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ExpiresAt = token.ExpiresAt.UTC()
	s.tokens[token.Backend] = token
	return nil
}
