package planner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTokenNotFound = errors.New("resume token not found")
	ErrTokenExpired  = errors.New("resume token expired")
)

// StoredToken is a server-side resume token with its expiry.
type StoredToken struct {
	GoalID    string
	Value     []byte
	ExpiresAt time.Time
}

// IsExpired checks if the token has expired.
func (t *StoredToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// TokenStore keeps issued resume tokens keyed by goal id. The stored value
// is the opaque blob handed back by the workflow engine; the store compares
// bytes, it never decodes them.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*StoredToken
}

// NewTokenStore creates an in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*StoredToken)}
}

// Issue stores a token for a goal with the given TTL, replacing any prior
// token for the same goal.
func (s *TokenStore) Issue(_ context.Context, goalID string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[goalID] = &StoredToken{
		GoalID:    goalID,
		Value:     append([]byte(nil), value...),
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Redeem validates a replayed token and consumes it. A token redeems at
// most once; a mismatch or expiry leaves the stored token untouched.
func (s *TokenStore) Redeem(_ context.Context, goalID string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[goalID]
	if !ok {
		return ErrTokenNotFound
	}
	if tok.IsExpired() {
		delete(s.tokens, goalID)
		return ErrTokenExpired
	}
	if !bytes.Equal(tok.Value, value) {
		return ErrTokenNotFound
	}
	delete(s.tokens, goalID)
	return nil
}

// Cleanup removes all expired tokens and returns how many were dropped.
func (s *TokenStore) Cleanup(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for k, tok := range s.tokens {
		if tok.IsExpired() {
			delete(s.tokens, k)
			count++
		}
	}
	return count
}
