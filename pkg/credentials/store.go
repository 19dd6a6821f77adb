// Package credentials holds the Graph API access token.
//
// The token is owned outside the client: it is seeded from the environment and
// may be rotated at runtime through an administrative call. The client only
// reads it, once per request attempt, through the Source interface.
package credentials

import (
	"context"
	"strings"
	"sync"
)

// minTokenLength is the shortest string treated as a plausible access token.
const minTokenLength = 20

// Source provides the current access token. An empty token means none is
// configured.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Store is a Source whose token can be replaced.
type Store interface {
	Source
	SetToken(ctx context.Context, token string) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store initialised with token.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: strings.TrimSpace(token)}
}

// Token returns the current token.
func (s *MemoryStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// SetToken replaces the token. Surrounding whitespace is trimmed.
func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	return nil
}

// Static is a fixed token, mostly useful in tests and one-off tools.
type Static string

// Token returns the token.
func (s Static) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// HasToken reports whether token looks like a configured access token.
func HasToken(token string) bool {
	return len(token) > minTokenLength
}

// Mask hides all but the last six characters of token.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 6 {
		return "***" + token
	}
	return "***" + token[len(token)-6:]
}
