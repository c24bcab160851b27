package mtproto

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
)

// TokenStorage keeps the gotd session in memory and exposes it as a
// printable token, so a session survives restarts through configuration
// rather than a file on disk.
type TokenStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewTokenStorage decodes token. An empty token yields empty storage.
func NewTokenStorage(token string) (*TokenStorage, error) {
	s := &TokenStorage{}
	if token == "" {
		return s, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session token: %w", err)
	}
	s.data = data
	return s, nil
}

// LoadSession implements session.Storage.
func (s *TokenStorage) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// StoreSession implements session.Storage.
func (s *TokenStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

// Token encodes the stored session. Empty when nothing is stored.
func (s *TokenStorage) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(s.data)
}
