// Package memory provides an in-process token repository. It is the default
// backend and the one used in tests.
package memory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

type deviceEntry struct {
	current push.Token
	history []push.Token // oldest first
}

// TokenStore keeps tokens in a map keyed by device id.
type TokenStore struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry
}

func NewTokenStore() *TokenStore {
	return &TokenStore{devices: make(map[string]*deviceEntry)}
}

func (s *TokenStore) Current(_ context.Context, deviceID string) (push.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.devices[deviceID]
	if !ok {
		return push.Token{}, push.ErrTokenNotFound
	}
	return entry.current, nil
}

func (s *TokenStore) Replace(_ context.Context, next push.Token) (push.TokenChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.devices[next.DeviceID]
	if !ok {
		s.devices[next.DeviceID] = &deviceEntry{current: next}
		return push.TokenChange{Current: next, Changed: true}, nil
	}
	if entry.current.Value == next.Value {
		return push.TokenChange{Current: entry.current}, nil
	}

	prev := entry.current
	supersededAt := next.IssuedAt
	prev.SupersededAt = &supersededAt
	entry.history = append(entry.history, prev)
	entry.current = next

	return push.TokenChange{Previous: &prev, Current: next, Changed: true}, nil
}

func (s *TokenStore) History(_ context.Context, deviceID string) ([]push.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.devices[deviceID]
	if !ok {
		return []push.Token{}, nil
	}
	out := make([]push.Token, 0, len(entry.history))
	for i := len(entry.history) - 1; i >= 0; i-- {
		out = append(out, entry.history[i])
	}
	return out, nil
}
