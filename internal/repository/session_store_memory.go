package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memSession struct {
	userID    uuid.UUID
	expiresAt time.Time
}

func (s memSession) expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	now      func() time.Time
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]memSession),
		now:      time.Now,
	}
}

func (s *memorySessionStore) Save(_ context.Context, jti string, userID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memSession{userID: userID}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.sessions[sessionKey(jti)] = entry
	return nil
}

func (s *memorySessionStore) Lookup(_ context.Context, jti string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(jti)
	entry, ok := s.sessions[key]
	if !ok {
		return uuid.Nil, false, nil
	}
	if entry.expired(s.now()) {
		delete(s.sessions, key)
		return uuid.Nil, false, nil
	}
	return entry.userID, true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(jti))
	return nil
}
