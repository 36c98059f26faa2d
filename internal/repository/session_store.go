package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore tracks live refresh tokens by JTI so they can be revoked.
// Implementations: Redis (production) or in-memory (local dev / single instance).
type SessionStore interface {
	Save(ctx context.Context, jti string, userID uuid.UUID, ttl time.Duration) error
	// Lookup returns the owning user; ok is false for unknown, expired or revoked tokens.
	Lookup(ctx context.Context, jti string) (userID uuid.UUID, ok bool, err error)
	Revoke(ctx context.Context, jti string) error
}

const sessionKeyPrefix = "refresh:"

func sessionKey(jti string) string {
	return sessionKeyPrefix + jti
}
