package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Save(ctx context.Context, jti string, userID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKey(jti), userID.String(), ttl).Err()
}

func (s *redisSessionStore) Lookup(ctx context.Context, jti string) (uuid.UUID, bool, error) {
	val, err := s.client.Get(ctx, sessionKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt session %s: %w", jti, err)
	}
	return userID, true, nil
}

func (s *redisSessionStore) Revoke(ctx context.Context, jti string) error {
	return s.client.Del(ctx, sessionKey(jti)).Err()
}
