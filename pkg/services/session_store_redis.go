package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/models"
)

// redisSessionStore keeps sessions in Redis so multiple engine instances
// can share them. Expiry rides on Redis key TTLs; no sweeper is needed.
type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "parser:session:" + token
}

func (s *redisSessionStore) Put(ctx context.Context, session *models.MappingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.Token), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

func (s *redisSessionStore) Get(ctx context.Context, token string) (*models.MappingSession, error) {
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.MappingSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (s *redisSessionStore) Update(ctx context.Context, session *models.MappingSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// KEEPTTL preserves the original expiry set at Put time.
	set, err := s.client.SetXX(ctx, sessionKey(session.Token), payload, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !set {
		return apperrors.ErrSessionNotFound
	}

	return nil
}

func (s *redisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var _ SessionStore = (*redisSessionStore)(nil)
