// Package redisstore backs store.SessionStore with Redis, namespacing keys
// per thread the way the teacher's session/run metadata stores namespace by
// session ID.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/runtime/store"
)

// SessionStore implements store.SessionStore over a Redis client. Keys are
// namespaced as "session:{threadID}:{key}" so unrelated threads never
// collide even though Redis itself is a single flat keyspace.
type SessionStore struct {
	client *redis.Client
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle (including Close).
func New(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func namespacedKey(threadID, key string) string {
	return "session:" + threadID + ":" + key
}

func (s *SessionStore) Get(ctx context.Context, threadID, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, namespacedKey(threadID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *SessionStore) Set(ctx context.Context, threadID, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, namespacedKey(threadID, key), value, ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, threadID, key string) error {
	return s.client.Del(ctx, namespacedKey(threadID, key)).Err()
}

var _ store.SessionStore = (*SessionStore)(nil)
