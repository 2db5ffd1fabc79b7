// Package keystore keeps per-process AES-256 envelope keys in Redis.
//
// Bind generates a 32-byte key, stores it under "steps:key:{process_id}" with a
// TTL and returns it with HMAC-SHA256(process_id, server secret).
// BurnOnRead uses GETDEL, so a key can be read exactly once.
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/tdtp-steps/pkg/mercury"
)

const keyPrefix = "steps:key:"

// ErrKeyNotFound is returned when the key does not exist, expired or was already read.
var ErrKeyNotFound = mercury.ErrKeyNotFound

// Store wraps Redis with Bind and BurnOnRead.
type Store struct {
	rdb    *redis.Client
	secret string
	ttl    time.Duration
}

// New creates a Store. ttl bounds how long an unread key lives.
func New(rdb *redis.Client, secret string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, secret: secret, ttl: ttl}
}

// Bind stores a fresh key for processID. Binding again replaces the key.
func (s *Store) Bind(ctx context.Context, processID uuid.UUID) (*mercury.KeyBinding, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}
	keyB64 := base64.StdEncoding.EncodeToString(key)

	if err := s.rdb.Set(ctx, keyPrefix+processID.String(), keyB64, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("keystore: redis set: %w", err)
	}
	return &mercury.KeyBinding{
		KeyB64: keyB64,
		HMAC:   mercury.Sign(processID.String(), s.secret),
	}, nil
}

// BurnOnRead returns the key for processID and deletes it atomically.
// Requires Redis 6.2+.
func (s *Store) BurnOnRead(ctx context.Context, processID uuid.UUID) (string, error) {
	val, err := s.rdb.GetDel(ctx, keyPrefix+processID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keystore: getdel: %w", err)
	}
	return val, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
