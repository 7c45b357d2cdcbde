package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "knights:session:"

const redisTimeout = 3 * time.Second

// RedisPersistence implements SessionPersistence with one msgpack value per
// session. Keys expire after ttl unless ttl is zero; every save refreshes it.
type RedisPersistence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPersistence wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisPersistence(client *redis.Client, prefix string, ttl time.Duration) *RedisPersistence {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPersistence{client: client, prefix: prefix, ttl: ttl}
}

// ConnectRedis opens a client and checks the connection.
func ConnectRedis(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (rp *RedisPersistence) key(id string) string {
	return rp.prefix + id
}

func (rp *RedisPersistence) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisTimeout)
}

// Save stores the session record
func (rp *RedisPersistence) Save(data *PersistedSessionData) error {
	if data == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if !validID(data.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, data.ID)
	}

	payload, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	ctx, cancel := rp.context()
	defer cancel()
	if err := rp.client.Set(ctx, rp.key(data.ID), payload, rp.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// Load retrieves a session record
func (rp *RedisPersistence) Load(id string) (*PersistedSessionData, error) {
	ctx, cancel := rp.context()
	defer cancel()

	payload, err := rp.client.Get(ctx, rp.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var data PersistedSessionData
	if err := msgpack.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &data, nil
}

// Delete removes a session record
func (rp *RedisPersistence) Delete(id string) error {
	ctx, cancel := rp.context()
	defer cancel()

	n, err := rp.client.Del(ctx, rp.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns the ids of all stored sessions
func (rp *RedisPersistence) ListAll() ([]string, error) {
	ctx, cancel := rp.context()
	defer cancel()

	var ids []string
	iter := rp.client.Scan(ctx, 0, rp.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(rp.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return ids, nil
}

// Exists checks if a session is stored
func (rp *RedisPersistence) Exists(id string) bool {
	ctx, cancel := rp.context()
	defer cancel()

	n, err := rp.client.Exists(ctx, rp.key(id)).Result()
	return err == nil && n > 0
}
