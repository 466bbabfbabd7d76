package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps redis for the two jobs it has here: short-lived report
// caching and consumer event dedupe. Quantities are never authoritative in
// redis; the transactional store is the system of record.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheJSON stores a JSON-encoded value with a TTL.
func (c *Client) CacheJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.rdb.Set(ctx, key, payload, ttl).Err()
}

// FetchJSON loads a cached JSON value into dest. Returns false on a miss.
func (c *Client) FetchJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// EventSeen reports whether an event id was already processed. This is only
// the fast path; the operation log's idempotency signature is the
// authoritative check.
func (c *Client) EventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("events:%s", eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventSeen records an event id after its effects have committed.
// Marking must never happen before processing succeeds, or a redelivery
// after a transient failure would be skipped.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, fmt.Sprintf("events:%s", eventID), "1", ttl).Err()
}
