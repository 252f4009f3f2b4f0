package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"order-desk/internal/models"

	"github.com/go-redis/redis/v8"
)

const stockWarningsKey = "stock:warnings"

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
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

// New wraps an existing Redis client
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns a cached value; ok is false on a miss
func (c *Client) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	value, err = c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores a value with TTL
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// DeletePrefix removes every key starting with prefix
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s*: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// SetIdempotencyRecord stores the outcome recorded for an idempotency key
func (c *Client) SetIdempotencyRecord(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyRecord returns the outcome recorded for an idempotency key
func (c *Client) GetIdempotencyRecord(ctx context.Context, key string) ([]byte, bool, error) {
	return c.Get(ctx, fmt.Sprintf("idempotency:%s", key))
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// RecordStockWarning keeps the latest warning per article on the board
func (c *Client) RecordStockWarning(ctx context.Context, warning models.StockWarning) error {
	payload, err := json.Marshal(warning)
	if err != nil {
		return fmt.Errorf("failed to marshal stock warning: %w", err)
	}
	return c.rdb.HSet(ctx, stockWarningsKey, strconv.FormatInt(warning.ArticleID, 10), payload).Err()
}

// ListStockWarnings returns the board ordered by article id
func (c *Client) ListStockWarnings(ctx context.Context) ([]models.StockWarning, error) {
	result, err := c.rdb.HGetAll(ctx, stockWarningsKey).Result()
	if err != nil {
		return nil, err
	}

	warnings := make([]models.StockWarning, 0, len(result))
	for field, raw := range result {
		var w models.StockWarning
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("corrupt stock warning for article %s: %w", field, err)
		}
		warnings = append(warnings, w)
	}

	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].ArticleID < warnings[j].ArticleID
	})
	return warnings, nil
}
