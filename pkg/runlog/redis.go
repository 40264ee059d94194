package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis run ledger.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address  string
	Password string
	Database int

	// Prefix is prepended to all keys (e.g., "sheetdex:")
	Prefix string

	// TTL expires run records (0 = keep forever)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "sheetdex:",
		TTL:     30 * 24 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// RedisBackend stores each run under its own key and indexes runs in a
// sorted set scored by start time.
type RedisBackend struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisBackendWithClient(client, cfg), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RedisBackend{cfg: cfg, client: client}
}

// key returns the Redis key for a run.
func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + "run:" + id
}

// indexKey returns the sorted set of run ids.
func (b *RedisBackend) indexKey() string {
	return b.cfg.Prefix + "runs"
}

// Save writes the record and its index entry in one pipeline.
func (b *RedisBackend) Save(ctx context.Context, r *Record) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.key(r.ID), data, b.cfg.TTL)
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{
		Score:  float64(r.StartedAt.UnixNano()),
		Member: r.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run record to Redis: %w", err)
	}
	return nil
}

// Load retrieves a record.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotExist
		}
		return nil, fmt.Errorf("failed to load run record from Redis: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &r, nil
}

// List walks the index newest first. Ids whose record expired are pruned.
func (b *RedisBackend) List(ctx context.Context, limit int) ([]*Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := b.client.ZRevRange(ctx, b.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := b.Load(ctx, id)
		if errors.Is(err, errNotExist) {
			b.client.ZRem(ctx, b.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string { return "redis" }

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
