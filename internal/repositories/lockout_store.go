package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/osnovci/internal/cache"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	lockoutFieldCount       = "count"
	lockoutFieldLockedUntil = "locked_until"
	lockoutScanBatch        = 100
)

// RedisLockoutStore keeps one hash per identifier:
// <prefix>lockout:<identifier> -> {count, locked_until (unix ms)}
type RedisLockoutStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLockoutStore(c *cache.Client) *RedisLockoutStore {
	return &RedisLockoutStore{rdb: c.Redis, prefix: c.KeyPrefix + "lockout:"}
}

func (s *RedisLockoutStore) key(identifier string) string {
	return s.prefix + identifier
}

// Increment atomically bumps the failure count and refreshes the key TTL.
// It returns the new count and any lock already recorded on the key.
func (s *RedisLockoutStore) Increment(ctx context.Context, identifier string, ttl time.Duration) (*models.LockoutCounter, error) {
	key := s.key(identifier)

	var incr *redis.IntCmd
	var until *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, lockoutFieldCount, 1)
		until = pipe.HGet(ctx, key, lockoutFieldLockedUntil)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to increment lockout counter: %w", err)
	}

	counter := &models.LockoutCounter{Key: identifier, Count: int(incr.Val())}
	if raw, err := until.Result(); err == nil {
		counter.LockedUntil = parseUnixMillis(raw)
	}

	return counter, nil
}

// Get returns the counter for identifier, or nil if none exists
func (s *RedisLockoutStore) Get(ctx context.Context, identifier string) (*models.LockoutCounter, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lockout counter: %w", err)
	}

	return counterFromHash(identifier, fields), nil
}

// SetLockedUntil records the lock expiry and sets the key TTL
func (s *RedisLockoutStore) SetLockedUntil(ctx context.Context, identifier string, lockedUntil time.Time, ttl time.Duration) error {
	key := s.key(identifier)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, lockoutFieldLockedUntil, strconv.FormatInt(lockedUntil.UnixMilli(), 10))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set lockout: %w", err)
	}

	return nil
}

// Delete removes the counter. Deleting a missing counter is not an error.
func (s *RedisLockoutStore) Delete(ctx context.Context, identifier string) error {
	if err := s.rdb.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to delete lockout counter: %w", err)
	}
	return nil
}

// Scan calls fn for every stored counter. Keys that disappear mid-scan are skipped.
func (s *RedisLockoutStore) Scan(ctx context.Context, fn func(*models.LockoutCounter) error) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", lockoutScanBatch).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()
		identifier := strings.TrimPrefix(key, s.prefix)

		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read lockout counter: %w", err)
		}

		counter := counterFromHash(identifier, fields)
		if counter == nil {
			continue
		}

		if err := fn(counter); err != nil {
			return err
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan lockout counters: %w", err)
	}

	return nil
}

func counterFromHash(identifier string, fields map[string]string) *models.LockoutCounter {
	if len(fields) == 0 {
		return nil
	}

	counter := &models.LockoutCounter{Key: identifier}
	if raw, ok := fields[lockoutFieldCount]; ok {
		counter.Count, _ = strconv.Atoi(raw)
	}
	if raw, ok := fields[lockoutFieldLockedUntil]; ok {
		counter.LockedUntil = parseUnixMillis(raw)
	}

	return counter
}

func parseUnixMillis(raw string) *time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
