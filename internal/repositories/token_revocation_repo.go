package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/osnovci/internal/cache"
	"github.com/redis/go-redis/v9"
)

// TokenRevocationRepository keeps revoked JWT ids in Redis until the token
// would have expired anyway.
type TokenRevocationRepository struct {
	rdb    *redis.Client
	prefix string
}

func NewTokenRevocationRepository(c *cache.Client) *TokenRevocationRepository {
	return &TokenRevocationRepository{rdb: c.Redis, prefix: c.KeyPrefix + "revoked:"}
}

// RevokeToken adds a token id to the revocation list
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := r.rdb.Set(ctx, r.prefix+jti, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// IsTokenRevoked checks if a token id is on the revocation list
func (r *TokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}

	return n > 0, nil
}
