package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const accessTokenKey = "mpesa:access_token"

// TokenCache keeps the gateway bearer credential in Redis.
type TokenCache struct {
	client *redis.Client
}

// NewTokenCache creates a new TokenCache.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

// GetToken returns the cached token, or "" on a cache miss.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, accessTokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return token, err
}

// SetToken stores the token until ttl elapses.
func (c *TokenCache) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, accessTokenKey, token, ttl).Err()
}
