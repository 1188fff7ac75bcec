package serviceaccount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"contactdir/pkg/platform/sentinel"
)

// Token is a cached access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry)
}

// Cache stores access tokens between refreshes. Get returns an error wrapping
// sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (Token, error)
	Set(ctx context.Context, key string, tok Token) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]Token)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokens[key]
	if !ok {
		return Token{}, sentinel.ErrNotFound
	}
	return tok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = tok
	return nil
}

const redisKeyPrefix = "contactdir:sa-token:"

// RedisCache shares tokens between replicas. Entries expire with the token.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCache wraps an established Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Token, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("%w: redis get: %v", sentinel.ErrUnavailable, err)
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return Token{}, fmt.Errorf("decode cached token: %w", err)
	}
	return tok, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, tok Token) error {
	ttl := tok.Expiry.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}
