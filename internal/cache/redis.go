package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxJitterMinutes = 5

// setIfCurrent writes the cart entry unless the version floor is above the
// version being written.
// KEYS: cart, floor. ARGV: payload, version, ttl in ms.
var setIfCurrent = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// invalidateAt raises the version floor and drops the cart entry.
// KEYS: cart, floor. ARGV: version, ttl in ms.
var invalidateAt = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
	floor = ARGV[1]
end
redis.call('SET', KEYS[2], floor, 'PX', ARGV[2])
redis.call('DEL', KEYS[1])
return 1
`)

// cachedCart keeps the version token, which the API representation hides.
type cachedCart struct {
	*domain.Cart
	Version int64 `json:"version"`
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cacheKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry cachedCart
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if entry.Cart == nil {
		return nil, fmt.Errorf("unmarshal cart failed: empty entry")
	}
	entry.Cart.Version = entry.Version

	return entry.Cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	data, err := json.Marshal(cachedCart{Cart: cart, Version: cart.Version})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.IntN(maxJitterMinutes)) * time.Minute
	keys := []string{cacheKey(userID), versionKey(userID)}
	ttl := (r.baseTTL + jitter).Milliseconds()
	if err := setIfCurrent.Run(ctx, r.client, keys, data, cart.Version, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate keeps the version floor at least as long as any entry it guards.
func (r *RedisCache) Invalidate(ctx context.Context, userID string, version int64) error {
	keys := []string{cacheKey(userID), versionKey(userID)}
	ttl := (r.baseTTL + maxJitterMinutes*time.Minute).Milliseconds()
	if err := invalidateAt.Run(ctx, r.client, keys, version, ttl).Err(); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

// Both keys share a hash tag so the scripts stay on one cluster slot.
func cacheKey(userID string) string {
	return fmt.Sprintf("cart:{%s}", userID)
}

func versionKey(userID string) string {
	return fmt.Sprintf("cart:{%s}:version", userID)
}
