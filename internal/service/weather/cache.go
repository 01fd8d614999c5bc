package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthwise/companion/internal/model/health"
)

// Cache 缓存天气读数。Get 未命中时返回 ok=false 且 err=nil。
type Cache interface {
	Get(ctx context.Context, key string) (health.WeatherReading, bool, error)
	Set(ctx context.Context, key string, reading health.WeatherReading, ttl time.Duration) error
}

type memoryEntry struct {
	reading   health.WeatherReading
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (health.WeatherReading, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return health.WeatherReading{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return health.WeatherReading{}, false, nil
	}
	return entry.reading, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, reading health.WeatherReading, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{reading: reading, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisCache stores readings as JSON with a TTL.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (health.WeatherReading, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return health.WeatherReading{}, false, nil
		}
		return health.WeatherReading{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var reading health.WeatherReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return health.WeatherReading{}, false, fmt.Errorf("decode cached weather: %w", err)
	}
	return reading, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, reading health.WeatherReading, ttl time.Duration) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("encode weather: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
