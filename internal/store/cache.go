package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/synthpool/synthpool-backend/internal/metrics"
)

var ErrCacheMiss = fmt.Errorf("cache miss")

// Cache key prefixes. Everything cached here is read-only reporting data;
// solvency decisions never read from the cache.
const (
	KeyGlobalDebt  = "syn:pool:debt"
	KeyAssetList   = "syn:assets"
	KeyAssetPrice  = "syn:price"
	KeyUserSummary = "syn:user:summary"
)

type Cache struct {
	// When Redis is available, use client for all operations.
	client *redis.Client
	// When Redis is unavailable, fall back to an in-memory store.
	mem *memStore

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Redis unavailable: fall back to in-memory cache
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache", "error", err)
		}
		return &Cache{
			client:  nil,
			mem:     newMemStore(),
			logger:  logger,
			metrics: metrics,
		}, nil
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				if c.metrics != nil {
					c.metrics.RecordCacheMiss(ctx, key)
				}
				return ErrCacheMiss
			}
			if c.logger != nil {
				c.logger.Errorw("Cache get error", "key", key, "error", err)
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordCacheHit(ctx, key)
		}
		if err := json.Unmarshal([]byte(val), dest); err != nil {
			return fmt.Errorf("cache unmarshal error: %w", err)
		}
		return nil
	}

	data, ok := c.mem.get(key)
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(ctx, key)
		}
		return ErrCacheMiss
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache set error", "key", key, "error", err)
			}
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	c.mem.set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			}
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	c.mem.del(keys...)
	return nil
}

// Specialized cache methods

func (c *Cache) GetGlobalDebt(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyGlobalDebt, dest)
}

func (c *Cache) SetGlobalDebt(ctx context.Context, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, KeyGlobalDebt, value, ttl)
}

func (c *Cache) GetUserSummary(ctx context.Context, account string, dest interface{}) error {
	return c.Get(ctx, fmt.Sprintf("%s:%s", KeyUserSummary, account), dest)
}

func (c *Cache) SetUserSummary(ctx context.Context, account string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, fmt.Sprintf("%s:%s", KeyUserSummary, account), value, ttl)
}

// InvalidateUserSummary drops a user's cached report after a state change.
func (c *Cache) InvalidateUserSummary(ctx context.Context, account string) error {
	return c.Delete(ctx, fmt.Sprintf("%s:%s", KeyUserSummary, account), KeyGlobalDebt)
}

func (c *Cache) GetAssetPrice(ctx context.Context, symbol string, dest interface{}) error {
	return c.Get(ctx, fmt.Sprintf("%s:%s", KeyAssetPrice, symbol), dest)
}

func (c *Cache) SetAssetPrice(ctx context.Context, symbol string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, fmt.Sprintf("%s:%s", KeyAssetPrice, symbol), value, ttl)
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	// In-memory mode considered healthy
	return nil
}

// Close connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// memStore is a minimal TTL map used when Redis is unreachable.
type memStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]memEntry)}
}

func (s *memStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (s *memStore) set(key string, data []byte, ttl time.Duration) {
	entry := memEntry{data: data}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

func (s *memStore) del(keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}
