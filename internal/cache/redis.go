package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "llmlab:cache:"

type redisEntry struct {
	ResponseBodyHex string   `json:"response_body_hex"`
	Metadata        Metadata `json:"metadata"`
}

// RedisCache stores entries in an external KV with native TTL. Every Redis
// error degrades to a miss so a cache outage never fails a request.
type RedisCache struct {
	client     *redis.Client
	logger     *zap.Logger
	defaultTTL time.Duration
	maxSize    int
	hits       atomic.Int64
	misses     atomic.Int64
}

func NewRedisCache(client *redis.Client, logger *zap.Logger, maxSize int, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &RedisCache{
		client:     client,
		logger:     logger,
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
	}
}

func (c *RedisCache) Get(provider string, body []byte) ([]byte, *Metadata, bool) {
	ctx := context.Background()
	data, err := c.client.Get(ctx, redisKeyPrefix+Key(provider, body)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, nil, false
	}
	if err != nil {
		c.logger.Warn("redis cache get failed", zap.Error(err))
		c.misses.Add(1)
		return nil, nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.Error(err))
		c.misses.Add(1)
		return nil, nil, false
	}
	responseBody, err := hex.DecodeString(entry.ResponseBodyHex)
	if err != nil {
		c.logger.Warn("redis cache body corrupt", zap.Error(err))
		c.misses.Add(1)
		return nil, nil, false
	}

	c.hits.Add(1)
	meta := entry.Metadata
	return responseBody, &meta, true
}

func (c *RedisCache) Set(provider string, body, responseBody []byte, meta Metadata, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	entry := redisEntry{
		ResponseBodyHex: hex.EncodeToString(responseBody),
		Metadata:        meta,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("redis cache marshal failed", zap.Error(err))
		return
	}

	ctx := context.Background()
	if err := c.client.Set(ctx, redisKeyPrefix+Key(provider, body), data, ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

func (c *RedisCache) Clear() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis cache scan failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("redis cache clear failed", zap.Error(err))
		}
	}
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *RedisCache) Stats() Stats {
	size := 0
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		size++
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
		Size:    size,
		MaxSize: c.maxSize,
	}
}
