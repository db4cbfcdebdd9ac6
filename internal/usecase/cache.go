package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/phash"
)

// Cache abstracts the Redis operations used by the use case to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func fingerprintKey(digest string, size int) string {
	return fmt.Sprintf("phash:%s:%d", digest, size)
}

// cachedFingerprint looks up a fingerprint. Misses and cache failures both
// report false; failures are only logged.
func (uc *VisionUseCase) cachedFingerprint(ctx context.Context, requestID, digest string, size int) (phash.Fingerprint, bool) {
	if uc.cache == nil {
		return phash.Fingerprint{}, false
	}
	key := fingerprintKey(digest, size)
	opLogger := logging.WithOperation(uc.logger, "cache.get.fingerprint", requestID)

	var value string
	err := uc.retry.Do(ctx, uc.logger, "cache.get.fingerprint", requestID, func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return phash.Fingerprint{}, false
	}

	fp, err := phash.ParseHex(value, size)
	if err != nil {
		opLogger.Warn("failed to decode cached fingerprint", zap.String("key", key), zap.Error(err))
		return phash.Fingerprint{}, false
	}
	return fp, true
}

func (uc *VisionUseCase) storeFingerprint(ctx context.Context, requestID, digest string, fp phash.Fingerprint) {
	if uc.cache == nil {
		return
	}
	key := fingerprintKey(digest, fp.Size())
	err := uc.retry.Do(ctx, uc.logger, "cache.set.fingerprint", requestID, func() error {
		return uc.cache.Set(ctx, key, fp.Hex(), uc.opts.HashCacheTTL)
	})
	if err != nil {
		logging.WithOperation(uc.logger, "cache.set.fingerprint", requestID).Warn("failed to cache fingerprint", zap.Error(err))
	}
}
