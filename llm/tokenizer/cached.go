package tokenizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultCountCacheTTL 是计数缓存的默认过期时间。
const DefaultCountCacheTTL = 10 * time.Minute

// CountStore 是计数结果的外部存储，internal/cache.Manager 满足该接口。
// Get 在未命中时返回任意非 nil 错误。
type CountStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedCounter 在 Counter 之前加一层结果缓存。
// 计数对固定的工件与 BPE 表是确定的，所以按 (family, model, sha256(text)) 缓存是安全的；
// 只缓存成功的结果，存储故障时退化为直接计数。
type CachedCounter struct {
	counter  *Counter
	store    CountStore
	ttl      time.Duration
	observer Observer
	logger   *zap.Logger
}

// NewCachedCounter wraps counter with store. A non-positive ttl uses DefaultCountCacheTTL.
func NewCachedCounter(counter *Counter, store CountStore, ttl time.Duration, logger *zap.Logger) *CachedCounter {
	if ttl <= 0 {
		ttl = DefaultCountCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCounter{
		counter:  counter,
		store:    store,
		ttl:      ttl,
		observer: counter.observer,
		logger:   logger.With(zap.String("component", "count_cache")),
	}
}

// CountCacheKey returns the store key for (model, text).
func CountCacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "tokens:" + ResolveModelFamily(model).String() + ":" + model + ":" + hex.EncodeToString(sum[:])
}

// Count 先查缓存，未命中再计数并回写。
func (c *CachedCounter) Count(ctx context.Context, model, text string) (int, error) {
	key := CountCacheKey(model, text)

	if v, err := c.store.Get(ctx, key); err == nil {
		if n, perr := strconv.Atoi(v); perr == nil && n >= 0 {
			c.observer.ObserveCountCache(true)
			return n, nil
		}
		c.logger.Warn("discarding malformed cached count", zap.String("key", key))
	}
	c.observer.ObserveCountCache(false)

	n, err := c.counter.Count(ctx, model, text)
	if err != nil {
		return 0, err
	}

	if err := c.store.Set(ctx, key, strconv.Itoa(n), c.ttl); err != nil {
		c.logger.Warn("count cache write failed", zap.String("key", key), zap.Error(err))
	}
	return n, nil
}

// CountMessages counts messages with every per-message count going through the cache.
func (c *CachedCounter) CountMessages(ctx context.Context, model string, messages []Message) (int, error) {
	return countMessages(ctx, c.Count, model, messages)
}

// Registry returns the wrapped counter's registry.
func (c *CachedCounter) Registry() *Registry {
	return c.counter.Registry()
}
