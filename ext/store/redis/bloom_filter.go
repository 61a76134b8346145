// Package redis 提供基于 Redis 的布隆过滤器，多实例部署时共享用户的按天已看记录。
//
// 注意：此实现位于扩展包中，需要单独引入：
//
//	go get github.com/rushteam/discovery/ext/store/redis
package redis

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/filter"
	"github.com/rushteam/discovery/store"
)

var (
	_ filter.BloomFilterChecker = (*BloomFilter)(nil)
	_ filter.BloomFilterWriter  = (*BloomFilter)(nil)
)

// maxWatchRetries 是并发写同一个过滤器时乐观事务的重试次数
const maxWatchRetries = 5

// BloomFilter 把每个 key（每用户每天）的布隆过滤器序列化后存放在 Redis。
//
// 使用方式：
//
//	bf := redis.NewBloomFilter(redisStore, 100000, 0.01)
//	d, _ := service.New(service.Deps{Cache: redisStore, Bloom: bf, ...}, opts)
type BloomFilter struct {
	client *redis.Client

	capacity          uint
	falsePositiveRate float64

	// MaxAge 是本地副本的有效期，过期后重新从 Redis 读取。0 表示每次都读 Redis
	MaxAge time.Duration

	mu    sync.RWMutex
	local map[string]localFilter
	now   func() time.Time
}

// getter 同时由 *redis.Client 与事务内的 *redis.Tx 实现
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type localFilter struct {
	bf       *bloom.BloomFilter
	loadedAt time.Time
}

// NewBloomFilter 复用 RedisStore 的连接。
// capacity 是单个过滤器的预期容量，falsePositiveRate 是期望误判率（例如 0.01）。
func NewBloomFilter(s *store.RedisStore, capacity uint, falsePositiveRate float64) *BloomFilter {
	return NewBloomFilterWithClient(s.Client(), capacity, falsePositiveRate)
}

func NewBloomFilterWithClient(client *redis.Client, capacity uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		client:            client,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
		MaxAge:            30 * time.Second,
		local:             make(map[string]localFilter),
		now:               time.Now,
	}
}

// CheckInBloomFilter 返回 true 表示可能看过（存在误判），false 表示一定没看过。
func (b *BloomFilter) CheckInBloomFilter(ctx context.Context, key string, itemID string) (bool, error) {
	if bf, ok := b.cached(key); ok {
		return bf.TestString(itemID), nil
	}
	bf, err := b.load(ctx, b.client, key)
	if err != nil {
		return false, err
	}
	if bf == nil {
		return false, nil
	}
	b.remember(key, bf)
	return bf.TestString(itemID), nil
}

// BatchAddToBloomFilter 在乐观事务中读取、追加并写回过滤器，ttl 为秒，0 表示不过期。
func (b *BloomFilter) BatchAddToBloomFilter(ctx context.Context, key string, itemIDs []string, ttl int) error {
	if len(itemIDs) == 0 {
		return nil
	}
	var expiration time.Duration
	if ttl > 0 {
		expiration = time.Duration(ttl) * time.Second
	}

	var written *bloom.BloomFilter
	txf := func(tx *redis.Tx) error {
		bf, err := b.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if bf == nil {
			bf = bloom.NewWithEstimates(b.capacity, b.falsePositiveRate)
		}
		for _, id := range itemIDs {
			bf.AddString(id)
		}
		var buf bytes.Buffer
		if _, err := bf.WriteTo(&buf); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf.Bytes(), expiration)
			return nil
		})
		if err == nil {
			written = bf
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := b.client.Watch(ctx, txf, key)
		if err == nil {
			b.remember(key, written)
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return unavailable("redis bloom: write filter", err)
		}
	}
	return core.NewDomainError(core.ModuleCache, core.ErrorCodeCacheUnavailable, "redis bloom: too many concurrent writers")
}

// Forget 丢弃 key 的本地副本。
func (b *BloomFilter) Forget(key string) {
	b.mu.Lock()
	delete(b.local, key)
	b.mu.Unlock()
}

// load 读取并反序列化过滤器，key 不存在时返回 nil。
func (b *BloomFilter) load(ctx context.Context, c getter, key string) (*bloom.BloomFilter, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("redis bloom: read filter", err)
	}
	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, unavailable("redis bloom: decode filter", err)
	}
	return bf, nil
}

func (b *BloomFilter) cached(key string) (*bloom.BloomFilter, bool) {
	if b.MaxAge <= 0 {
		return nil, false
	}
	b.mu.RLock()
	lf, ok := b.local[key]
	b.mu.RUnlock()
	if !ok || b.clock().Sub(lf.loadedAt) > b.MaxAge {
		return nil, false
	}
	return lf.bf, true
}

func (b *BloomFilter) remember(key string, bf *bloom.BloomFilter) {
	if b.MaxAge <= 0 || bf == nil {
		return
	}
	b.mu.Lock()
	b.local[key] = localFilter{bf: bf, loadedAt: b.clock()}
	b.mu.Unlock()
}

func (b *BloomFilter) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

func unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleCache, core.ErrorCodeCacheUnavailable, msg, err)
}
