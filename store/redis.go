package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/discovery/core"
)

// 确保 RedisStore 实现了 core.Store 接口
var _ core.Store = (*RedisStore)(nil)

// RedisOptions 是 Redis 连接配置。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// ScanCount 是 Keys 每次 SCAN 的建议数量
	ScanCount int64
}

// RedisStore 是 Redis 实现的 Store，生产环境使用。
// 所有读写失败都原样返回，由调用方按 CACHE_UNAVAILABLE 降级。
type RedisStore struct {
	client    *redis.Client
	scanCount int64
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeCacheUnavailable, "redis: ping failed", err)
	}
	return NewRedisStoreFromClient(client, opts.ScanCount), nil
}

// NewRedisStoreFromClient 复用已有的 redis.Client（例如与布隆过滤器共享连接）。
func NewRedisStoreFromClient(client *redis.Client, scanCount int64) *RedisStore {
	if scanCount <= 0 {
		scanCount = 500
	}
	return &RedisStore{client: client, scanCount: scanCount}
}

// Client 返回底层客户端。
func (r *RedisStore) Client() *redis.Client { return r.client }

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return r.client.Set(ctx, key, value, expiration(ttl)).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if s, ok := vals[i].(string); ok {
			result[k] = []byte(s)
		}
	}
	return result, nil
}

func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	if len(kvs) == 0 {
		return nil
	}
	exp := expiration(ttl)
	pipe := r.client.Pipeline()
	for k, v := range kvs {
		pipe.Set(ctx, k, v, exp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Keys 使用 SCAN MATCH prefix* 遍历，避免 KEYS 阻塞 Redis。
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", r.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func expiration(ttl []int) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Duration(ttl[0]) * time.Second
	}
	return 0
}

// escapeGlob 转义 Redis MATCH 的通配字符，使 prefix 按字面匹配。
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
