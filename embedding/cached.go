package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rushteam/discovery/core"
)

// CachedProvider 在任意 EmbeddingProvider 外加一层进程内缓存，key 为内容的 sha256。
type CachedProvider struct {
	next  core.EmbeddingProvider
	cache *cache.Cache
}

// NewCachedProvider 创建带缓存的 provider，ttl <= 0 表示永不过期。
func NewCachedProvider(next core.EmbeddingProvider, ttl time.Duration) *CachedProvider {
	expire := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expire = ttl
		cleanup = ttl * 2
	}
	return &CachedProvider{next: next, cache: cache.New(expire, cleanup)}
}

func (p *CachedProvider) Embed(ctx context.Context, content string) ([]float64, error) {
	key := contentKey(content)
	if v, ok := p.cache.Get(key); ok {
		return v.([]float64), nil
	}
	vec, err := p.next.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, cache.DefaultExpiration)
	return vec, nil
}

// Len 返回缓存条目数。
func (p *CachedProvider) Len() int { return p.cache.ItemCount() }

func contentKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
