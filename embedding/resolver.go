package embedding

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/logger"
)

// KeyPrefixEmbedding 是内容向量在 KV 中的 key：post:{id}:embedding，不设置过期时间。
const KeyPrefixEmbedding = "post"

// EmbeddingKey 返回内容向量的缓存 key。
func EmbeddingKey(itemID string) string {
	return KeyPrefixEmbedding + ":" + itemID + ":embedding"
}

// Resolved 是成功解析出向量的内容。
type Resolved struct {
	Item   *core.ContentItem
	Vector []float64
}

// ItemResolver 解析内容向量，逐级查找：
// 进程内缓存 → KV（post:{id}:embedding）→ 内容自带的 Embedding → Provider 计算 Text。
// Provider 计算出的向量回写 KV 与向量索引。进程内缓存只保留 LocalTTL，长期副本在 KV。
type ItemResolver struct {
	Local    *cache.Cache
	KV       core.Store
	Content  core.ContentStore
	Provider core.EmbeddingProvider

	// Vector 可选，Provider 计算出的向量会 upsert 到 Collection
	Vector     core.VectorDatabaseService
	Collection string

	Logger *logger.Logger
}

// 进程内向量缓存的过期时间与清理间隔
const (
	LocalTTL     = 30 * time.Minute
	LocalCleanup = 10 * time.Minute
)

// NewItemResolver 创建内容向量解析器。
func NewItemResolver(kv core.Store, content core.ContentStore, provider core.EmbeddingProvider) *ItemResolver {
	return &ItemResolver{
		Local:    cache.New(LocalTTL, LocalCleanup),
		KV:       kv,
		Content:  content,
		Provider: provider,
		Logger:   logger.NewNop(),
	}
}

// Resolve 解析单个内容的向量。内容不存在返回 NOT_FOUND，无法得到向量返回 NO_VALID_SIGNAL。
func (r *ItemResolver) Resolve(ctx context.Context, itemID string) ([]float64, error) {
	if vec, ok := r.cached(ctx, itemID); ok {
		return vec, nil
	}
	item, err := r.Content.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return r.ResolveItem(ctx, item)
}

// ResolveItem 解析已加载内容的向量。
func (r *ItemResolver) ResolveItem(ctx context.Context, item *core.ContentItem) ([]float64, error) {
	if item == nil {
		return nil, core.ErrItemNotFound
	}
	if vec, ok := r.cached(ctx, item.ID); ok {
		return vec, nil
	}
	if len(item.Embedding) > 0 {
		r.remember(ctx, item.ID, item.Embedding)
		return item.Embedding, nil
	}
	if r.Provider == nil || item.Text == "" {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeNoValidSignal, "embedding: item has no embedding and no text: "+item.ID)
	}

	vec, err := r.Provider.Embed(ctx, item.Text)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, item.ID, vec)
	if r.Vector != nil && r.Collection != "" {
		if err := r.Vector.Update(ctx, &core.VectorUpdateRequest{
			Collection: r.Collection,
			ID:         item.ID,
			Vector:     vec,
			Metadata:   ItemMetadata(item),
		}); err != nil {
			r.log().Warn("vector index upsert failed", "item_id", item.ID, "error", err)
		}
	}
	return vec, nil
}

// ResolveMany 批量解析，按 ids 顺序返回能解析出向量的内容，其余跳过。
// 只有内容存储失败时返回错误。
func (r *ItemResolver) ResolveMany(ctx context.Context, ids []string) ([]Resolved, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := r.Content.GetItems(ctx, ids)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleEmbedding, core.ErrorCodeUpstreamUnavailable, "embedding: load items", err)
	}
	byID := make(map[string]*core.ContentItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	out := make([]Resolved, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			continue
		}
		vec, err := r.ResolveItem(ctx, it)
		if err != nil {
			r.log().Debug("skip item without embedding", "item_id", id, "error", err)
			continue
		}
		out = append(out, Resolved{Item: it, Vector: vec})
	}
	return out, nil
}

// ItemMetadata 是写入向量索引的元数据。
func ItemMetadata(item *core.ContentItem) map[string]interface{} {
	return map[string]interface{}{
		"author_id":    item.AuthorID,
		"content_type": string(item.ContentType),
		"is_private":   item.IsPrivate,
		"created_at":   item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// cached 查进程内缓存与 KV，KV 故障视为未命中。
func (r *ItemResolver) cached(ctx context.Context, itemID string) ([]float64, bool) {
	if r.Local != nil {
		if v, ok := r.Local.Get(itemID); ok {
			return v.([]float64), true
		}
	}
	if r.KV == nil {
		return nil, false
	}
	data, err := r.KV.Get(ctx, EmbeddingKey(itemID))
	if err != nil {
		if !core.IsStoreNotFound(err) {
			r.log().Warn("embedding cache read failed", "item_id", itemID, "error", err)
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	if r.Local != nil {
		r.Local.Set(itemID, vec, cache.DefaultExpiration)
	}
	return vec, true
}

func (r *ItemResolver) remember(ctx context.Context, itemID string, vec []float64) {
	if r.Local != nil {
		r.Local.Set(itemID, vec, cache.DefaultExpiration)
	}
	if r.KV == nil {
		return
	}
	buf, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := r.KV.Set(ctx, EmbeddingKey(itemID), buf); err != nil {
		r.log().Warn("embedding cache write failed", "item_id", itemID, "error", err)
	}
}

// Forget 丢弃进程内缓存的向量，内容重新索引前调用。KV 中的向量由缓存失效规则删除。
func (r *ItemResolver) Forget(itemID string) {
	if r.Local != nil {
		r.Local.Delete(itemID)
	}
}

func (r *ItemResolver) log() *logger.Logger {
	if r.Logger == nil {
		return logger.NewNop()
	}
	return r.Logger
}
