package service

import (
	"context"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/embedding"
	"github.com/rushteam/discovery/metrics"
	"github.com/rushteam/discovery/recall"
)

// InvalidateByPattern 删除匹配 glob 模式的缓存 key。
func (d *Discovery) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	return d.invalidator.InvalidateByPattern(ctx, pattern)
}

// InvalidateByEvent 按失效规则处理事件。
func (d *Discovery) InvalidateByEvent(ctx context.Context, ev cache.Event) (int, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.clock()
	}
	return d.invalidator.InvalidateByEvent(ctx, ev)
}

// GetPerformanceSummary 返回最近请求的性能汇总。
func (d *Discovery) GetPerformanceSummary() metrics.PerformanceSummary {
	return d.monitor.Summary()
}

// EnsureCollection 在向量索引中创建内容集合（已存在时不做任何事）。
func (d *Discovery) EnsureCollection(ctx context.Context) error {
	ok, err := d.vector.HasCollection(ctx, d.opts.Collection)
	if err != nil {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: check vector collection", err)
	}
	if ok {
		return nil
	}
	return d.vector.CreateCollection(ctx, &core.VectorCreateCollectionRequest{
		Name:      d.opts.Collection,
		Dimension: d.opts.Dimension,
		Metric:    d.opts.Metric,
	})
}

// IndexItem 计算内容向量并写入向量索引。内容已经索引过时先按 post_update 失效旧缓存。
func (d *Discovery) IndexItem(ctx context.Context, item *core.ContentItem) error {
	if item == nil || item.ID == "" {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: item id is required")
	}

	existed := false
	if _, err := d.kv.Get(ctx, embedding.EmbeddingKey(item.ID)); err == nil {
		existed = true
	}
	if existed {
		d.resolver.Forget(item.ID)
		if _, err := d.InvalidateByEvent(ctx, cache.Event{
			Type:        "post_update",
			ContentID:   item.ID,
			ContentType: string(item.ContentType),
			UserID:      item.AuthorID,
		}); err != nil {
			d.logger.Warn("post invalidation failed", "item_id", item.ID, "error", err)
		}
	}

	vec, err := d.resolver.ResolveItem(ctx, item)
	if err != nil {
		return err
	}
	if err := d.vector.Update(ctx, &core.VectorUpdateRequest{
		Collection: d.opts.Collection,
		ID:         item.ID,
		Vector:     vec,
		Metadata:   embedding.ItemMetadata(item),
	}); err != nil {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: index item", err)
	}
	d.logger.Debug("item indexed", "item_id", item.ID, "reindexed", existed, "dimension", len(vec))
	return nil
}

// RemoveItem 从向量索引删除内容并失效相关缓存。
func (d *Discovery) RemoveItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: item id is required")
	}
	d.resolver.Forget(itemID)
	if err := d.vector.Delete(ctx, &core.VectorDeleteRequest{Collection: d.opts.Collection, IDs: []string{itemID}}); err != nil {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: remove item", err)
	}
	if _, err := d.InvalidateByEvent(ctx, cache.Event{Type: "post_delete", ContentID: itemID}); err != nil {
		d.logger.Warn("post invalidation failed", "item_id", itemID, "error", err)
	}
	return nil
}

// PublishHotItems 写入离线计算的热门内容列表（热度降序），ttl 为 0 表示不过期。
func (d *Discovery) PublishHotItems(ctx context.Context, itemIDs []string, ttl int) error {
	return recall.PublishHot(ctx, d.kv, recall.KeyHotItems, itemIDs, ttl)
}

// MarkSeen 记录用户看过的内容，之后的请求会排除它们。
func (d *Discovery) MarkSeen(ctx context.Context, userID string, itemIDs []string) error {
	if userID == "" {
		return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: user id is required")
	}
	if len(itemIDs) == 0 {
		return nil
	}
	return d.relations.MarkSeen(ctx, userID, itemIDs)
}

// Block 拉黑用户，双方的 feed 缓存都会失效。
func (d *Discovery) Block(ctx context.Context, userID, targetID string) error {
	if err := d.relations.Block(ctx, userID, targetID); err != nil {
		return err
	}
	d.invalidateFeeds(ctx, "block", userID, targetID)
	return nil
}

// Unblock 取消拉黑。
func (d *Discovery) Unblock(ctx context.Context, userID, targetID string) error {
	if err := d.relations.Unblock(ctx, userID, targetID); err != nil {
		return err
	}
	d.invalidateFeeds(ctx, "unblock", userID, targetID)
	return nil
}

// Follow 关注用户。
func (d *Discovery) Follow(ctx context.Context, userID, targetID string) error {
	if err := d.relations.Follow(ctx, userID, targetID); err != nil {
		return err
	}
	d.invalidateFeeds(ctx, "follow", userID)
	return nil
}

// Unfollow 取消关注。
func (d *Discovery) Unfollow(ctx context.Context, userID, targetID string) error {
	if err := d.relations.Unfollow(ctx, userID, targetID); err != nil {
		return err
	}
	d.invalidateFeeds(ctx, "unfollow", userID)
	return nil
}

// invalidateFeeds 按社交关系事件失效缓存，并删除相关用户的发现流缓存。
func (d *Discovery) invalidateFeeds(ctx context.Context, action string, userIDs ...string) {
	now := d.clock()
	for _, id := range userIDs {
		if _, err := d.InvalidateByEvent(ctx, cache.Event{Type: action, UserID: id, Timestamp: now}); err != nil {
			d.logger.Warn("social invalidation failed", "user_id", id, "action", action, "error", err)
		}
		if _, err := d.invalidator.InvalidateByPattern(ctx, userFeedPattern(id)); err != nil {
			d.logger.Warn("feed invalidation failed", "user_id", id, "error", err)
		}
	}
}
