package service

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/filter"
	"github.com/rushteam/discovery/metrics"
	"github.com/rushteam/discovery/rank"
	"github.com/rushteam/discovery/rerank"
)

// KeyPrefixSimilar 是相似内容缓存 key 前缀：rec_similar:{userId}:{itemId}:{limit}
const KeyPrefixSimilar = "rec_similar"

// 相似内容混合得分权重
const (
	similarWeightSimilarity = 0.6
	similarWeightEngagement = 0.2
	similarWeightTemporal   = 0.2
)

// SimilarItem 是相似内容结果。
type SimilarItem struct {
	Item            *core.ContentItem `json:"item"`
	SimilarityScore float64           `json:"similarity_score"`
	Score           float64           `json:"score"`
	Rank            int               `json:"rank"`
}

// SimilarKey 返回相似内容缓存 key。
func SimilarKey(userID, itemID string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", KeyPrefixSimilar, userID, itemID, limit)
}

// FindSimilarContent 返回与 itemID 相似、对 userID 可见的内容。
//
// 向量检索 limit*3+1 个近邻（+1 是参考内容本身），相似度低于阈值的丢弃，
// 按 0.6*相似度 + 0.2*互动 + 0.2*时效 排序后取 limit 个。
func (d *Discovery) FindSimilarContent(ctx context.Context, itemID, userID string, limit int) ([]SimilarItem, error) {
	if itemID == "" || userID == "" {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: item id and user id are required")
	}
	if limit <= 0 {
		limit = d.opts.SimilarDefaultLimit
	}
	if limit > d.opts.MaxLimit {
		limit = d.opts.MaxLimit
	}

	key := SimilarKey(userID, itemID, limit)
	if out, ok := d.cachedSimilar(ctx, key); ok {
		d.metrics.ObserveSimilar("cache")
		return out, nil
	}

	out, err := d.findSimilar(ctx, itemID, userID, limit)
	if err != nil {
		d.metrics.ObserveSimilar("error")
		d.logger.Warn("find similar content failed", "item_id", itemID, "user_id", userID, "error", err)
		return nil, err
	}
	d.metrics.ObserveSimilar("ok")

	if data, err := json.Marshal(out); err == nil {
		if err := d.kv.Set(ctx, key, data, d.opts.SimilarTTL); err != nil {
			d.logger.Warn("similar cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

func (d *Discovery) findSimilar(ctx context.Context, itemID, userID string, limit int) ([]SimilarItem, error) {
	ref, err := d.resolver.Resolve(ctx, itemID)
	if err != nil {
		return nil, err
	}

	res, err := d.vector.Search(ctx, &core.VectorSearchRequest{
		Collection:  d.opts.Collection,
		Vector:      ref,
		TopK:        limit*3 + 1,
		Metric:      d.opts.Metric,
		WithVectors: true,
	})
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: similar vector search", err)
	}

	sims := make(map[string]float64, len(res.Items))
	ids := make([]string, 0, len(res.Items))
	for _, hit := range res.Items {
		if hit.ID == itemID {
			continue
		}
		sim := rank.SimilarityScore(ref, hit.Vector)
		if len(hit.Vector) == 0 {
			sim = hit.Score
		}
		if sim < d.opts.SimilarMinSimilarity {
			continue
		}
		sims[hit.ID] = sim
		ids = append(ids, hit.ID)
	}
	if len(ids) == 0 {
		return []SimilarItem{}, nil
	}

	items, err := d.content.GetItems(ctx, ids)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: load similar items", err)
	}

	rctx := core.NewRecommendContext("", userID, d.clock())
	rel, err := d.relations.LoadRelations(ctx, userID)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "service: load user relations", err)
	}
	rctx.Relations = rel

	cands := make([]*core.Candidate, 0, len(items))
	for _, it := range items {
		cands = append(cands, core.NewCandidate(it))
	}
	// 相似内容不排除已看过的内容
	filters := append([]filter.Filter{&filter.OwnContentFilter{}, &filter.UserBlockFilter{}, &filter.PrivacyFilter{}}, d.moderation...)
	cands = filter.Apply(ctx, rctx, cands, filters...)

	for _, c := range cands {
		c.FinalScore = similarWeightSimilarity*sims[c.Item.ID] +
			similarWeightEngagement*rank.EngagementScore(c.Item, rctx.Now) +
			similarWeightTemporal*rank.TemporalScore(c.Item, rctx.Now, rank.DefaultDecayHours)
		c.Scored = true
	}
	cands, _ = (&rerank.TopNNode{N: limit}).Process(ctx, rctx, rank.Rank(cands))

	out := make([]SimilarItem, len(cands))
	for i, c := range cands {
		out[i] = SimilarItem{Item: c.Item, SimilarityScore: sims[c.Item.ID], Score: c.FinalScore, Rank: i + 1}
	}
	return out, nil
}

func (d *Discovery) cachedSimilar(ctx context.Context, key string) ([]SimilarItem, bool) {
	data, err := d.kv.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			d.metrics.ObserveCache(metrics.CacheError)
		}
		return nil, false
	}
	var out []SimilarItem
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}
