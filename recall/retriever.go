package recall

import (
	"context"
	"sort"
	"strconv"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/filter"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/logger"
)

// ParamLimit 是 rctx.Params 中本次请求最终返回的数量。
const ParamLimit = "limit"

// ParamCandidateBudget 是 rctx.Params 中可选的候选集规模，大于 limit*Multiplier 时生效。
const ParamCandidateBudget = "candidate_budget"

// DefaultCandidateMultiplier 是候选集相对返回数量的放大倍数
const DefaultCandidateMultiplier = 3

// RelationLoader 读取用户的拉黑 / 关注 / 已看关系，filter.StoreAdapter 实现此接口。
type RelationLoader interface {
	LoadRelations(ctx context.Context, userID string) (*core.UserRelations, error)
}

// Retriever 为一个用户生成有界候选集：解析关系 → 并发召回 → 可见性过滤。
// 这里不做排序，候选按创建时间倒序返回。
type Retriever struct {
	Fanout    *Fanout
	Relations RelationLoader
	Filters   []filter.Filter

	// Fallback 是降级路径使用的召回源（通常是不限时间窗口的 Recent）
	Fallback Source

	// Multiplier 候选集数量 = limit * Multiplier
	Multiplier int

	Logger *logger.Logger
}

func (r *Retriever) Name() string        { return "recall.retriever" }
func (r *Retriever) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，limit 取自 rctx.Params[limit]。
func (r *Retriever) Process(ctx context.Context, rctx *core.RecommendContext, _ []*core.Candidate) ([]*core.Candidate, error) {
	limit, _ := rctx.Params[ParamLimit].(int)
	return r.Retrieve(ctx, rctx, limit)
}

// Retrieve 返回最多 limit*Multiplier 个已过滤的候选（ParamCandidateBudget 可放大）。
// 召回源全部失败时返回 UPSTREAM_UNAVAILABLE，调用方据此降级。
func (r *Retriever) Retrieve(ctx context.Context, rctx *core.RecommendContext, limit int) ([]*core.Candidate, error) {
	if limit <= 0 {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeInvalidInput, "recall: limit must be positive")
	}
	if err := r.prepare(ctx, rctx); err != nil {
		return nil, err
	}

	max := limit * r.multiplier()
	if b, ok := rctx.Params[ParamCandidateBudget].(int); ok && b > max {
		max = b
	}
	rctx.Params[ParamCandidateLimit] = max

	cands, err := r.Fanout.Process(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, rctx, cands, max), nil
}

// GetCandidates 是 Retrieve 的降级版本：任何错误都返回空列表并记录日志。
func (r *Retriever) GetCandidates(ctx context.Context, rctx *core.RecommendContext, limit int) []*core.ContentItem {
	cands, err := r.Retrieve(ctx, rctx, limit)
	if err != nil {
		r.log().Warn("candidate retrieval failed, returning empty set",
			"user_id", rctx.UserID, "request_id", rctx.RequestID, "error", err)
		return []*core.ContentItem{}
	}
	items := make([]*core.ContentItem, len(cands))
	for i, c := range cands {
		items[i] = c.Item
	}
	return items
}

// RetrieveFallback 只走降级召回源，返回最新的可见内容（不打分）。
func (r *Retriever) RetrieveFallback(ctx context.Context, rctx *core.RecommendContext, limit int) ([]*core.Candidate, error) {
	if r.Fallback == nil {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeNotSupported, "recall: no fallback source")
	}
	if err := r.prepare(ctx, rctx); err != nil {
		return nil, err
	}
	rctx.Params[ParamCandidateLimit] = limit

	cands, err := r.Fallback.Recall(ctx, rctx)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUpstreamUnavailable, "recall: fallback source failed", err)
	}
	return r.finish(ctx, rctx, cands, limit), nil
}

// prepare 解析关系快照。拉黑关系是可见性约束，读取失败时不放行。
func (r *Retriever) prepare(ctx context.Context, rctx *core.RecommendContext) error {
	if rctx.Params == nil {
		rctx.Params = make(map[string]any)
	}
	if rctx.Relations != nil || r.Relations == nil {
		return nil
	}
	rel, err := r.Relations.LoadRelations(ctx, rctx.UserID)
	if err != nil {
		return core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUpstreamUnavailable, "recall: load user relations", err)
	}
	rctx.Relations = rel
	return nil
}

func (r *Retriever) finish(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate, max int) []*core.Candidate {
	node := &filter.FilterNode{
		Filters: r.Filters,
		OnError: func(name string, c *core.Candidate, err error) {
			r.log().Debug("filter error ignored", "filter", name, "item_id", c.ID(), "error", err)
		},
	}
	out, _ := node.Process(ctx, rctx, cands)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Item, out[j].Item
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func (r *Retriever) multiplier() int {
	if r.Multiplier <= 0 {
		return DefaultCandidateMultiplier
	}
	return r.Multiplier
}

func (r *Retriever) log() *logger.Logger {
	if r.Logger == nil {
		return logger.NewNop()
	}
	return r.Logger
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
