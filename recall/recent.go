package recall

import (
	"context"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
)

// Recent 是最新内容召回源：从内容存储按时间倒序读取 viewer 可见的内容。
// 自己的内容、双向拉黑的作者、已看内容在存储查询中直接排除。
// Recent 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Recent struct {
	Store core.ContentStore

	// Window 只召回该时间窗口内的内容，0 表示不限
	Window time.Duration

	// Limit 是默认候选上限，rctx.Params[candidate_limit] 优先
	Limit int

	// ContentTypes 只召回这些类型（空表示不限）
	ContentTypes []core.ContentType
}

func (r *Recent) Name() string        { return "recall.recent" }
func (r *Recent) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Recent) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Candidate,
) ([]*core.Candidate, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Recent) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Candidate, error) {
	if r.Store == nil {
		return nil, nil
	}

	filter := VisibilityFilter(rctx)
	filter.Limit = CandidateLimit(rctx, r.Limit)
	filter.ContentTypes = r.ContentTypes
	if r.Window > 0 {
		filter.MinCreatedAt = requestNow(rctx).Add(-r.Window)
	}

	items, err := r.Store.QueryVisibleItems(ctx, viewerID(rctx), filter)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Candidate, 0, len(items))
	for _, it := range items {
		out = append(out, core.NewCandidate(it))
	}
	return out, nil
}

// VisibilityFilter 由请求上下文中的关系快照构造存储查询条件。
func VisibilityFilter(rctx *core.RecommendContext) core.ItemFilter {
	var f core.ItemFilter
	if rctx == nil {
		return f
	}
	if rctx.UserID != "" {
		f.ExcludeAuthorIDs = append(f.ExcludeAuthorIDs, rctx.UserID)
	}
	if rctx.Relations != nil {
		f.ExcludeAuthorIDs = append(f.ExcludeAuthorIDs, rctx.Relations.BlockedIDs()...)
		f.ExcludeItemIDs = rctx.Relations.SeenIDs()
		f.FollowedAuthorIDs = rctx.Relations.FollowingIDs()
	}
	return f
}

func viewerID(rctx *core.RecommendContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.UserID
}

func requestNow(rctx *core.RecommendContext) time.Time {
	if rctx == nil || rctx.Now.IsZero() {
		return time.Now()
	}
	return rctx.Now
}
