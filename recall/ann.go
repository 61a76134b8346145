package recall

import (
	"context"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/utils"
)

// LabelANNScore 记录向量检索返回的原始分数
const LabelANNScore = "ann_score"

// ANN 是 Embedding 向量检索召回源（Approximate Nearest Neighbor）。
// 以用户画像向量为查询向量，命中 ID 再回内容存储取完整内容。
// 冷启动用户（没有画像）返回 ErrSkipped。
type ANN struct {
	Vector  core.VectorService
	Content core.ContentStore

	Collection string
	Metric     string

	// TopK 是默认检索数量，rctx.Params[candidate_limit] 优先
	TopK int

	// Window 只保留该时间窗口内的内容，0 表示不限
	Window time.Duration
}

func (r *ANN) Name() string { return "recall.ann" }

func (r *ANN) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Candidate, error) {
	if r.Vector == nil || r.Content == nil || rctx == nil || rctx.Profile == nil || len(rctx.Profile.Vector) == 0 {
		return nil, ErrSkipped
	}

	res, err := r.Vector.Search(ctx, &core.VectorSearchRequest{
		Collection: r.Collection,
		Vector:     rctx.Profile.Vector,
		TopK:       CandidateLimit(rctx, r.TopK),
		Metric:     r.Metric,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(res.Items))
	scores := make(map[string]float64, len(res.Items))
	for i, hit := range res.Items {
		ids[i] = hit.ID
		scores[hit.ID] = hit.Score
	}
	items, err := r.Content.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	var minCreatedAt time.Time
	if r.Window > 0 {
		minCreatedAt = requestNow(rctx).Add(-r.Window)
	}
	out := make([]*core.Candidate, 0, len(items))
	for _, it := range items {
		if !minCreatedAt.IsZero() && it.CreatedAt.Before(minCreatedAt) {
			continue
		}
		c := core.NewCandidate(it)
		c.PutLabel(LabelANNScore, utils.Label{Value: formatScore(scores[it.ID]), Source: "recall"})
		out = append(out, c)
	}
	return out, nil
}
