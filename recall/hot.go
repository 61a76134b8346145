package recall

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
)

// KeyHotItems 是热门内容列表的默认 key，值为 JSON 数组（热度降序）
const KeyHotItems = "discovery:hot:items"

// Hot 是热门召回源：从 KV 读取离线计算的热门内容 ID，再回内容存储取完整内容。
// 列表不存在时返回 ErrSkipped。
// Hot 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用。
type Hot struct {
	KV      core.Store
	Content core.ContentStore

	// Key 为空时使用 KeyHotItems
	Key string

	// Window 只保留该时间窗口内的内容，0 表示不限
	Window time.Duration
}

func (r *Hot) Name() string        { return "recall.hot" }
func (r *Hot) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Hot) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Candidate,
) ([]*core.Candidate, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Hot) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Candidate, error) {
	if r.KV == nil || r.Content == nil {
		return nil, ErrSkipped
	}
	data, err := r.KV.Get(ctx, r.key())
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, ErrSkipped
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil || len(ids) == 0 {
		return nil, ErrSkipped
	}
	if max := CandidateLimit(rctx, 0); max > 0 && len(ids) > max {
		ids = ids[:max]
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
		out = append(out, core.NewCandidate(it))
	}
	return out, nil
}

// PublishHot 写入热门内容列表。
func PublishHot(ctx context.Context, kv core.Store, key string, ids []string, ttl int) error {
	if key == "" {
		key = KeyHotItems
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if ttl > 0 {
		return kv.Set(ctx, key, data, ttl)
	}
	return kv.Set(ctx, key, data)
}

func (r *Hot) key() string {
	if r.Key == "" {
		return KeyHotItems
	}
	return r.Key
}
