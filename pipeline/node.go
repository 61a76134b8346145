package pipeline

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall Kind = "recall" // 召回阶段：生成候选集
	KindFilter Kind = "filter" // 过滤阶段：剔除不可见 / 已看 / 拉黑的候选
	KindScore  Kind = "score"  // 打分阶段：计算各维度得分与 finalScore
	KindRank   Kind = "rank"   // 排序阶段：按 finalScore 稳定排序
	KindReRank Kind = "rerank" // 重排阶段：多样性提升、截断
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入 candidates -> 输出 candidates”的形态。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		cands []*core.Candidate,
	) ([]*core.Candidate, error)
}

// NodeFunc 把普通函数包装为 Node。
type NodeFunc struct {
	NodeName string
	NodeKind Kind
	Fn       func(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate) ([]*core.Candidate, error)
}

func (n NodeFunc) Name() string { return n.NodeName }
func (n NodeFunc) Kind() Kind   { return n.NodeKind }

func (n NodeFunc) Process(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate) ([]*core.Candidate, error) {
	return n.Fn(ctx, rctx, cands)
}
