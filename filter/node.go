package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/utils"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该候选就会被过滤掉。
type FilterNode struct {
	Filters []Filter

	// OnError 在单个过滤器出错时回调，错误不中断流程
	OnError func(filter string, cand *core.Candidate, err error)
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(n.Filters) == 0 || len(cands) == 0 {
		return cands, nil
	}

	out := make([]*core.Candidate, 0, len(cands))
	for _, cand := range cands {
		if cand == nil || cand.Item == nil {
			continue
		}
		if reason := n.match(ctx, rctx, cand); reason != "" {
			cand.PutLabel(utils.LabelFiltered, utils.Label{Value: "true", Source: reason})
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// match 返回命中的过滤器名称，未命中返回空串
func (n *FilterNode) match(ctx context.Context, rctx *core.RecommendContext, cand *core.Candidate) string {
	for _, f := range n.Filters {
		ok, err := f.ShouldFilter(ctx, rctx, cand)
		if err != nil {
			if n.OnError != nil {
				n.OnError(f.Name(), cand, err)
			}
			continue
		}
		if ok {
			return f.Name()
		}
	}
	return ""
}

// Apply 直接对候选执行过滤，供不经过 Pipeline 的调用方使用。
func Apply(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate, filters ...Filter) []*core.Candidate {
	out, _ := (&FilterNode{Filters: filters}).Process(ctx, rctx, cands)
	return out
}
