package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/dsl"
)

// ExprFilter 使用 CEL 表达式过滤候选，表达式为 true 时过滤。
//
//	f, _ := filter.NewExprFilter(`item.content_type == "video" && item.view_count < 10`)
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式并创建过滤器。
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, cand *core.Candidate) (bool, error) {
	return f.prg.EvalCandidate(cand, rctx)
}
