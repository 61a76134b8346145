package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// UserBlockFilter 是用户拉黑过滤器：任一方向存在拉黑，作者的内容都不可见。
type UserBlockFilter struct{}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

func (f *UserBlockFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	cand *core.Candidate,
) (bool, error) {
	if cand == nil || cand.Item == nil || rctx == nil {
		return false, nil
	}
	return rctx.Relations.IsBlocked(cand.Item.AuthorID), nil
}
