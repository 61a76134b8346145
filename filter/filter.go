// Package filter 实现候选可见性过滤：自己的内容、双向拉黑、已看过、私密内容。
//
// 关系数据在检索阶段一次性解析为 core.UserRelations 并挂在 RecommendContext 上，
// 过滤器只读取快照，不在逐个候选上访问存储。
package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// Filter 是过滤器的抽象接口，用于判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断候选是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, cand *core.Candidate) (bool, error)
}

// DefaultFilters 返回推荐流必须的过滤器组合。
func DefaultFilters(adapter *StoreAdapter, bloomDayWindow int) []Filter {
	return []Filter{
		&OwnContentFilter{},
		&UserBlockFilter{},
		&PrivacyFilter{},
		NewExposedFilter(adapter, "", bloomDayWindow),
	}
}
