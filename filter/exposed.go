package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// ExposedFilter 是已看过滤器，过滤掉用户已经看过的内容。
// 支持两种数据源：
// 1. 近期已看 ID 列表：检索阶段解析到 rctx.Relations.Seen
// 2. 布隆过滤器（较长周期数据，按天维度实现时间窗口）：逐个候选检查
type ExposedFilter struct {
	// Store 用于检查布隆过滤器，可为 nil
	Store ExposedStore

	// KeyPrefix 是布隆过滤器的 key 前缀，实际 key 为 {KeyPrefix}:bloom:{UserID}:{date}
	KeyPrefix string

	// BloomFilterDayWindow 是布隆过滤器的时间窗口（天数），为 0 则不使用布隆过滤器
	BloomFilterDayWindow int
}

// ExposedStore 是长周期曝光历史的存储接口。
type ExposedStore interface {
	// CheckExposedInBloomFilter 检查最近 dayWindow 天的布隆过滤器
	// 返回 true 表示可能在布隆过滤器中（存在误判可能），false 表示一定不在
	CheckExposedInBloomFilter(ctx context.Context, userID string, itemID string, keyPrefix string, dayWindow int) (bool, error)
}

// NewExposedFilter 创建一个已看过滤器。
func NewExposedFilter(storeAdapter *StoreAdapter, keyPrefix string, bloomFilterDayWindow int) *ExposedFilter {
	var store ExposedStore
	if storeAdapter != nil {
		store = storeAdapter
	}
	if keyPrefix == "" {
		keyPrefix = KeyPrefixExposed
	}
	return &ExposedFilter{
		Store:                store,
		KeyPrefix:            keyPrefix,
		BloomFilterDayWindow: bloomFilterDayWindow,
	}
}

func (f *ExposedFilter) Name() string {
	return "filter.exposed"
}

func (f *ExposedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	cand *core.Candidate,
) (bool, error) {
	if cand == nil || cand.Item == nil || rctx == nil || rctx.UserID == "" {
		return false, nil
	}

	if rctx.Relations.HasSeen(cand.Item.ID) {
		return true, nil
	}

	if f.Store == nil || f.BloomFilterDayWindow <= 0 {
		return false, nil
	}
	// 布隆过滤器误判只会多过滤，不会放过已看内容
	return f.Store.CheckExposedInBloomFilter(ctx, rctx.UserID, cand.Item.ID, f.KeyPrefix, f.BloomFilterDayWindow)
}
