package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// BlacklistFilter 是内容黑名单过滤器（审核下架、举报处理中的内容）。
type BlacklistFilter struct {
	// ItemIDs 是内存中的黑名单内容 ID
	ItemIDs []string

	// Store 用于从存储中读取黑名单（可选）
	Store BlacklistStore

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// BlacklistStore 是黑名单存储接口。
type BlacklistStore interface {
	// GetBlacklist 获取黑名单内容 ID 列表
	GetBlacklist(ctx context.Context, key string) ([]string, error)
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string, storeAdapter *StoreAdapter, key string) *BlacklistFilter {
	var store BlacklistStore
	if storeAdapter != nil {
		store = storeAdapter
	}
	return &BlacklistFilter{
		ItemIDs: itemIDs,
		Store:   store,
		Key:     key,
	}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	cand *core.Candidate,
) (bool, error) {
	if cand == nil || cand.Item == nil {
		return true, nil
	}
	for _, id := range f.ItemIDs {
		if cand.Item.ID == id {
			return true, nil
		}
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	blacklist, err := f.load(ctx, rctx)
	if err != nil {
		return false, err
	}
	for _, id := range blacklist {
		if cand.Item.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// load 每个请求只读取一次黑名单，结果记在 rctx.Params 中。
func (f *BlacklistFilter) load(ctx context.Context, rctx *core.RecommendContext) ([]string, error) {
	param := "filter.blacklist:" + f.Key
	if rctx != nil && rctx.Params != nil {
		if ids, ok := rctx.Params[param].([]string); ok {
			return ids, nil
		}
	}
	ids, err := f.Store.GetBlacklist(ctx, f.Key)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	if rctx != nil && rctx.Params != nil {
		rctx.Params[param] = ids
	}
	return ids, nil
}
