package core

import (
	"context"
	"time"
)

// ItemFilter 是内容存储的查询条件。
//
// 关系（拉黑、关注、已看）由调用方解析为 ID 列表后传入，
// 因此存储实现不需要理解社交关系。
type ItemFilter struct {
	// ExcludeAuthorIDs 排除这些作者的内容（自己 + 双向拉黑）
	ExcludeAuthorIDs []string

	// ExcludeItemIDs 排除这些内容（已看过）
	ExcludeItemIDs []string

	// FollowedAuthorIDs 私密内容仅在作者被关注时可见
	FollowedAuthorIDs []string

	// MinCreatedAt 只返回该时间之后创建的内容（零值表示不限）
	MinCreatedAt time.Time

	// ContentTypes 只返回这些类型（空表示不限）
	ContentTypes []ContentType

	// Limit 最大返回数量
	Limit int
}

// ContentStore 是内容存储的领域接口。
//
// 实现：
//   - store.MemoryContentStore 实现此接口（测试/原型）
//   - store.BreakerContentStore 为任意实现增加熔断保护
type ContentStore interface {
	// QueryVisibleItems 查询 viewer 可见的内容，默认按创建时间倒序
	QueryVisibleItems(ctx context.Context, viewerID string, filter ItemFilter) ([]*ContentItem, error)

	// GetItem 获取单个内容，不存在返回 NOT_FOUND
	GetItem(ctx context.Context, id string) (*ContentItem, error)

	// GetItems 批量获取内容，不存在的 ID 被忽略
	GetItems(ctx context.Context, ids []string) ([]*ContentItem, error)
}

// InteractionStore 是用户历史行为的领域接口，用于冷启动画像计算与多样性上下文。
type InteractionStore interface {
	// SavedItemIDs 返回用户最近收藏的内容 ID
	SavedItemIDs(ctx context.Context, userID string, limit int) ([]string, error)

	// CreatedItemIDs 返回用户最近发布的内容 ID
	CreatedItemIDs(ctx context.Context, userID string, limit int) ([]string, error)

	// RecentHashtags 返回用户最近互动内容的话题
	RecentHashtags(ctx context.Context, userID string, limit int) ([]string, error)
}

// ErrItemNotFound 表示内容不存在
var ErrItemNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "content: item not found")
