package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/discovery/core"
)

var (
	_ core.ContentStore     = (*MemoryContentStore)(nil)
	_ core.InteractionStore = (*MemoryContentStore)(nil)
)

// MemoryContentStore 是内存实现的内容存储与互动历史，用于测试/开发/原型。
type MemoryContentStore struct {
	mu    sync.RWMutex
	items map[string]*core.ContentItem
	saves map[string][]interaction // user ID -> 收藏记录（时间升序）
}

type interaction struct {
	itemID string
	at     time.Time
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		items: make(map[string]*core.ContentItem),
		saves: make(map[string][]interaction),
	}
}

// Put 写入或覆盖内容。
func (m *MemoryContentStore) Put(items ...*core.ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if it == nil || it.ID == "" {
			continue
		}
		m.items[it.ID] = it
	}
}

// Remove 删除内容。
func (m *MemoryContentStore) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// RecordSave 记录一次收藏，并累加内容的收藏计数。
func (m *MemoryContentStore) RecordSave(userID, itemID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[userID] = append(m.saves[userID], interaction{itemID: itemID, at: at})
	if it, ok := m.items[itemID]; ok {
		it.Engagement.SaveCount++
	}
}

func (m *MemoryContentStore) QueryVisibleItems(ctx context.Context, viewerID string, filter core.ItemFilter) ([]*core.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	excludeAuthors := toSet(filter.ExcludeAuthorIDs)
	excludeItems := toSet(filter.ExcludeItemIDs)
	followed := toSet(filter.FollowedAuthorIDs)
	types := make(map[core.ContentType]struct{}, len(filter.ContentTypes))
	for _, t := range filter.ContentTypes {
		types[t] = struct{}{}
	}

	m.mu.RLock()
	out := make([]*core.ContentItem, 0)
	for _, it := range m.items {
		if _, ok := excludeAuthors[it.AuthorID]; ok {
			continue
		}
		if _, ok := excludeItems[it.ID]; ok {
			continue
		}
		if it.IsPrivate && it.AuthorID != viewerID {
			if _, ok := followed[it.AuthorID]; !ok {
				continue
			}
		}
		if !filter.MinCreatedAt.IsZero() && it.CreatedAt.Before(filter.MinCreatedAt) {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[it.ContentType]; !ok {
				continue
			}
		}
		out = append(out, it)
	}
	m.mu.RUnlock()

	SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryContentStore) GetItem(ctx context.Context, id string) (*core.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, core.ErrItemNotFound
	}
	return it, nil
}

func (m *MemoryContentStore) GetItems(ctx context.Context, ids []string) ([]*core.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.ContentItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// SavedItemIDs 返回最近收藏的内容 ID，最新在前。
func (m *MemoryContentStore) SavedItemIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	saves := m.saves[userID]
	ids := make([]string, 0, len(saves))
	seen := make(map[string]struct{}, len(saves))
	for i := len(saves) - 1; i >= 0; i-- {
		id := saves[i].itemID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// CreatedItemIDs 返回用户发布的内容 ID，最新在前。
func (m *MemoryContentStore) CreatedItemIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	m.mu.RLock()
	own := make([]*core.ContentItem, 0)
	for _, it := range m.items {
		if it.AuthorID == userID {
			own = append(own, it)
		}
	}
	m.mu.RUnlock()

	SortNewestFirst(own)
	if limit > 0 && len(own) > limit {
		own = own[:limit]
	}
	ids := make([]string, len(own))
	for i, it := range own {
		ids[i] = it.ID
	}
	return ids, nil
}

// RecentHashtags 汇总最近收藏与发布内容的话题，去重后按首次出现顺序返回。
func (m *MemoryContentStore) RecentHashtags(ctx context.Context, userID string, limit int) ([]string, error) {
	saved, _ := m.SavedItemIDs(ctx, userID, limit)
	created, _ := m.CreatedItemIDs(ctx, userID, limit)
	items, _ := m.GetItems(ctx, append(saved, created...))

	tags := make([]string, 0)
	seen := make(map[string]struct{})
	for _, it := range items {
		for _, h := range it.Hashtags {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			tags = append(tags, h)
		}
	}
	return tags, nil
}

// SortNewestFirst 按创建时间倒序排序，同一时间按 ID 升序。
func SortNewestFirst(items []*core.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
