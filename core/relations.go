package core

import "sort"

// UserRelations 是一次请求内解析好的社交关系快照。
// 拉黑是双向的：Blocked 同时包含用户拉黑的人和拉黑了用户的人。
type UserRelations struct {
	Blocked   map[string]struct{}
	Following map[string]struct{}
	Seen      map[string]struct{}
}

// NewUserRelations 由 ID 列表构建关系快照。
func NewUserRelations(blocked, following, seen []string) *UserRelations {
	return &UserRelations{
		Blocked:   idSet(blocked),
		Following: idSet(following),
		Seen:      idSet(seen),
	}
}

// IsBlocked 判断与 authorID 之间是否存在任一方向的拉黑。
func (r *UserRelations) IsBlocked(authorID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Blocked[authorID]
	return ok
}

// Follows 判断是否关注了 authorID。
func (r *UserRelations) Follows(authorID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Following[authorID]
	return ok
}

// HasSeen 判断内容是否已看过。
func (r *UserRelations) HasSeen(itemID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Seen[itemID]
	return ok
}

// BlockedIDs 返回排序后的拉黑用户列表，用于构造 ItemFilter。
func (r *UserRelations) BlockedIDs() []string {
	if r == nil {
		return nil
	}
	return sortedIDs(r.Blocked)
}

// FollowingIDs 返回排序后的关注列表。
func (r *UserRelations) FollowingIDs() []string {
	if r == nil {
		return nil
	}
	return sortedIDs(r.Following)
}

// SeenIDs 返回排序后的已看内容列表。
func (r *UserRelations) SeenIDs() []string {
	if r == nil {
		return nil
	}
	return sortedIDs(r.Seen)
}

func sortedIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
