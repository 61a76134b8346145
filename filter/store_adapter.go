package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
)

// 关系数据在 Store 中的 key 前缀，实际 key 为 {prefix}:{userID}，值为 JSON 数组。
const (
	KeyPrefixBlock     = "user:block"
	KeyPrefixBlockedBy = "user:blocked_by"
	KeyPrefixFollowing = "user:following"
	KeyPrefixExposed   = "user:exposed"
)

// BloomFilterChecker 是布隆过滤器检查器接口。
// 用户可以通过实现此接口来提供自定义的布隆过滤器检查逻辑。
type BloomFilterChecker interface {
	// CheckInBloomFilter 检查 itemID 是否在指定 key 的布隆过滤器中
	// key 格式为 {keyPrefix}:bloom:{userID}:{date}
	// 返回 true 表示可能在布隆过滤器中（存在误判可能），false 表示一定不在
	CheckInBloomFilter(ctx context.Context, key string, itemID string) (bool, error)
}

// BloomFilterWriter 是可写的布隆过滤器，MarkSeen 会同时写入当天的过滤器。
type BloomFilterWriter interface {
	BatchAddToBloomFilter(ctx context.Context, key string, itemIDs []string, ttl int) error
}

// StoreAdapter 将 core.Store 适配为过滤器所需的关系与曝光存储。
// 底层 Store 应是持久的关系存储，不要与 feed 缓存共用。
type StoreAdapter struct {
	store core.Store

	// BloomFilterChecker 是可选的布隆过滤器检查器
	BloomFilterChecker BloomFilterChecker

	// SeenWindow 是已看列表的时间窗口，超出窗口的记录被忽略并在写入时清理
	SeenWindow time.Duration

	// MaxSeen 是已看列表保留的最大条数
	MaxSeen int

	// BloomTTL 是每日布隆过滤器的过期时间（秒）
	BloomTTL int

	now func() time.Time
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{
		store:      s,
		SeenWindow: 7 * 24 * time.Hour,
		MaxSeen:    1000,
		BloomTTL:   31 * 24 * 3600,
		now:        time.Now,
	}
}

// NewStoreAdapterWithBloomFilter 创建一个带布隆过滤器检查器的 core.Store 适配器。
func NewStoreAdapterWithBloomFilter(s core.Store, checker BloomFilterChecker) *StoreAdapter {
	a := NewStoreAdapter(s)
	a.BloomFilterChecker = checker
	return a
}

type seenRecord struct {
	ItemID    string `json:"item_id"`
	Timestamp int64  `json:"timestamp"`
}

// LoadRelations 一次性读取用户的拉黑（双向）、关注与近期已看列表。
// 缺失的 key 视为空列表；Store 故障返回 UPSTREAM_UNAVAILABLE。
func (a *StoreAdapter) LoadRelations(ctx context.Context, userID string) (*core.UserRelations, error) {
	keys := []string{
		relationKey(KeyPrefixBlock, userID),
		relationKey(KeyPrefixBlockedBy, userID),
		relationKey(KeyPrefixFollowing, userID),
		relationKey(KeyPrefixExposed, userID),
	}
	vals, err := a.store.BatchGet(ctx, keys)
	if err != nil {
		return core.NewUserRelations(nil, nil, nil), core.WrapDomainError(core.ModuleStore, core.ErrorCodeUpstreamUnavailable, "filter: load relations", err)
	}

	blocks, _ := decodeIDs(vals[keys[0]])
	blockedBy, _ := decodeIDs(vals[keys[1]])
	following, _ := decodeIDs(vals[keys[2]])
	seen := a.activeSeen(vals[keys[3]])

	return core.NewUserRelations(append(blocks, blockedBy...), following, seen), nil
}

// GetBlacklist 从 Store 读取 JSON ID 列表，key 不存在返回空列表。
func (a *StoreAdapter) GetBlacklist(ctx context.Context, key string) ([]string, error) {
	data, err := a.store.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIDs(data)
}

// Block 记录 userID 拉黑 targetID，同时维护对方的 blocked_by 列表。
func (a *StoreAdapter) Block(ctx context.Context, userID, targetID string) error {
	if err := a.addToList(ctx, relationKey(KeyPrefixBlock, userID), targetID); err != nil {
		return err
	}
	return a.addToList(ctx, relationKey(KeyPrefixBlockedBy, targetID), userID)
}

// Unblock 撤销拉黑。
func (a *StoreAdapter) Unblock(ctx context.Context, userID, targetID string) error {
	if err := a.removeFromList(ctx, relationKey(KeyPrefixBlock, userID), targetID); err != nil {
		return err
	}
	return a.removeFromList(ctx, relationKey(KeyPrefixBlockedBy, targetID), userID)
}

// Follow 记录关注关系。
func (a *StoreAdapter) Follow(ctx context.Context, userID, targetID string) error {
	return a.addToList(ctx, relationKey(KeyPrefixFollowing, userID), targetID)
}

// Unfollow 撤销关注。
func (a *StoreAdapter) Unfollow(ctx context.Context, userID, targetID string) error {
	return a.removeFromList(ctx, relationKey(KeyPrefixFollowing, userID), targetID)
}

// MarkSeen 追加已看记录（带时间戳），并写入当天的布隆过滤器（若支持写入）。
// 读-改-写没有加锁，并发写入同一用户时以最后一次为准。
func (a *StoreAdapter) MarkSeen(ctx context.Context, userID string, itemIDs []string) error {
	if userID == "" || len(itemIDs) == 0 {
		return nil
	}
	key := relationKey(KeyPrefixExposed, userID)
	data, err := a.store.Get(ctx, key)
	if err != nil && !core.IsStoreNotFound(err) {
		return err
	}

	now := a.now()
	cutoff := now.Add(-a.SeenWindow).Unix()
	records := make([]seenRecord, 0)
	fresh := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		fresh[id] = struct{}{}
	}
	for _, r := range decodeSeen(data) {
		if _, dup := fresh[r.ItemID]; dup {
			continue
		}
		if a.SeenWindow > 0 && r.Timestamp > 0 && r.Timestamp < cutoff {
			continue
		}
		records = append(records, r)
	}
	for _, id := range itemIDs {
		records = append(records, seenRecord{ItemID: id, Timestamp: now.Unix()})
	}
	if a.MaxSeen > 0 && len(records) > a.MaxSeen {
		records = records[len(records)-a.MaxSeen:]
	}

	buf, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, key, buf); err != nil {
		return err
	}

	if w, ok := a.BloomFilterChecker.(BloomFilterWriter); ok {
		if err := w.BatchAddToBloomFilter(ctx, bloomKey(KeyPrefixExposed, userID, now), itemIDs, a.BloomTTL); err != nil {
			return fmt.Errorf("filter: write bloom filter: %w", err)
		}
	}
	return nil
}

// CheckExposedInBloomFilter 检查物品是否在最近 dayWindow 天的布隆过滤器中。
// 未设置 BloomFilterChecker 时返回 false。单日检查失败时继续检查其他日期。
func (a *StoreAdapter) CheckExposedInBloomFilter(ctx context.Context, userID string, itemID string, keyPrefix string, dayWindow int) (bool, error) {
	if a.BloomFilterChecker == nil || dayWindow <= 0 {
		return false, nil
	}

	now := a.now()
	for i := 0; i < dayWindow; i++ {
		key := bloomKey(keyPrefix, userID, now.AddDate(0, 0, -i))
		exists, err := a.BloomFilterChecker.CheckInBloomFilter(ctx, key, itemID)
		if err != nil {
			continue
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func (a *StoreAdapter) activeSeen(data []byte) []string {
	records := decodeSeen(data)
	cutoff := a.now().Add(-a.SeenWindow).Unix()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if a.SeenWindow > 0 && r.Timestamp > 0 && r.Timestamp < cutoff {
			continue
		}
		ids = append(ids, r.ItemID)
	}
	return ids
}

func (a *StoreAdapter) addToList(ctx context.Context, key, id string) error {
	ids, err := a.GetBlacklist(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return a.writeList(ctx, key, append(ids, id))
}

func (a *StoreAdapter) removeFromList(ctx context.Context, key, id string) error {
	ids, err := a.GetBlacklist(ctx, key)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return a.writeList(ctx, key, out)
}

func (a *StoreAdapter) writeList(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	buf, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, key, buf)
}

func relationKey(prefix, userID string) string {
	return prefix + ":" + userID
}

func bloomKey(prefix, userID string, day time.Time) string {
	return fmt.Sprintf("%s:bloom:%s:%s", prefix, userID, day.Format("20060102"))
}

func decodeIDs(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// decodeSeen 兼容两种格式：纯 ID 列表与带时间戳的记录列表
func decodeSeen(data []byte) []seenRecord {
	if len(data) == 0 {
		return nil
	}
	var records []seenRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return nil
	}
	records = make([]seenRecord, len(ids))
	for i, id := range ids {
		records[i] = seenRecord{ItemID: id}
	}
	return records
}
