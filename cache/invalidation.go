package cache

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/logger"
)

// DefaultBatchSize 每批并发删除的 key 数量
const DefaultBatchSize = 20

// Invalidator 按模式或事件删除缓存。规则集可在运行时整体替换（见 RuleWatcher）。
type Invalidator struct {
	store     core.Store
	rules     atomic.Pointer[RuleSet]
	batchSize int
	logger    *logger.Logger

	// OnInvalidated 每个模式处理完成后回调（监控）
	OnInvalidated func(pattern string, deleted int)
}

// NewInvalidator 创建失效服务，rules 为 nil 时使用默认规则。
func NewInvalidator(store core.Store, rules *RuleSet, log *logger.Logger) *Invalidator {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if log == nil {
		log = logger.NewNop()
	}
	inv := &Invalidator{store: store, batchSize: DefaultBatchSize, logger: log}
	inv.rules.Store(rules)
	return inv
}

// SetBatchSize 设置每批删除数量。
func (inv *Invalidator) SetBatchSize(n int) {
	if n > 0 {
		inv.batchSize = n
	}
}

// SetRules 替换当前规则集。
func (inv *Invalidator) SetRules(rules *RuleSet) {
	if rules != nil {
		inv.rules.Store(rules)
	}
}

// RuleSet 返回当前规则集。
func (inv *Invalidator) RuleSet() *RuleSet {
	return inv.rules.Load()
}

// InvalidateByPattern 删除所有匹配 glob 模式的 key，返回删除成功的数量。
// 单个 key 删除失败只记录日志；列出 key 失败返回 CACHE_UNAVAILABLE。
func (inv *Invalidator) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	re, err := GlobToRegexp(pattern)
	if err != nil {
		return 0, err
	}
	keys, err := inv.store.Keys(ctx, literalPrefix(pattern))
	if err != nil {
		return 0, core.WrapDomainError(core.ModuleCache, core.ErrorCodeCacheUnavailable, "cache: list keys", err)
	}

	matched := make([]string, 0, len(keys))
	for _, k := range keys {
		if re.MatchString(k) {
			matched = append(matched, k)
		}
	}

	var deleted int64
	for start := 0; start < len(matched); start += inv.batchSize {
		if err := ctx.Err(); err != nil {
			return int(deleted), err
		}
		end := min(start+inv.batchSize, len(matched))

		var eg errgroup.Group
		for _, key := range matched[start:end] {
			eg.Go(func() error {
				if err := inv.store.Delete(ctx, key); err != nil {
					inv.logger.Warn("cache delete failed", "key", key, "error", err)
					return nil
				}
				atomic.AddInt64(&deleted, 1)
				return nil
			})
		}
		_ = eg.Wait()
	}

	if inv.OnInvalidated != nil {
		inv.OnInvalidated(pattern, int(deleted))
	}
	inv.logger.Debug("cache pattern invalidated", "pattern", pattern, "matched", len(matched), "deleted", deleted)
	return int(deleted), nil
}

// InvalidateByEvent 按优先级执行所有命中规则，返回删除总数。
// 某条规则失败不影响其它规则，错误合并返回。
func (inv *Invalidator) InvalidateByEvent(ctx context.Context, ev Event) (int, error) {
	rules := inv.RuleSet().Match(ev)
	total := 0
	var errs []error
	for _, r := range rules {
		pattern, ok := r.Expand(ev)
		if !ok {
			inv.logger.Debug("skip rule with unresolved placeholder", "rule", r.Name, "pattern", r.Pattern, "type", ev.Type)
			continue
		}
		n, err := inv.InvalidateByPattern(ctx, pattern)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	inv.logger.Info("cache invalidated by event",
		"type", ev.Type, "action", ev.action(), "user_id", ev.UserID, "content_id", ev.ContentID,
		"rules", len(rules), "deleted", total)
	return total, errors.Join(errs...)
}
