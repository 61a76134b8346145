package service

import (
	"context"
	"time"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
)

// UpdateUserPreferences 用一批互动更新用户画像，成功后删除该用户的 feed 缓存。
//
// 没有可用向量时返回 NO_VALID_SIGNAL，画像保持不变；上游失败时旧画像保留。
func (d *Discovery) UpdateUserPreferences(
	ctx context.Context,
	userID string,
	postIDs []string,
	interactionTypes []string,
	weights map[string]float64,
) (*core.UserPreferenceProfile, error) {
	p, err := d.learner.Update(ctx, userID, postIDs, interactionTypes, weights)
	switch {
	case err == nil:
		d.metrics.ObservePreferenceUpdate("ok")
	case core.IsNoValidSignal(err):
		d.metrics.ObservePreferenceUpdate("no_signal")
		d.logger.Warn("preference update skipped", "user_id", userID, "posts", len(postIDs), "error", err)
		return nil, err
	default:
		d.metrics.ObservePreferenceUpdate("error")
		d.logger.Error("preference update failed", "user_id", userID, "posts", len(postIDs), "error", err)
		return nil, err
	}

	if _, err := d.invalidator.InvalidateByPattern(ctx, userFeedPattern(userID)); err != nil {
		d.logger.Warn("feed invalidation after preference update failed", "user_id", userID, "error", err)
	}
	d.logger.Info("preference profile updated",
		"user_id", userID, "posts", len(postIDs), "updated_at", p.LastUpdated.Format(time.RFC3339))
	return p, nil
}

// userFeedPattern 匹配用户所有的 feed 缓存。
func userFeedPattern(userID string) string {
	return KeyPrefixFeed + ":" + cache.EscapeGlob(userID) + ":*"
}
