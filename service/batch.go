package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/discovery/core"
)

// BatchOptions 是批量生成 feed 的公共参数。
type BatchOptions struct {
	Limit        int
	Weights      *core.ScoringWeights
	Experimental bool
	ForceRefresh bool
}

// BatchGenerateDiscoveryFeeds 为一批用户生成 feed。
//
// 用户按 BatchChunkSize 分批，批内并发，批与批之间串行。单个用户失败只影响自己
// （结果为空列表），不会中断其它用户。
func (d *Discovery) BatchGenerateDiscoveryFeeds(ctx context.Context, userIDs []string, opts BatchOptions) map[string][]FeedItem {
	out := make(map[string][]FeedItem, len(userIDs))
	var mu sync.Mutex
	size := d.opts.BatchChunkSize

	for start := 0; start < len(userIDs); start += size {
		end := start + size
		if end > len(userIDs) {
			end = len(userIDs)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, userID := range userIDs[start:end] {
			userID := userID
			g.Go(func() error {
				items := d.batchOne(gctx, userID, opts)
				mu.Lock()
				out[userID] = items
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func (d *Discovery) batchOne(ctx context.Context, userID string, opts BatchOptions) []FeedItem {
	res, err := d.GenerateFeed(ctx, FeedRequest{
		UserID:       userID,
		Limit:        opts.Limit,
		Weights:      opts.Weights,
		Experimental: opts.Experimental,
		ForceRefresh: opts.ForceRefresh,
	})
	if err != nil {
		d.logger.Warn("batch feed failed", "user_id", userID, "error", err)
		return []FeedItem{}
	}
	if res.Strategy == StrategyError {
		d.logger.Warn("batch feed failed", "user_id", userID, "phase", string(res.Phase), "error", res.Error)
		return []FeedItem{}
	}
	return res.Items
}
