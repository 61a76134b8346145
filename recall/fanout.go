package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/utils"
)

// 合并策略
const (
	MergeFirst = "first" // 按 ID 去重，保留优先级最高（Sources 中靠前）的候选
	MergeUnion = "union" // 保留所有结果，不去重
)

// Fanout 是一个 Recall Node：并发执行多个召回源，并合并结果。
//
// 单个召回源失败或超时不影响其它召回源；只有参与本次召回（未返回 ErrSkipped）的
// 召回源全部失败时才返回 UPSTREAM_UNAVAILABLE，调用方据此触发降级。
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	MergeStrategy string        // 合并策略：first / union

	// OnSourceError 召回源失败时回调（日志 / 监控）
	OnSourceError func(source string, err error)
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	results := make([][]*core.Candidate, len(n.Sources))
	errs := make([]error, len(n.Sources))
	skipped := make([]bool, len(n.Sources))

	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}
	for i, src := range n.Sources {
		eg.Go(func() error {
			recallCtx := egCtx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(egCtx, n.Timeout)
				defer cancel()
			}

			cands, err := src.Recall(recallCtx, rctx)
			if errors.Is(err, ErrSkipped) {
				skipped[i] = true
				return nil
			}
			if err != nil {
				// 不返回 err，避免 errgroup 取消其它召回源
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				if n.OnSourceError != nil {
					n.OnSourceError(src.Name(), err)
				}
				return nil
			}
			for _, c := range cands {
				c.PutLabel(utils.LabelRecallSource, utils.Label{Value: src.Name(), Source: "recall"})
			}
			results[i] = cands
			return nil
		})
	}
	_ = eg.Wait()

	failed, active := 0, 0
	for i, err := range errs {
		if skipped[i] {
			continue
		}
		active++
		if err != nil {
			failed++
		}
	}
	if failed > 0 && failed == active {
		return nil, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUpstreamUnavailable,
			"recall: all sources failed", errors.Join(errs...))
	}

	if n.MergeStrategy == MergeUnion {
		var all []*core.Candidate
		for _, r := range results {
			all = append(all, r...)
		}
		return all, nil
	}
	return mergeFirst(results), nil
}

// mergeFirst 按 Sources 顺序合并并按 ID 去重，重复候选的 Label 合并到先出现的候选上。
func mergeFirst(results [][]*core.Candidate) []*core.Candidate {
	seen := make(map[string]*core.Candidate)
	out := make([]*core.Candidate, 0)
	for _, r := range results {
		for _, c := range r {
			if c == nil || c.Item == nil {
				continue
			}
			if old, ok := seen[c.ID()]; ok {
				for k, v := range c.Labels {
					old.PutLabel(k, v)
				}
				continue
			}
			seen[c.ID()] = c
			out = append(out, c)
		}
	}
	return out
}
