package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/metrics"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/logger"
	"github.com/rushteam/discovery/pkg/utils"
	"github.com/rushteam/discovery/recall"
)

// 推荐策略
const (
	StrategyPersonalized = "personalized"
	StrategyColdStart    = "cold_start"
	StrategyFallback     = "fallback"
	StrategyCache        = "cache"
	StrategyError        = "error"
)

// KeyPrefixFeed 是 feed 缓存 key 前缀：discovery_feed:{userId}:{limit}:{cursor|start}:{fingerprint}
const KeyPrefixFeed = "discovery_feed"

// FeedRequest 是一次 feed 请求。
type FeedRequest struct {
	UserID string
	Limit  int

	// Cursor 上一页最后一个内容的 ID，空表示第一页
	Cursor string

	// Weights 为 nil 时使用默认权重
	Weights *core.ScoringWeights

	// Experimental 使用较短的缓存时间
	Experimental bool

	// ForceRefresh 跳过缓存读取（结果仍会写入缓存）
	ForceRefresh bool
}

// NewFeedRequest 返回默认请求：默认数量，开启实验特性。
func NewFeedRequest(userID string) FeedRequest {
	return FeedRequest{UserID: userID, Experimental: true}
}

// FeedItem 是 feed 中的一项。降级结果不打分，Scores 为空。
type FeedItem struct {
	Item       *core.ContentItem `json:"item"`
	Scores     *core.Scores      `json:"scores,omitempty"`
	FinalScore float64           `json:"final_score,omitempty"`
	Rank       int               `json:"rank"`
}

// FeedResult 是 feed 请求的结果。Strategy 为 error 时 Error 与 Phase 描述失败原因。
type FeedResult struct {
	Items      []FeedItem `json:"items"`
	HasMore    bool       `json:"has_more"`
	NextCursor string     `json:"next_cursor,omitempty"`

	Strategy  string `json:"strategy"`
	RequestID string `json:"request_id,omitempty"`
	CacheHit  bool   `json:"cache_hit,omitempty"`
	Phase     Phase  `json:"phase,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FeedKey 返回 feed 缓存 key。
func FeedKey(userID string, limit int, cursor, fingerprint string) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s:%s:%d:%s:%s", KeyPrefixFeed, userID, limit, cursor, fingerprint)
}

// GenerateFeed 生成用户的发现流。
//
// 只有参数错误（用户为空、权重非法）返回 error；上游故障由降级路径兜底，
// 降级也失败时返回 Strategy=error 的结果。
func (d *Discovery) GenerateFeed(ctx context.Context, req FeedRequest) (*FeedResult, error) {
	start := time.Now()
	if req.UserID == "" {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: user id is required")
	}
	limit := d.clampLimit(req.Limit)
	weights := d.opts.DefaultWeights
	custom := req.Weights != nil
	if custom {
		if err := req.Weights.Validate(); err != nil {
			return nil, err
		}
		weights = *req.Weights
	}
	fingerprint := weights.Fingerprint()
	key := FeedKey(req.UserID, limit, req.Cursor, fingerprint)

	rctx := core.NewRecommendContext(uuid.NewString(), req.UserID, d.clock())
	rctx.Weights = weights
	rctx.Params[recall.ParamLimit] = limit
	tracker := newPhaseTracker(d.metrics)
	log := d.logger.With("request_id", rctx.RequestID, "user_id", req.UserID)

	if !req.ForceRefresh {
		if res, ok := d.cachedFeed(ctx, key); ok {
			res.RequestID = rctx.RequestID
			d.complete(log, rctx, tracker, res, 0, fingerprint, start)
			return res, nil
		}
	}

	res, candidates := d.compute(ctx, rctx, tracker, limit, req.Cursor)
	if res.Strategy == StrategyPersonalized || res.Strategy == StrategyColdStart {
		tracker.enter(PhaseCacheWrite)
		ttl := d.opts.FeedTTL
		if req.Experimental || custom {
			ttl = d.opts.ExperimentalTTL
		}
		d.writeFeed(ctx, key, res, ttl)
		tracker.leave()
	}
	d.complete(log, rctx, tracker, res, candidates, fingerprint, start)
	return res, nil
}

// compute 执行主路径，失败时降级。返回结果与候选集数量。
func (d *Discovery) compute(ctx context.Context, rctx *core.RecommendContext, tracker *phaseTracker, limit int, cursor string) (*FeedResult, int) {
	tracker.enter(PhaseStart)
	prof, err := d.learner.GetOrCompute(ctx, rctx.UserID)
	tracker.leave()
	if err != nil {
		return d.fallback(ctx, rctx, tracker, limit, cursor, PhaseStart, err)
	}
	rctx.Profile = prof
	rctx.RecentTopics = d.recentTopics(ctx, rctx)

	if prof == nil {
		// 冷启动：只按时间倒序
		rctx.PutLabel(utils.LabelStrategy, utils.Label{Value: StrategyColdStart, Source: "service"})
		tracker.enter(PhaseRetrieval)
		cands, err := d.deepen(cursor, limit, func(budget int) ([]*core.Candidate, error) {
			rctx.Params[recall.ParamCandidateBudget] = budget
			return d.retriever.Retrieve(ctx, rctx, limit)
		})
		tracker.leave()
		if err != nil {
			return d.fallback(ctx, rctx, tracker, limit, cursor, PhaseRetrieval, err)
		}
		res := paginate(cands, cursor, limit, false)
		res.Strategy = StrategyColdStart
		res.RequestID = rctx.RequestID
		return res, len(cands)
	}

	rctx.PutLabel(utils.LabelStrategy, utils.Label{Value: StrategyPersonalized, Source: "service"})
	p := &pipeline.Pipeline{Nodes: d.nodes, Hooks: []pipeline.Hook{tracker}}
	ranked, err := d.deepen(cursor, limit, func(budget int) ([]*core.Candidate, error) {
		rctx.Params[recall.ParamCandidateBudget] = budget
		return p.Run(ctx, rctx, nil)
	})
	if err != nil {
		return d.fallback(ctx, rctx, tracker, limit, cursor, tracker.phase(), err)
	}
	res := paginate(ranked, cursor, limit, true)
	res.Strategy = StrategyPersonalized
	res.RequestID = rctx.RequestID
	return res, len(ranked)
}

// fallback 是降级路径：最新的可见内容，不打分。降级失败时返回错误结果。
func (d *Discovery) fallback(
	ctx context.Context,
	rctx *core.RecommendContext,
	tracker *phaseTracker,
	limit int,
	cursor string,
	failed Phase,
	cause error,
) (*FeedResult, int) {
	d.logger.Error("discovery feed failed, using fallback",
		"request_id", rctx.RequestID, "user_id", rctx.UserID, "phase", string(failed), "error", cause)
	rctx.PutLabel(utils.LabelStrategy, utils.Label{Value: StrategyFallback, Source: "service"})

	tracker.enter(PhaseRetrieval)
	cands, err := d.deepen(cursor, limit, func(budget int) ([]*core.Candidate, error) {
		return d.retriever.RetrieveFallback(ctx, rctx, budget)
	})
	tracker.leave()
	if err != nil {
		d.logger.Error("discovery fallback failed",
			"request_id", rctx.RequestID, "user_id", rctx.UserID, "error", err)
		tracker.enter(PhaseError)
		return &FeedResult{
			Items:     []FeedItem{},
			Strategy:  StrategyError,
			RequestID: rctx.RequestID,
			Phase:     failed,
			Error:     errors.Join(cause, err).Error(),
		}, 0
	}
	d.logger.Warn("discovery fallback used",
		"request_id", rctx.RequestID, "user_id", rctx.UserID, "phase", string(failed), "items", len(cands))
	res := paginate(cands, cursor, limit, false)
	res.Strategy = StrategyFallback
	res.RequestID = rctx.RequestID
	res.Phase = failed
	return res, len(cands)
}

// deepen 以 limit*CandidateMultiplier 的候选集调用 run。带 cursor 时，如果候选集被截断
// 且 cursor 之后不足一页，候选集翻倍重试，直到 MaxCandidates。
// 打分只依赖单个内容，扩大候选集不会改变已返回内容之间的相对顺序。
func (d *Discovery) deepen(cursor string, limit int, run func(budget int) ([]*core.Candidate, error)) ([]*core.Candidate, error) {
	budget := limit * d.opts.CandidateMultiplier
	for {
		cands, err := run(budget)
		if err != nil || cursor == "" || len(cands) < budget || budget >= d.opts.MaxCandidates {
			return cands, err
		}
		if i := cursorIndex(cands, cursor); i >= 0 && len(cands)-i-1 >= limit {
			return cands, nil
		}
		budget = min(budget*2, d.opts.MaxCandidates)
	}
}

func cursorIndex(cands []*core.Candidate, cursor string) int {
	for i, c := range cands {
		if c.ID() == cursor {
			return i
		}
	}
	return -1
}

// paginate 从 cursor 之后截取 limit 个。cursor 不在列表中时从头开始。
func paginate(cands []*core.Candidate, cursor string, limit int, scored bool) *FeedResult {
	start := 0
	if cursor != "" {
		start = cursorIndex(cands, cursor) + 1
	}
	rest := cands[start:]
	page := rest
	if len(page) > limit {
		page = page[:limit]
	}

	res := &FeedResult{Items: make([]FeedItem, 0, len(page)), HasMore: len(rest) >= limit}
	for i, c := range page {
		it := FeedItem{Item: c.Item, Rank: i + 1}
		if scored && c.Scored {
			sc := c.Scores
			it.Scores = &sc
			it.FinalScore = c.FinalScore
		}
		res.Items = append(res.Items, it)
	}
	if len(page) > 0 {
		res.NextCursor = page[len(page)-1].ID()
	}
	return res
}

func (d *Discovery) recentTopics(ctx context.Context, rctx *core.RecommendContext) []string {
	if d.learner.Interactions == nil {
		return nil
	}
	topics, err := d.learner.Interactions.RecentHashtags(ctx, rctx.UserID, d.opts.TopicHistory)
	if err != nil {
		d.logger.Warn("recent topics unavailable", "user_id", rctx.UserID, "error", err)
		return nil
	}
	return topics
}

func (d *Discovery) cachedFeed(ctx context.Context, key string) (*FeedResult, bool) {
	data, err := d.kv.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			d.metrics.ObserveCache(metrics.CacheMiss)
		} else {
			d.metrics.ObserveCache(metrics.CacheError)
			d.logger.Warn("feed cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var res FeedResult
	if err := json.Unmarshal(data, &res); err != nil {
		d.metrics.ObserveCache(metrics.CacheError)
		d.logger.Warn("feed cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	d.metrics.ObserveCache(metrics.CacheHit)
	res.Strategy = StrategyCache
	res.CacheHit = true
	return &res, true
}

func (d *Discovery) writeFeed(ctx context.Context, key string, res *FeedResult, ttl int) {
	cached := *res
	cached.RequestID = ""
	data, err := json.Marshal(&cached)
	if err != nil {
		d.logger.Warn("feed encode failed", "key", key, "error", err)
		return
	}
	if err := d.kv.Set(ctx, key, data, ttl); err != nil {
		d.logger.Warn("feed cache write failed", "key", key, "error", err)
	}
}

// complete 输出请求完成日志并记录指标。
func (d *Discovery) complete(
	log *logger.Logger,
	rctx *core.RecommendContext,
	tracker *phaseTracker,
	res *FeedResult,
	candidates int,
	fingerprint string,
	start time.Time,
) {
	elapsed := time.Since(start)
	if res.Strategy != StrategyError {
		tracker.enter(PhaseComplete)
	}
	log.Info("discovery feed completed",
		"strategy", res.Strategy,
		"candidates", candidates,
		"returned", len(res.Items),
		"phase", string(tracker.phase()),
		"phase_ms", tracker.fields(),
		"cache_hit", res.CacheHit,
		"weights", fingerprint,
		"duration_ms", float64(elapsed)/float64(time.Millisecond),
	)
	d.metrics.ObserveFeed(res.Strategy, elapsed, len(res.Items))
	d.monitor.Record(metrics.RequestSample{
		Duration: elapsed,
		Strategy: res.Strategy,
		Items:    len(res.Items),
		CacheHit: res.CacheHit,
		Failed:   res.Strategy == StrategyError,
		Fallback: res.Strategy == StrategyFallback,
	})
}

func (d *Discovery) clampLimit(limit int) int {
	if limit <= 0 {
		return d.opts.DefaultLimit
	}
	if limit > d.opts.MaxLimit {
		return d.opts.MaxLimit
	}
	return limit
}
