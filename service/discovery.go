// Package service 是发现流推荐的编排层。
//
// Discovery 把各组件串成一次请求：
//
//	缓存 → 画像 → 召回 / 过滤 → 打分 → 排序 → 多样性 → 分页 → 写缓存
//
// 任意阶段失败都会降级为按时间倒序的可见内容；降级也失败时返回带有失败阶段的错误结果。
// 组件之间不直接调用，公共依赖（KV、内容存储、向量索引）都通过 Deps 注入。
package service

import (
	"context"
	"time"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/embedding"
	"github.com/rushteam/discovery/filter"
	"github.com/rushteam/discovery/metrics"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/logger"
	"github.com/rushteam/discovery/profile"
	"github.com/rushteam/discovery/rank"
	"github.com/rushteam/discovery/recall"
	"github.com/rushteam/discovery/rerank"
	"github.com/rushteam/discovery/store"
)

// Deps 是推荐服务的外部依赖。Cache / Content / Vector 必填，其余可选。
type Deps struct {
	Cache core.Store

	// Relations 保存拉黑、关注、已看与内容黑名单。这些是事实数据，
	// 不能放在会被失效规则或淘汰清空的 Cache 中。为 nil 时使用进程内存储。
	Relations core.Store

	Content      core.ContentStore
	Interactions core.InteractionStore
	Vector       core.VectorDatabaseService
	Embedder     core.EmbeddingProvider

	// Bloom 可选，提供按天的已看布隆过滤器
	Bloom filter.BloomFilterChecker

	// Rules 为 nil 时使用 cache.DefaultRuleSet
	Rules *cache.RuleSet

	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Monitor *metrics.MemoryPerformanceMonitor
}

// Discovery 是推荐服务入口。
type Discovery struct {
	opts Options

	kv      core.Store
	content core.ContentStore
	vector  core.VectorDatabaseService

	relations   *filter.StoreAdapter
	moderation  []filter.Filter
	resolver    *embedding.ItemResolver
	learner     *profile.Learner
	retriever   *recall.Retriever
	invalidator *cache.Invalidator
	nodes       []pipeline.Node
	scorer      rank.Scorer

	logger  *logger.Logger
	metrics *metrics.Metrics
	monitor *metrics.MemoryPerformanceMonitor

	now func() time.Time
}

// New 组装推荐服务。
func New(deps Deps, opts Options) (*Discovery, error) {
	if deps.Cache == nil || deps.Content == nil || deps.Vector == nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: cache, content and vector dependencies are required")
	}
	opts = opts.withDefaults()
	if err := opts.DefaultWeights.Validate(); err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	monitor := deps.Monitor
	if monitor == nil {
		monitor = metrics.NewMemoryPerformanceMonitor(0)
	}

	d := &Discovery{
		opts:    opts,
		kv:      deps.Cache,
		content: deps.Content,
		vector:  deps.Vector,
		logger:  log,
		metrics: deps.Metrics,
		monitor: monitor,
		now:     time.Now,
	}

	relStore := deps.Relations
	if relStore == nil {
		log.Warn("no relation store configured, block and seen lists will not survive restarts")
		relStore = store.NewMemoryStore()
	}
	d.relations = filter.NewStoreAdapterWithBloomFilter(relStore, deps.Bloom)
	if opts.BlacklistKey != "" {
		d.moderation = append(d.moderation, filter.NewBlacklistFilter(nil, d.relations, opts.BlacklistKey))
	}
	for _, expr := range opts.FilterExprs {
		f, err := filter.NewExprFilter(expr)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: invalid filter expression "+expr, err)
		}
		d.moderation = append(d.moderation, f)
	}

	d.resolver = embedding.NewItemResolver(deps.Cache, deps.Content, deps.Embedder)
	d.resolver.Vector = deps.Vector
	d.resolver.Collection = opts.Collection
	d.resolver.Logger = log

	d.learner = profile.NewLearner(deps.Cache, deps.Interactions, d.resolver, opts.Profile)
	d.learner.Logger = log

	d.invalidator = cache.NewInvalidator(deps.Cache, deps.Rules, log)
	d.invalidator.OnInvalidated = func(_ string, n int) { d.metrics.AddInvalidated(n) }

	d.retriever = &recall.Retriever{
		Fanout: &recall.Fanout{
			Sources: []recall.Source{
				&recall.ANN{
					Vector:     deps.Vector,
					Content:    deps.Content,
					Collection: opts.Collection,
					Metric:     opts.Metric,
					Window:     opts.CandidateWindow,
				},
				&recall.Hot{KV: deps.Cache, Content: deps.Content, Window: opts.CandidateWindow},
				&recall.Recent{Store: deps.Content, Window: opts.CandidateWindow},
			},
			Timeout:       2 * time.Second,
			MergeStrategy: recall.MergeFirst,
			OnSourceError: func(source string, err error) {
				log.Warn("recall source failed", "source", source, "error", err)
			},
		},
		Relations:  d.relations,
		Filters:    append(filter.DefaultFilters(d.relations, opts.BloomDayWindow), d.moderation...),
		Fallback:   &recall.Recent{Store: deps.Content},
		Multiplier: opts.CandidateMultiplier,
		Logger:     log,
	}

	d.nodes = []pipeline.Node{
		d.retriever,
		pipeline.NodeFunc{NodeName: "embedding.hydrate", NodeKind: pipeline.KindScore, Fn: d.hydrate},
		&rank.ScoreNode{Scorer: d.scorer},
		&rank.RankNode{},
		&rerank.DiversityBoost{Boost: opts.DiversityBoost},
	}
	return d, nil
}

// Options 返回补齐默认值后的参数。
func (d *Discovery) Options() Options { return d.opts }

// Relations 返回关系存储（拉黑 / 关注 / 已看）。
func (d *Discovery) Relations() *filter.StoreAdapter { return d.relations }

// Invalidator 返回缓存失效服务，规则热加载时使用。
func (d *Discovery) Invalidator() *cache.Invalidator { return d.invalidator }

// Learner 返回偏好学习器。
func (d *Discovery) Learner() *profile.Learner { return d.learner }

// hydrate 为没有携带向量的候选补齐 Embedding，解析失败的候选相似度记 0。
func (d *Discovery) hydrate(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate) ([]*core.Candidate, error) {
	if rctx.Profile == nil {
		return cands, nil
	}
	for _, c := range cands {
		if c == nil || c.Item == nil || len(c.Item.Embedding) > 0 {
			continue
		}
		vec, err := d.resolver.ResolveItem(ctx, c.Item)
		if err != nil {
			d.logger.Debug("candidate embedding unavailable", "item_id", c.Item.ID, "error", err)
			continue
		}
		item := *c.Item
		item.Embedding = vec
		c.Item = &item
	}
	return cands, nil
}

func (d *Discovery) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}
