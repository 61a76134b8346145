package service

import (
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/profile"
)

// Options 是推荐服务的运行参数，零值字段由 withDefaults 补齐。
type Options struct {
	DefaultWeights core.ScoringWeights `yaml:"weights"`

	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`

	// CandidateMultiplier 候选集数量 = limit * CandidateMultiplier
	CandidateMultiplier int           `yaml:"candidate_multiplier"`
	CandidateWindow     time.Duration `yaml:"candidate_window"`

	// MaxCandidates 带 cursor 翻页时候选集最多扩大到的数量
	MaxCandidates int `yaml:"max_candidates"`

	DiversityBoost float64 `yaml:"diversity_boost"`

	// FeedTTL 默认 feed 缓存时间（秒）；ExperimentalTTL 用于实验 / 自定义权重请求
	FeedTTL         int `yaml:"feed_ttl"`
	ExperimentalTTL int `yaml:"experimental_ttl"`

	SimilarMinSimilarity float64 `yaml:"similar_min_similarity"`
	SimilarDefaultLimit  int     `yaml:"similar_default_limit"`
	SimilarTTL           int     `yaml:"similar_ttl"`

	// BatchChunkSize 批量生成时每批并发的用户数
	BatchChunkSize int `yaml:"batch_chunk_size"`

	// TopicHistory 多样性打分读取的最近话题数量
	TopicHistory int `yaml:"topic_history"`

	// BloomDayWindow 布隆过滤器检查的天数，0 表示只用已看列表
	BloomDayWindow int `yaml:"bloom_day_window"`

	// BlacklistKey 是 KV 中下架内容 ID 列表的 key，为空时不检查
	BlacklistKey string `yaml:"blacklist_key"`

	// FilterExprs 是额外的 CEL 排除条件，任一为 true 的候选被过滤
	FilterExprs []string `yaml:"filter_exprs"`

	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
	Dimension  int    `yaml:"dimension"`

	Profile profile.Options `yaml:"profile"`
}

// DefaultOptions 返回默认参数。
func DefaultOptions() Options {
	return Options{
		DefaultWeights:       core.ScoringWeights{Relevance: 0.5, Recency: 0.2, Popularity: 0.2, Diversity: 0.1},
		DefaultLimit:         20,
		MaxLimit:             100,
		CandidateMultiplier:  3,
		CandidateWindow:      7 * 24 * time.Hour,
		MaxCandidates:        1000,
		DiversityBoost:       0.1,
		FeedTTL:              600,
		ExperimentalTTL:      180,
		SimilarMinSimilarity: 0.7,
		SimilarDefaultLimit:  10,
		SimilarTTL:           600,
		BatchChunkSize:       10,
		TopicHistory:         50,
		BlacklistKey:         "content:blacklist",
		Collection:           "posts",
		Metric:               string(core.MetricCosine),
		Dimension:            1024,
		Profile:              profile.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DefaultWeights == (core.ScoringWeights{}) {
		o.DefaultWeights = d.DefaultWeights
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = d.DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = d.MaxLimit
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = d.CandidateMultiplier
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.CandidateWindow <= 0 {
		o.CandidateWindow = d.CandidateWindow
	}
	if o.FeedTTL <= 0 {
		o.FeedTTL = d.FeedTTL
	}
	if o.ExperimentalTTL <= 0 {
		o.ExperimentalTTL = d.ExperimentalTTL
	}
	if o.SimilarMinSimilarity <= 0 {
		o.SimilarMinSimilarity = d.SimilarMinSimilarity
	}
	if o.SimilarDefaultLimit <= 0 {
		o.SimilarDefaultLimit = d.SimilarDefaultLimit
	}
	if o.SimilarTTL <= 0 {
		o.SimilarTTL = d.SimilarTTL
	}
	if o.BatchChunkSize <= 0 {
		o.BatchChunkSize = d.BatchChunkSize
	}
	if o.TopicHistory <= 0 {
		o.TopicHistory = d.TopicHistory
	}
	if o.Collection == "" {
		o.Collection = d.Collection
	}
	if o.Metric == "" {
		o.Metric = d.Metric
	}
	if o.Dimension <= 0 {
		o.Dimension = d.Dimension
	}
	if o.Profile.LearningRate <= 0 {
		o.Profile.LearningRate = d.Profile.LearningRate
	}
	if o.Profile.TTL <= 0 {
		o.Profile.TTL = d.Profile.TTL
	}
	if o.Profile.SavedWeight <= 0 {
		o.Profile.SavedWeight = d.Profile.SavedWeight
	}
	if o.Profile.CreatedWeight <= 0 {
		o.Profile.CreatedWeight = d.Profile.CreatedWeight
	}
	if o.Profile.HistoryLimit <= 0 {
		o.Profile.HistoryLimit = d.Profile.HistoryLimit
	}
	return o
}
