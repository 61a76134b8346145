// Package metrics 提供推荐服务的 Prometheus 指标与进程内性能汇总。
//
// 指标分类：
//   - 请求：按策略（personalized / cold_start / fallback / cache / error）计数与耗时
//   - 阶段：各阶段（召回 / 打分 / 排序 / 多样性 / 写缓存）耗时
//   - 缓存：命中 / 未命中 / 故障，失效删除的 key 数量
//   - 画像：偏好更新结果
//
// 用法：
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	m.ObserveFeed("personalized", 35*time.Millisecond, 20)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discovery"

// Metrics 持有所有 collector。注册到调用方传入的 Registerer，测试可以使用独立的 Registry。
// nil *Metrics 的所有方法都是空操作。
type Metrics struct {
	FeedRequests      *prometheus.CounterVec
	FeedDuration      *prometheus.HistogramVec
	FeedItems         prometheus.Histogram
	PhaseDuration     *prometheus.HistogramVec
	CacheRequests     *prometheus.CounterVec
	InvalidatedKeys   prometheus.Counter
	PreferenceUpdates *prometheus.CounterVec
	SimilarRequests   *prometheus.CounterVec
}

// New 创建并注册指标。
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FeedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Total number of discovery feed requests by strategy",
		}, []string{"strategy"}),
		FeedDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_duration_seconds",
			Help:      "Duration of discovery feed generation in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"strategy"}),
		FeedItems: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_items",
			Help:      "Number of items returned per feed request",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each feed generation phase in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}, []string{"phase"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		InvalidatedKeys: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_keys_total",
			Help:      "Total number of cache keys removed by invalidation",
		}),
		PreferenceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_updates_total",
			Help:      "Preference profile updates by result",
		}, []string{"result"}),
		SimilarRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similar_requests_total",
			Help:      "Similar content requests by result",
		}, []string{"result"}),
	}
}

// ObserveFeed 记录一次 feed 请求。
func (m *Metrics) ObserveFeed(strategy string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.FeedRequests.WithLabelValues(strategy).Inc()
	m.FeedDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.FeedItems.Observe(float64(items))
}

// ObservePhase 记录阶段耗时。
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// 缓存查询结果
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// ObserveCache 记录一次缓存查询。
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// AddInvalidated 累加失效删除的 key 数量。
func (m *Metrics) AddInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InvalidatedKeys.Add(float64(n))
}

// ObservePreferenceUpdate 记录偏好更新结果（ok / no_signal / error）。
func (m *Metrics) ObservePreferenceUpdate(result string) {
	if m == nil {
		return
	}
	m.PreferenceUpdates.WithLabelValues(result).Inc()
}

// ObserveSimilar 记录相似内容请求结果（ok / cache / error）。
func (m *Metrics) ObserveSimilar(result string) {
	if m == nil {
		return
	}
	m.SimilarRequests.WithLabelValues(result).Inc()
}
