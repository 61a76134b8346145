package metrics

import (
	"sort"
	"sync"
	"time"
)

// RequestSample 是一次 feed 请求的结果。
type RequestSample struct {
	Duration time.Duration
	Strategy string
	Items    int
	CacheHit bool
	Failed   bool
	Fallback bool
}

// PerformanceSummary 是最近样本的汇总。
type PerformanceSummary struct {
	Requests            int64              `json:"requests"`
	Window              int                `json:"window"`
	AvgProcessingTimeMs float64            `json:"avg_processing_time_ms"`
	P95ProcessingTimeMs float64            `json:"p95_processing_time_ms"`
	ErrorRate           float64            `json:"error_rate"`
	AvgResultCount      float64            `json:"avg_result_count"`
	CacheUsageRate      float64            `json:"cache_usage_rate"`
	FallbackRate        float64            `json:"fallback_rate"`
	ByStrategy          map[string]float64 `json:"by_strategy"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// MemoryPerformanceMonitor 是进程内性能监控：保留最近 maxSamples 个样本用于汇总。
// 长期趋势应使用 Prometheus 指标。
type MemoryPerformanceMonitor struct {
	mu         sync.RWMutex
	samples    []RequestSample
	next       int
	full       bool
	total      int64
	maxSamples int
	now        func() time.Time
}

// NewMemoryPerformanceMonitor 创建性能监控，maxSamples <= 0 时为 1000。
func NewMemoryPerformanceMonitor(maxSamples int) *MemoryPerformanceMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &MemoryPerformanceMonitor{
		samples:    make([]RequestSample, maxSamples),
		maxSamples: maxSamples,
		now:        time.Now,
	}
}

// Record 记录一个样本，样本满后覆盖最旧的。
func (m *MemoryPerformanceMonitor) Record(s RequestSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples[m.next] = s
	m.next = (m.next + 1) % m.maxSamples
	if m.next == 0 {
		m.full = true
	}
	m.total++
}

// Summary 汇总当前窗口内的样本。
func (m *MemoryPerformanceMonitor) Summary() PerformanceSummary {
	m.mu.RLock()
	n := m.next
	if m.full {
		n = m.maxSamples
	}
	window := append([]RequestSample(nil), m.samples[:n]...)
	total := m.total
	m.mu.RUnlock()

	sum := PerformanceSummary{
		Requests:   total,
		Window:     len(window),
		ByStrategy: make(map[string]float64),
		UpdatedAt:  m.now(),
	}
	if len(window) == 0 {
		return sum
	}

	var durMs, items float64
	var failed, cached, fallback int
	latencies := make([]float64, len(window))
	for i, s := range window {
		ms := float64(s.Duration) / float64(time.Millisecond)
		latencies[i] = ms
		durMs += ms
		items += float64(s.Items)
		if s.Failed {
			failed++
		}
		if s.CacheHit {
			cached++
		}
		if s.Fallback {
			fallback++
		}
		if s.Strategy != "" {
			sum.ByStrategy[s.Strategy]++
		}
	}
	count := float64(len(window))
	for k, v := range sum.ByStrategy {
		sum.ByStrategy[k] = v / count
	}
	sum.AvgProcessingTimeMs = durMs / count
	sum.P95ProcessingTimeMs = percentile(latencies, 0.95)
	sum.ErrorRate = float64(failed) / count
	sum.AvgResultCount = items / count
	sum.CacheUsageRate = float64(cached) / count
	sum.FallbackRate = float64(fallback) / count
	return sum
}

// percentile 使用最近秩法，values 会被排序。
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	idx := int(float64(len(values))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
