package service

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/metrics"
	"github.com/rushteam/discovery/pipeline"
)

// Phase 是一次 feed 请求所处的阶段：
// start → candidate_retrieval → scoring → ranking → diversification → cache_write → complete，
// 任意阶段失败进入 error。
type Phase string

const (
	PhaseStart           Phase = "start"
	PhaseRetrieval       Phase = "candidate_retrieval"
	PhaseScoring         Phase = "scoring"
	PhaseRanking         Phase = "ranking"
	PhaseDiversification Phase = "diversification"
	PhaseCacheWrite      Phase = "cache_write"
	PhaseComplete        Phase = "complete"
	PhaseError           Phase = "error"
)

func phaseOf(kind pipeline.Kind) Phase {
	switch kind {
	case pipeline.KindRecall, pipeline.KindFilter:
		return PhaseRetrieval
	case pipeline.KindScore:
		return PhaseScoring
	case pipeline.KindRank:
		return PhaseRanking
	case pipeline.KindReRank:
		return PhaseDiversification
	}
	return PhaseStart
}

// phaseTracker 是单次请求的 pipeline.Hook：记录当前阶段与各阶段耗时。
type phaseTracker struct {
	mu        sync.Mutex
	current   Phase
	started   time.Time
	durations map[Phase]time.Duration
	metrics   *metrics.Metrics
}

func newPhaseTracker(m *metrics.Metrics) *phaseTracker {
	return &phaseTracker{current: PhaseStart, durations: make(map[Phase]time.Duration), metrics: m}
}

func (t *phaseTracker) BeforeNode(_ context.Context, _ *core.RecommendContext, node pipeline.Node, cands []*core.Candidate) ([]*core.Candidate, error) {
	t.enter(phaseOf(node.Kind()))
	return cands, nil
}

func (t *phaseTracker) AfterNode(_ context.Context, _ *core.RecommendContext, _ pipeline.Node, cands []*core.Candidate, err error) ([]*core.Candidate, error) {
	t.leave()
	return cands, err
}

// enter 进入阶段并开始计时。
func (t *phaseTracker) enter(p Phase) {
	t.mu.Lock()
	t.current = p
	t.started = time.Now()
	t.mu.Unlock()
}

// leave 结束当前阶段的计时，阶段保持不变以便定位失败阶段。
func (t *phaseTracker) leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() {
		return
	}
	d := time.Since(t.started)
	t.durations[t.current] += d
	t.started = time.Time{}
	t.metrics.ObservePhase(string(t.current), d)
}

func (t *phaseTracker) phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// fields 返回用于日志的阶段耗时（毫秒）。
func (t *phaseTracker) fields() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.durations))
	for p, d := range t.durations {
		out[string(p)] = float64(d) / float64(time.Millisecond)
	}
	return out
}
