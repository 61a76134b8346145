package rank

import (
	"context"
	"sort"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/utils"
)

// ScoreNode 对每个候选调用 Scorer，写入 Scores / FinalScore，不改变顺序。
// 打分所需的画像、最近话题、权重、时间基准都取自 RecommendContext。
type ScoreNode struct {
	Scorer Scorer
}

func (n *ScoreNode) Name() string        { return "rank.score" }
func (n *ScoreNode) Kind() pipeline.Kind { return pipeline.KindScore }

func (n *ScoreNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if len(cands) == 0 {
		return cands, nil
	}
	if err := rctx.Weights.Validate(); err != nil {
		return nil, err
	}
	topics := rctx.RecentTopicSet()
	now := rctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	for _, c := range cands {
		if c == nil || c.Item == nil {
			continue
		}
		c.Scores, c.FinalScore = n.Scorer.Score(rctx.Profile, c.Item, topics, rctx.Weights, now)
		c.Scored = true
		c.PutLabel(utils.LabelRankPhase, utils.Label{Value: "scored", Source: "rank"})
	}
	return cands, nil
}

// RankNode 按 Rank 规则排序。
type RankNode struct{}

func (n *RankNode) Name() string        { return "rank.sort" }
func (n *RankNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *RankNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	return Rank(cands), nil
}

// Rank 原地排序并返回：FinalScore 降序，相同分数按 CreatedAt 降序，再按 ID 升序。
// 全序保证同样的输入总是得到同样的顺序（分页依赖这一点）。nil 候选排在最后。
func Rank(cands []*core.Candidate) []*core.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return less(cands[i], cands[j])
	})
	return cands
}

func less(a, b *core.Candidate) bool {
	if a == nil || a.Item == nil {
		return false
	}
	if b == nil || b.Item == nil {
		return true
	}
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
		return a.Item.CreatedAt.After(b.Item.CreatedAt)
	}
	return a.Item.ID < b.Item.ID
}
