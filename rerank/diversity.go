package rerank

import (
	"context"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
	"github.com/rushteam/discovery/pkg/utils"
	"github.com/rushteam/discovery/rank"
)

// DefaultDiversityBoost 是默认的多样性加成系数
const DefaultDiversityBoost = 0.1

// DiversityBoost 是一个简化的多样性重排：
// 每个候选 FinalScore += Scores.Diversity * Boost，然后按 rank.Rank 重新排序。
//
// 多样性只相对于用户最近的话题计算，不考虑已经选中的候选（不是逐个挑选的 MMR）。
type DiversityBoost struct {
	// Boost 加成系数，0 表示只重新排序
	Boost float64
}

func (n *DiversityBoost) Name() string {
	return "rerank.diversity"
}

func (n *DiversityBoost) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *DiversityBoost) Process(
	_ context.Context,
	_ *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	return Diversify(cands, n.Boost), nil
}

// Diversify 原地加成并重排，返回同一切片。
func Diversify(cands []*core.Candidate, boost float64) []*core.Candidate {
	if len(cands) == 0 {
		return cands
	}
	for _, c := range cands {
		if c == nil || c.Item == nil {
			continue
		}
		if boost != 0 {
			c.FinalScore += c.Scores.Diversity * boost
		}
		c.PutLabel(utils.LabelRankPhase, utils.Label{Value: "diversified", Source: "rerank"})
	}
	return rank.Rank(cands)
}
