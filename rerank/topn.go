package rerank

import (
	"context"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，通常放在排序与多样性重排之后。
//
// 示例：
//
//	pipeline := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &rank.ScoreNode{},
//	        &rank.RankNode{},
//	        &rerank.DiversityBoost{Boost: 0.1},
//	        &rerank.TopNNode{N: 20},
//	    },
//	}
type TopNNode struct {
	// N 要保留的数量，<= 0 时不截断
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	if n.N <= 0 || len(cands) <= n.N {
		return cands, nil
	}
	return cands[:n.N], nil
}
