package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/discovery/core"
)

// Hook 在每个 Node 前后执行，用于阶段计时、打点、曝光记录等。
// Hook 可以替换候选列表；返回错误会中断 Pipeline。
type Hook interface {
	BeforeNode(ctx context.Context, rctx *core.RecommendContext, node Node, cands []*core.Candidate) ([]*core.Candidate, error)
	AfterNode(ctx context.Context, rctx *core.RecommendContext, node Node, cands []*core.Candidate, err error) ([]*core.Candidate, error)
}

// Pipeline 把推荐逻辑拆成严格顺序执行的 Node 链。
type Pipeline struct {
	Nodes []Node
	Hooks []Hook
}

// NodeError 记录失败的 Node，便于调用方定位失败阶段。
type NodeError struct {
	Node string
	Kind Kind
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("pipeline node %s (%s): %v", e.Node, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	cands []*core.Candidate,
) ([]*core.Candidate, error) {
	cur := cands
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, &NodeError{Node: node.Name(), Kind: node.Kind(), Err: err}
		}

		var err error
		for _, h := range p.Hooks {
			if cur, err = h.BeforeNode(ctx, rctx, node, cur); err != nil {
				return nil, &NodeError{Node: node.Name(), Kind: node.Kind(), Err: err}
			}
		}

		next, nodeErr := node.Process(ctx, rctx, cur)
		for _, h := range p.Hooks {
			next, nodeErr = h.AfterNode(ctx, rctx, node, next, nodeErr)
		}
		if nodeErr != nil {
			return nil, &NodeError{Node: node.Name(), Kind: node.Kind(), Err: nodeErr}
		}
		cur = next
	}
	return cur, nil
}
