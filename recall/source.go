package recall

import (
	"context"
	"errors"

	"github.com/rushteam/discovery/core"
)

// Source 表示一个可复用的召回源（最新内容 / 向量近邻 / ...）。
// 你可以把它理解为“可并发 fan-out 的策略单元”。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Candidate, error)
}

// ErrSkipped 表示召回源本次没有可用输入（冷启动用户、热门列表不存在），
// Fanout 既不把它计为成功也不计为失败。
var ErrSkipped = errors.New("recall: source skipped")

// ParamCandidateLimit 是 rctx.Params 中单个召回源的候选上限。
const ParamCandidateLimit = "candidate_limit"

// CandidateLimit 读取 rctx 中的候选上限，缺失时返回 def。
func CandidateLimit(rctx *core.RecommendContext, def int) int {
	if rctx == nil || rctx.Params == nil {
		return def
	}
	if v, ok := rctx.Params[ParamCandidateLimit].(int); ok && v > 0 {
		return v
	}
	return def
}
