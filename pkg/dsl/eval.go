// Package dsl 使用 CEL (Common Expression Language) 实现规则表达式。
//
// 两处使用：
//   - 缓存失效规则的附加条件：event.action == "save" && event.content_type == "video"
//   - 候选过滤表达式：item.content_type == "video" && label.recall_source == "recent"
package dsl

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/discovery/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("event", cel.DynType),
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
			cel.Variable("now", cel.TimestampType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的布尔表达式，可并发复用。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，表达式必须返回 bool。
//
// 可用变量：event / item / label / rctx / now。
// 访问不存在的 key 会在求值时报错，应先用 has(event.key) 判断。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: init env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Eval 执行表达式。vars 中缺失的变量按空 map 处理，now 缺失时取当前时间。
func (p *Program) Eval(vars map[string]interface{}) (bool, error) {
	input := map[string]interface{}{
		"event": map[string]interface{}{},
		"item":  map[string]interface{}{},
		"label": map[string]interface{}{},
		"rctx":  map[string]interface{}{},
		"now":   time.Now(),
	}
	for k, v := range vars {
		input[k] = v
	}

	out, _, err := p.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("dsl: eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Eval 是候选级表达式解释器，把 Candidate 和请求上下文展开为 CEL 输入。
type Eval struct {
	cand *core.Candidate
	rctx *core.RecommendContext
}

// NewEval 创建候选级解释器。
func NewEval(cand *core.Candidate, rctx *core.RecommendContext) *Eval {
	return &Eval{cand: cand, rctx: rctx}
}

// Evaluate 编译并执行表达式。热路径上应使用 Compile + EvalCandidate 复用编译结果。
func (e *Eval) Evaluate(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return prg.Eval(CandidateVars(e.cand, e.rctx))
}

// EvalCandidate 使用已编译的表达式对候选求值。
func (p *Program) EvalCandidate(cand *core.Candidate, rctx *core.RecommendContext) (bool, error) {
	return p.Eval(CandidateVars(cand, rctx))
}

// CandidateVars 构建候选相关的 CEL 变量：item / label / rctx / now。
func CandidateVars(cand *core.Candidate, rctx *core.RecommendContext) map[string]interface{} {
	item := map[string]interface{}{}
	label := map[string]interface{}{}
	if cand != nil && cand.Item != nil {
		it := cand.Item
		hashtags := make([]interface{}, len(it.Hashtags))
		for i, h := range it.Hashtags {
			hashtags[i] = h
		}
		item = map[string]interface{}{
			"id":            it.ID,
			"author_id":     it.AuthorID,
			"content_type":  string(it.ContentType),
			"hashtags":      hashtags,
			"is_private":    it.IsPrivate,
			"created_at":    it.CreatedAt,
			"save_count":    it.Engagement.SaveCount,
			"comment_count": it.Engagement.CommentCount,
			"view_count":    it.Engagement.ViewCount,
			"score":         cand.FinalScore,
		}
		for k, v := range cand.Labels {
			label[k] = v.Value
		}
	}

	vars := map[string]interface{}{
		"item":  item,
		"label": label,
	}
	if rctx != nil {
		params := make(map[string]interface{}, len(rctx.Params))
		for k, v := range rctx.Params {
			params[k] = v
		}
		vars["rctx"] = map[string]interface{}{
			"user_id": rctx.UserID,
			"params":  params,
		}
		if !rctx.Now.IsZero() {
			vars["now"] = rctx.Now
		}
	}
	return vars
}
