package cache

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/dsl"
)

// Priority 规则优先级，按 high → medium → low 执行。
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Event 是触发缓存失效的事件。
type Event struct {
	Type        string    `json:"type" yaml:"type"`
	UserID      string    `json:"user_id,omitempty" yaml:"user_id"`
	ContentID   string    `json:"content_id,omitempty" yaml:"content_id"`
	ContentType string    `json:"content_type,omitempty" yaml:"content_type"`
	Action      string    `json:"action,omitempty" yaml:"action"`
	Timestamp   time.Time `json:"timestamp,omitempty" yaml:"timestamp"`
}

// action 返回用于规则匹配的动作，Action 为空时使用 Type。
func (e Event) action() string {
	if e.Action != "" {
		return e.Action
	}
	return e.Type
}

// TimeRange 是事件时间的闭区间，零值端点表示不限。
type TimeRange struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// Conditions 规则匹配条件，所有非空条件都满足才命中。
type Conditions struct {
	Actions      []string   `yaml:"actions"`
	ContentTypes []string   `yaml:"content_types"`
	TimeRange    *TimeRange `yaml:"time_range"`

	// Expr 是附加的 CEL 条件，例如 event.content_type == "video"
	Expr string `yaml:"expr"`
}

// Rule 是一条失效规则。Pattern 支持 {userId} / {contentId} / {contentType} 占位符。
type Rule struct {
	Name       string     `yaml:"name"`
	Pattern    string     `yaml:"pattern"`
	Priority   Priority   `yaml:"priority"`
	Conditions Conditions `yaml:"conditions"`

	program *dsl.Program
}

// RuleSet 是一组编译过的规则，只读，可并发使用。
type RuleSet struct {
	rules []Rule
}

// NewRuleSet 校验并编译规则，表达式或模式非法时返回 INVALID_INPUT。
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, fmt.Sprintf("cache: rule %d has empty pattern", i))
		}
		if r.Priority == "" {
			r.Priority = PriorityMedium
		}
		if r.Priority.rank() > 2 {
			return nil, core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: unknown priority "+string(r.Priority))
		}
		if _, err := GlobToRegexp(r.Pattern); err != nil {
			return nil, err
		}
		if r.Conditions.Expr != "" {
			prg, err := dsl.Compile(r.Conditions.Expr)
			if err != nil {
				return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: rule "+r.Name, err)
			}
			r.program = prg
		}
		out = append(out, r)
	}
	return &RuleSet{rules: out}, nil
}

// Rules 返回规则副本。
func (s *RuleSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	return append([]Rule(nil), s.rules...)
}

// Match 返回条件命中的规则，按优先级排序（同优先级保持定义顺序）。
func (s *RuleSet) Match(ev Event) []Rule {
	if s == nil {
		return nil
	}
	var out []Rule
	for _, r := range s.rules {
		if r.matches(ev) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.rank() < out[j].Priority.rank()
	})
	return out
}

func (r Rule) matches(ev Event) bool {
	c := r.Conditions
	if len(c.Actions) > 0 && !contains(c.Actions, ev.action()) {
		return false
	}
	if len(c.ContentTypes) > 0 && !contains(c.ContentTypes, ev.ContentType) {
		return false
	}
	if c.TimeRange != nil {
		at := ev.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		if !c.TimeRange.Start.IsZero() && at.Before(c.TimeRange.Start) {
			return false
		}
		if !c.TimeRange.End.IsZero() && at.After(c.TimeRange.End) {
			return false
		}
	}
	if r.program != nil {
		ok, err := r.program.Eval(eventVars(ev))
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Expand 用事件字段替换占位符。存在无法解析的占位符时返回 false，该规则应被跳过。
func (r Rule) Expand(ev Event) (string, bool) {
	repl := strings.NewReplacer(
		"{userId}", EscapeGlob(ev.UserID),
		"{contentId}", EscapeGlob(ev.ContentID),
		"{contentType}", EscapeGlob(ev.ContentType),
	)
	for _, ph := range []struct{ token, value string }{
		{"{userId}", ev.UserID},
		{"{contentId}", ev.ContentID},
		{"{contentType}", ev.ContentType},
	} {
		if strings.Contains(r.Pattern, ph.token) && ph.value == "" {
			return "", false
		}
	}
	return repl.Replace(r.Pattern), true
}

func eventVars(ev Event) map[string]interface{} {
	vars := map[string]interface{}{
		"event": map[string]interface{}{
			"type":         ev.Type,
			"action":       ev.action(),
			"user_id":      ev.UserID,
			"content_id":   ev.ContentID,
			"content_type": ev.ContentType,
		},
	}
	if !ev.Timestamp.IsZero() {
		vars["now"] = ev.Timestamp
	}
	return vars
}

// DefaultRules 返回默认失效规则。
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "user_profile", Pattern: "user_*:{userId}:*", Priority: PriorityHigh,
			Conditions: Conditions{Actions: []string{"profile_update", "settings_change"}},
		},
		{
			Name: "preference_reset", Pattern: "user_prefs:{userId}:*", Priority: PriorityHigh,
			Conditions: Conditions{Actions: []string{"preference_reset"}},
		},
		{
			Name: "post_change", Pattern: "post:{contentId}:*", Priority: PriorityHigh,
			Conditions: Conditions{Actions: []string{"post_update", "post_delete"}},
		},
		{
			Name: "social_graph", Pattern: "feed:*:{userId}:*", Priority: PriorityMedium,
			Conditions: Conditions{Actions: []string{"follow", "unfollow", "block", "unblock"}},
		},
		{
			Name: "interaction_discovery", Pattern: "discovery_feed:{userId}:*", Priority: PriorityMedium,
			Conditions: Conditions{Actions: []string{"like", "unlike", "save", "unsave", "comment"}},
		},
		{
			Name: "interaction_recommendation", Pattern: "rec_*:{userId}:*", Priority: PriorityMedium,
			Conditions: Conditions{Actions: []string{"like", "unlike", "save", "unsave", "comment"}},
		},
		{
			Name: "media_change", Pattern: "media:{contentId}:*", Priority: PriorityLow,
			Conditions: Conditions{Actions: []string{"media_update", "media_delete"}},
		},
	}
}

// DefaultRuleSet 返回编译好的默认规则集。
func DefaultRuleSet() *RuleSet {
	rs, err := NewRuleSet(DefaultRules())
	if err != nil {
		panic(err)
	}
	return rs
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules 解析 YAML 规则文件内容。
func ParseRules(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: parse rules", err)
	}
	return NewRuleSet(f.Rules)
}

// LoadRules 从 YAML 文件加载规则。
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
