package utils

import "strings"

// Label 记录候选或请求在链路中的来源与状态，如召回源、命中的过滤器、最终策略。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

const (
	LabelRecallSource = "recall_source"
	LabelFiltered     = "filtered"
	LabelStrategy     = "strategy"
	LabelRankPhase    = "rank_phase"
)

// MergeLabel 合并同名 Label：Value 以 '|' 累积，Source 以 ',' 累积。
// incoming 的 Value 已出现在 existing 中时保持不变。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" || containsPart(existing.Value, incoming.Value, "|") {
		return existing
	}
	return Label{
		Value:  existing.Value + "|" + incoming.Value,
		Source: joinNonEmpty(existing.Source, incoming.Source, ","),
	}
}

func containsPart(joined, part, sep string) bool {
	for _, p := range strings.Split(joined, sep) {
		if p == part {
			return true
		}
	}
	return false
}

func joinNonEmpty(a, b, sep string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + sep + b
}
