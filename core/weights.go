package core

import (
	"fmt"
	"strconv"
)

// ScoringWeights 是最终得分的混合权重。
// 权重必须非负，但不要求和为 1。
type ScoringWeights struct {
	Relevance  float64 `yaml:"relevance" json:"relevance"`
	Recency    float64 `yaml:"recency" json:"recency"`
	Popularity float64 `yaml:"popularity" json:"popularity"`
	Diversity  float64 `yaml:"diversity" json:"diversity"`
}

// Validate 检查权重是否非负。
func (w ScoringWeights) Validate() error {
	if w.Relevance < 0 || w.Recency < 0 || w.Popularity < 0 || w.Diversity < 0 {
		return NewDomainError(ModuleService, ErrorCodeInvalidInput,
			fmt.Sprintf("scoring weights must be non-negative: %+v", w))
	}
	return nil
}

// Fingerprint 返回权重的稳定字符串表示，用于缓存 key。
// 使用最短的精确表示，任意两组不同的权重得到不同的 fingerprint。
func (w ScoringWeights) Fingerprint() string {
	return "r" + formatWeight(w.Relevance) +
		"_t" + formatWeight(w.Recency) +
		"_p" + formatWeight(w.Popularity) +
		"_d" + formatWeight(w.Diversity)
}

func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
