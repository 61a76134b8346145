package core

import (
	"time"

	"github.com/rushteam/discovery/pkg/utils"
)

// RecommendContext 承载用户/请求级信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	RequestID string
	UserID    string

	// Profile 是用户画像快照；冷启动用户为 nil
	Profile *UserPreferenceProfile

	// Relations 是拉黑 / 关注 / 已看关系快照，由检索阶段解析
	Relations *UserRelations

	// RecentTopics 是用户最近接触过的话题（hashtag），用于多样性打分
	RecentTopics []string

	// Weights 是本次请求的打分权重
	Weights ScoringWeights

	// Now 是本次请求的统一时间基准，保证同一请求内打分可复现
	Now time.Time

	// Labels 是请求级标签（策略、实验等）
	Labels map[string]utils.Label

	// Params 请求级参数，例如 limit、cursor
	Params map[string]any
}

// NewRecommendContext 创建请求上下文。
func NewRecommendContext(requestID, userID string, now time.Time) *RecommendContext {
	return &RecommendContext{
		RequestID: requestID,
		UserID:    userID,
		Now:       now,
		Labels:    make(map[string]utils.Label),
		Params:    make(map[string]any),
	}
}

// RecentTopicSet 返回 RecentTopics 的集合形式。
func (rctx *RecommendContext) RecentTopicSet() map[string]struct{} {
	set := make(map[string]struct{}, len(rctx.RecentTopics))
	for _, t := range rctx.RecentTopics {
		set[t] = struct{}{}
	}
	return set
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
