package filter

import (
	"context"

	"github.com/rushteam/discovery/core"
)

// OwnContentFilter 过滤掉用户自己发布的内容。
type OwnContentFilter struct{}

func (f *OwnContentFilter) Name() string { return "filter.own" }

func (f *OwnContentFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, cand *core.Candidate) (bool, error) {
	if cand == nil || cand.Item == nil {
		return true, nil
	}
	return rctx != nil && rctx.UserID != "" && cand.Item.AuthorID == rctx.UserID, nil
}

// PrivacyFilter 过滤私密内容，除非用户关注了作者。
type PrivacyFilter struct{}

func (f *PrivacyFilter) Name() string { return "filter.privacy" }

func (f *PrivacyFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, cand *core.Candidate) (bool, error) {
	if cand == nil || cand.Item == nil {
		return true, nil
	}
	if !cand.Item.IsPrivate {
		return false, nil
	}
	if rctx == nil {
		return true, nil
	}
	if cand.Item.AuthorID == rctx.UserID {
		return false, nil
	}
	return !rctx.Relations.Follows(cand.Item.AuthorID), nil
}
