// Package profile 维护用户偏好画像：冷启动时从历史行为计算，之后随互动缓慢更新。
//
// 画像只由 Learner 写入缓存（read-modify-write，后写覆盖先写），
// 同一用户的两次并发 Update 可能丢失其中一次。
package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/embedding"
	"github.com/rushteam/discovery/pkg/logger"
	"github.com/rushteam/discovery/pkg/vecmath"
)

// 互动类型
const (
	InteractionSave    = "save"
	InteractionCreate  = "create"
	InteractionShare   = "share"
	InteractionComment = "comment"
	InteractionLike    = "like"
	InteractionView    = "view"
)

// DefaultInteractionWeights 是各互动类型的默认权重，未知类型使用 UnknownInteractionWeight。
var DefaultInteractionWeights = map[string]float64{
	InteractionSave:    2.0,
	InteractionCreate:  1.5,
	InteractionShare:   1.5,
	InteractionComment: 1.2,
	InteractionLike:    1.0,
	InteractionView:    0.5,
}

// UnknownInteractionWeight 未知互动类型的权重
const UnknownInteractionWeight = 1.0

// ProfileKey 返回画像缓存 key：user_prefs:{userID}:profile
func ProfileKey(userID string) string {
	return "user_prefs:" + userID + ":profile"
}

// Options 学习参数
type Options struct {
	// LearningRate 每次更新向目标移动的比例，(0,1]
	LearningRate float64 `yaml:"learning_rate"`

	// TTL 画像缓存时间（秒）
	TTL int `yaml:"ttl"`

	// SavedWeight / CreatedWeight 冷启动计算时收藏与发布内容的权重
	SavedWeight   float64 `yaml:"saved_weight"`
	CreatedWeight float64 `yaml:"created_weight"`

	// HistoryLimit 冷启动时读取的历史条数
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultOptions 返回默认学习参数。
func DefaultOptions() Options {
	return Options{
		LearningRate:  0.1,
		TTL:           3600,
		SavedWeight:   2.0,
		CreatedWeight: 1.5,
		HistoryLimit:  50,
	}
}

// EmbeddingResolver 批量解析内容向量，embedding.ItemResolver 实现此接口。
type EmbeddingResolver interface {
	ResolveMany(ctx context.Context, ids []string) ([]embedding.Resolved, error)
}

// Learner 是偏好学习器。
type Learner struct {
	Cache        core.Store
	Interactions core.InteractionStore
	Resolver     EmbeddingResolver
	Options      Options
	Logger       *logger.Logger

	now func() time.Time
}

// NewLearner 创建偏好学习器。
func NewLearner(cache core.Store, interactions core.InteractionStore, resolver EmbeddingResolver, opts Options) *Learner {
	return &Learner{
		Cache:        cache,
		Interactions: interactions,
		Resolver:     resolver,
		Options:      opts,
		Logger:       logger.NewNop(),
		now:          time.Now,
	}
}

// GetOrCompute 返回用户画像：先查缓存，未命中时由收藏与发布的内容计算。
// 没有任何可用信号（冷启动）时返回 nil, nil。
func (l *Learner) GetOrCompute(ctx context.Context, userID string) (*core.UserPreferenceProfile, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: user id is required")
	}
	if p := l.load(ctx, userID); p != nil {
		return p, nil
	}

	if l.Interactions == nil {
		return nil, nil
	}
	limit := l.Options.HistoryLimit
	saved, err := l.Interactions.SavedItemIDs(ctx, userID, limit)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleProfile, core.ErrorCodeUpstreamUnavailable, "profile: load saved items", err)
	}
	created, err := l.Interactions.CreatedItemIDs(ctx, userID, limit)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleProfile, core.ErrorCodeUpstreamUnavailable, "profile: load created items", err)
	}

	weights := make(map[string]float64, len(saved)+len(created))
	order := make([]string, 0, len(saved)+len(created))
	add := func(ids []string, w float64) {
		for _, id := range ids {
			if _, ok := weights[id]; !ok {
				order = append(order, id)
			}
			weights[id] += w
		}
	}
	add(saved, l.Options.SavedWeight)
	add(created, l.Options.CreatedWeight)
	if len(order) == 0 {
		return nil, nil
	}

	resolved, err := l.Resolver.ResolveMany(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, nil
	}
	target, affinities, err := centroid(resolved, weights)
	if err != nil {
		return nil, err
	}

	p := core.NewUserPreferenceProfile(userID, target)
	p.ContentTypeAffinities = affinities
	p.LastUpdated = l.clock()
	l.save(ctx, p)
	return p, nil
}

// Update 根据一批互动把画像向互动内容的加权中心移动 LearningRate 的距离。
//
// interactionTypes 与 postIDs 一一对应（为空时按未知类型处理）；weights 覆盖默认互动权重。
// 没有任何内容能解析出向量时返回 NO_VALID_SIGNAL，画像保持不变。
func (l *Learner) Update(
	ctx context.Context,
	userID string,
	postIDs []string,
	interactionTypes []string,
	weights map[string]float64,
) (*core.UserPreferenceProfile, error) {
	if userID == "" || len(postIDs) == 0 {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: user id and post ids are required")
	}
	if len(interactionTypes) != 0 && len(interactionTypes) != len(postIDs) {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput,
			fmt.Sprintf("profile: %d interaction types for %d posts", len(interactionTypes), len(postIDs)))
	}

	perItem := make(map[string]float64, len(postIDs))
	order := make([]string, 0, len(postIDs))
	for i, id := range postIDs {
		typ := ""
		if len(interactionTypes) > 0 {
			typ = interactionTypes[i]
		}
		w := interactionWeight(typ, weights)
		if w < 0 {
			return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: negative interaction weight for "+typ)
		}
		if _, ok := perItem[id]; !ok {
			order = append(order, id)
		}
		perItem[id] += w
	}

	resolved, err := l.Resolver.ResolveMany(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeNoValidSignal, "profile: no valid embeddings for interactions")
	}
	target, shares, err := centroid(resolved, perItem)
	if err != nil {
		return nil, err
	}

	current, err := l.GetOrCompute(ctx, userID)
	if err != nil {
		return nil, err
	}

	rate := vecmath.Clamp(l.Options.LearningRate, 0, 1)
	var next *core.UserPreferenceProfile
	switch {
	case current == nil:
		next = core.NewUserPreferenceProfile(userID, target)
		next.ContentTypeAffinities = shares
	case len(current.Vector) != len(target):
		l.log().Warn("profile dimension changed, replacing vector",
			"user_id", userID, "old_dim", len(current.Vector), "new_dim", len(target))
		next = current.Clone()
		next.Vector = target
		next.ContentTypeAffinities = shares
	default:
		moved, err := vecmath.Interpolate(current.Vector, target, rate)
		if err != nil {
			return nil, err
		}
		next = current.Clone()
		next.Vector = vecmath.Normalize(moved)
		next.ContentTypeAffinities = blendAffinities(current.ContentTypeAffinities, shares, rate)
	}
	next.LastUpdated = l.clock()
	l.save(ctx, next)
	return next, nil
}

// centroid 计算加权中心（归一化）与各内容类型的权重占比。
func centroid(resolved []embedding.Resolved, weights map[string]float64) ([]float64, map[core.ContentType]float64, error) {
	vectors := make([][]float64, 0, len(resolved))
	ws := make([]float64, 0, len(resolved))
	byType := make(map[core.ContentType]float64)
	total := 0.0
	for _, r := range resolved {
		w := weights[r.Item.ID]
		vectors = append(vectors, r.Vector)
		ws = append(ws, w)
		if r.Item.ContentType.Valid() {
			byType[r.Item.ContentType] += w
			total += w
		}
	}
	vec, err := vecmath.WeightedCentroid(vectors, ws)
	if err != nil {
		return nil, nil, err
	}

	shares := make(map[core.ContentType]float64, 4)
	if total > 0 {
		for _, t := range []core.ContentType{core.ContentTypeText, core.ContentTypeImage, core.ContentTypeVideo, core.ContentTypeMixed} {
			shares[t] = byType[t] / total
		}
	}
	return vecmath.Normalize(vec), shares, nil
}

// blendAffinities 把亲和度按 rate 向本次互动的类型占比移动，缺失的类型从默认值开始。
func blendAffinities(current, shares map[core.ContentType]float64, rate float64) map[core.ContentType]float64 {
	out := make(map[core.ContentType]float64, len(current)+len(shares))
	for t, v := range current {
		out[t] = v
	}
	for t, share := range shares {
		old, ok := out[t]
		if !ok {
			old = core.DefaultContentTypeAffinity
		}
		out[t] = vecmath.Clamp(old*(1-rate)+share*rate, 0, 1)
	}
	return out
}

func interactionWeight(typ string, overrides map[string]float64) float64 {
	if w, ok := overrides[typ]; ok {
		return w
	}
	if w, ok := DefaultInteractionWeights[typ]; ok {
		return w
	}
	return UnknownInteractionWeight
}

// load 读取缓存画像，缓存故障视为未命中。
func (l *Learner) load(ctx context.Context, userID string) *core.UserPreferenceProfile {
	if l.Cache == nil {
		return nil
	}
	data, err := l.Cache.Get(ctx, ProfileKey(userID))
	if err != nil {
		if !core.IsStoreNotFound(err) {
			l.log().Warn("profile cache read failed", "user_id", userID, "error", err)
		}
		return nil
	}
	var p core.UserPreferenceProfile
	if err := json.Unmarshal(data, &p); err != nil || len(p.Vector) == 0 {
		l.log().Warn("profile cache entry is corrupt", "user_id", userID, "error", err)
		return nil
	}
	return &p
}

func (l *Learner) save(ctx context.Context, p *core.UserPreferenceProfile) {
	if l.Cache == nil {
		return
	}
	buf, err := json.Marshal(p)
	if err != nil {
		l.log().Error("profile encode failed", "user_id", p.UserID, "error", err)
		return
	}
	if err := l.Cache.Set(ctx, ProfileKey(p.UserID), buf, l.Options.TTL); err != nil {
		l.log().Warn("profile cache write failed", "user_id", p.UserID, "error", err)
	}
}

func (l *Learner) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

func (l *Learner) log() *logger.Logger {
	if l.Logger == nil {
		return logger.NewNop()
	}
	return l.Logger
}
