package core

import "time"

// DefaultContentTypeAffinity 是画像中没有该内容类型时使用的亲和度。
const DefaultContentTypeAffinity = 0.5

// UserPreferenceProfile 是用户偏好画像。
//
// 一句话定义：用户画像 = 用户兴趣在 embedding 空间中的位置 + 内容类型偏好
//
//   - Vector 是归一化后的偏好向量，维度与内容 embedding 一致
//   - ContentTypeAffinities 取值范围 [0,1]
//   - 只有 profile.Learner 会写入画像，其它组件只读取快照
type UserPreferenceProfile struct {
	UserID                string                  `json:"user_id"`
	Vector                []float64               `json:"vector"`
	ContentTypeAffinities map[ContentType]float64 `json:"content_type_affinities"`
	LastUpdated           time.Time               `json:"last_updated"`
}

// NewUserPreferenceProfile 创建一个新的用户画像。
func NewUserPreferenceProfile(userID string, vector []float64) *UserPreferenceProfile {
	return &UserPreferenceProfile{
		UserID:                userID,
		Vector:                vector,
		ContentTypeAffinities: make(map[ContentType]float64),
		LastUpdated:           time.Now(),
	}
}

// Affinity 返回内容类型亲和度，未知类型返回 DefaultContentTypeAffinity。
func (p *UserPreferenceProfile) Affinity(t ContentType) float64 {
	if p == nil || p.ContentTypeAffinities == nil {
		return DefaultContentTypeAffinity
	}
	v, ok := p.ContentTypeAffinities[t]
	if !ok {
		return DefaultContentTypeAffinity
	}
	return v
}

// Clone 返回深拷贝，避免并发请求共享底层切片。
func (p *UserPreferenceProfile) Clone() *UserPreferenceProfile {
	if p == nil {
		return nil
	}
	out := &UserPreferenceProfile{
		UserID:                p.UserID,
		Vector:                append([]float64(nil), p.Vector...),
		ContentTypeAffinities: make(map[ContentType]float64, len(p.ContentTypeAffinities)),
		LastUpdated:           p.LastUpdated,
	}
	for k, v := range p.ContentTypeAffinities {
		out.ContentTypeAffinities[k] = v
	}
	return out
}
