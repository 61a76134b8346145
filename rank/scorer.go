package rank

import (
	"math"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/vecmath"
)

// ContentTypeWeight 是内容类型亲和度在最终得分中的固定权重，不属于 ScoringWeights。
const ContentTypeWeight = 0.1

// DefaultDecayHours 是时效分的衰减常数（小时）
const DefaultDecayHours = 48.0

// Scorer 是多因子打分器，纯函数：同样的输入总是得到同样的输出。
//
//	final = similarity*relevance + engagement*popularity + temporal*recency
//	      + diversity*diversity + contentType*ContentTypeWeight
type Scorer struct {
	// DecayHours 时效衰减常数，<=0 时使用 DefaultDecayHours
	DecayHours float64
}

// Score 计算单个内容的各维度得分与最终得分。profile 为 nil 时相似度为 0，内容类型取默认亲和度。
func (s Scorer) Score(
	profile *core.UserPreferenceProfile,
	item *core.ContentItem,
	recentTopics map[string]struct{},
	w core.ScoringWeights,
	now time.Time,
) (core.Scores, float64) {
	var sc core.Scores
	if item == nil {
		return sc, 0
	}
	if profile != nil {
		sc.Similarity = SimilarityScore(profile.Vector, item.Embedding)
	}
	sc.Engagement = EngagementScore(item, now)
	sc.Temporal = TemporalScore(item, now, s.decay())
	sc.Diversity = DiversityScore(item, recentTopics)
	sc.ContentType = profile.Affinity(item.ContentType)

	final := sc.Similarity*w.Relevance +
		sc.Engagement*w.Popularity +
		sc.Temporal*w.Recency +
		sc.Diversity*w.Diversity +
		sc.ContentType*ContentTypeWeight
	return sc, final
}

func (s Scorer) decay() float64 {
	if s.DecayHours <= 0 {
		return DefaultDecayHours
	}
	return s.DecayHours
}

// SimilarityScore 是画像向量与内容 embedding 的余弦相似度，负值截断为 0。
func SimilarityScore(profile, embedding []float64) float64 {
	if len(profile) == 0 || len(embedding) == 0 {
		return 0
	}
	return vecmath.Clamp(vecmath.CosineSimilarity(profile, embedding), 0, 1)
}

// EngagementScore 是按小时归一化、对数压缩的互动率：
// min(log10(rate+1)/2, 1)，rate = (收藏+评论) / max(ageHours, 1)。
func EngagementScore(item *core.ContentItem, now time.Time) float64 {
	age := item.AgeHours(now)
	total := item.Engagement.Total()
	if age <= 0 || total <= 0 {
		return 0
	}
	rate := float64(total) / math.Max(age, 1)
	return math.Min(math.Log10(rate+1)/2, 1)
}

// TemporalScore 是指数衰减 exp(-ageHours/decayHours)，未来时间视为刚发布。
func TemporalScore(item *core.ContentItem, now time.Time, decayHours float64) float64 {
	if decayHours <= 0 {
		decayHours = DefaultDecayHours
	}
	age := math.Max(item.AgeHours(now), 0)
	return math.Exp(-age / decayHours)
}

// DiversityScore = 1 - 与最近话题重合的 hashtag 数 / max(hashtag 数, 1)。
func DiversityScore(item *core.ContentItem, recentTopics map[string]struct{}) float64 {
	if len(item.Hashtags) == 0 || len(recentTopics) == 0 {
		return 1
	}
	// hashtag 是集合，重复的 tag 只计一次
	tags := make(map[string]struct{}, len(item.Hashtags))
	overlap := 0
	for _, tag := range item.Hashtags {
		if _, dup := tags[tag]; dup {
			continue
		}
		tags[tag] = struct{}{}
		if _, ok := recentTopics[tag]; ok {
			overlap++
		}
	}
	return 1 - float64(overlap)/float64(len(tags))
}
