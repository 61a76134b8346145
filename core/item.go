package core

import (
	"time"

	"github.com/rushteam/discovery/pkg/utils"
)

// ContentType 是内容类型。
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
	ContentTypeMixed ContentType = "mixed"
)

// Valid 判断是否为已知内容类型。
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeMixed:
		return true
	}
	return false
}

// Engagement 是互动计数，只会单调递增。
type Engagement struct {
	SaveCount    int64 `json:"save_count"`
	CommentCount int64 `json:"comment_count"`
	ViewCount    int64 `json:"view_count"`
}

// Total 返回参与互动率计算的互动总数（收藏 + 评论）。
func (e Engagement) Total() int64 {
	return e.SaveCount + e.CommentCount
}

// ContentItem 是可推荐的内容（帖子）。
// 推荐核心只读取 ContentItem，不会修改它。
type ContentItem struct {
	ID          string      `json:"id"`
	AuthorID    string      `json:"author_id"`
	CreatedAt   time.Time   `json:"created_at"`
	Embedding   []float64   `json:"embedding,omitempty"`
	ContentType ContentType `json:"content_type"`
	Hashtags    []string    `json:"hashtags,omitempty"`
	Engagement  Engagement  `json:"engagement"`
	IsPrivate   bool        `json:"is_private"`

	// Text 是用于计算 embedding 的文本（标题、正文、图片描述等）
	Text string `json:"text,omitempty"`
}

// AgeHours 返回相对 now 的内容年龄（小时）。
func (it *ContentItem) AgeHours(now time.Time) float64 {
	return now.Sub(it.CreatedAt).Hours()
}

// Scores 是单个候选在各维度上的得分。
type Scores struct {
	Similarity  float64 `json:"similarity"`
	Engagement  float64 `json:"engagement"`
	Temporal    float64 `json:"temporal"`
	Diversity   float64 `json:"diversity"`
	ContentType float64 `json:"content_type"`
}

// Candidate 是推荐链路中的统一承载结构（即 ScoredCandidate）。
// 只在一次请求内存在，不会被持久化（缓存中保存的是最终结果快照）。
type Candidate struct {
	Item       *ContentItem           `json:"item"`
	Scores     Scores                 `json:"scores"`
	FinalScore float64                `json:"final_score"`
	Scored     bool                   `json:"scored"`
	Labels     map[string]utils.Label `json:"labels,omitempty"`
}

func NewCandidate(item *ContentItem) *Candidate {
	return &Candidate{
		Item:   item,
		Labels: make(map[string]utils.Label),
	}
}

// ID 返回候选对应的内容 ID。
func (c *Candidate) ID() string {
	if c == nil || c.Item == nil {
		return ""
	}
	return c.Item.ID
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}
