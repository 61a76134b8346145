package core

import "context"

// VectorService 是向量检索服务的领域接口。
//
// 使用场景：
//   - 个性化召回：根据用户偏好向量检索相近内容
//   - 相似内容：根据参考内容的 embedding 检索相近内容
//
// 实现：
//   - store.MemoryVectorService（内存实现）
//   - ext/vector/milvus.MilvusService（扩展包）
type VectorService interface {
	// Search 向量近邻搜索，结果按相似度降序
	Search(ctx context.Context, req *VectorSearchRequest) (*VectorSearchResult, error)

	// Close 关闭连接
	Close() error
}

// VectorSearchRequest 向量搜索请求
type VectorSearchRequest struct {
	// Collection 集合名称
	Collection string

	// Vector 查询向量
	Vector []float64

	// TopK 返回 TopK 个最相似的结果
	TopK int

	// Metric 距离度量方式：cosine / euclidean / inner_product
	Metric string

	// Filter 元数据等值过滤（可选）
	Filter map[string]interface{}

	// WithVectors 是否在结果中返回向量
	WithVectors bool

	// Params 额外参数（可选）
	Params map[string]interface{}
}

// VectorSearchItem 单个向量搜索结果项
type VectorSearchItem struct {
	ID       string
	Score    float64
	Distance float64
	Metadata map[string]interface{}
	Vector   []float64
}

// VectorSearchResult 向量搜索结果
type VectorSearchResult struct {
	Items []VectorSearchItem
}

// ValidateVectorMetric 验证距离度量类型
func ValidateVectorMetric(metric string) bool {
	switch metric {
	case "cosine", "euclidean", "inner_product":
		return true
	default:
		return false
	}
}

// MetricType 距离度量类型
type MetricType string

const (
	MetricCosine       MetricType = "cosine"
	MetricEuclidean    MetricType = "euclidean"
	MetricInnerProduct MetricType = "inner_product"
)
