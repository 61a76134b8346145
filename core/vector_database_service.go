package core

import "context"

// VectorDatabaseService 是完整的向量数据库服务接口。
//
// 嵌入 VectorService（召回场景接口），并提供写入与元数据查询：
//
//	var db core.VectorDatabaseService = memoryVectorService
//	_ = db.CreateCollection(ctx, &core.VectorCreateCollectionRequest{Name: "posts", Dimension: 1024, Metric: "cosine"})
//	_ = db.Update(ctx, &core.VectorUpdateRequest{Collection: "posts", ID: item.ID, Vector: item.Embedding})
//
// 实现：
//   - store.MemoryVectorService 实现此接口（内存实现）
//   - ext/vector/milvus.MilvusService 实现此接口（扩展包）
type VectorDatabaseService interface {
	// 嵌入召回场景接口（符合 DDD 原则）
	// 基础设施层接口扩展领域层接口，而不是相反
	VectorService

	// Insert 插入向量
	Insert(ctx context.Context, req *VectorInsertRequest) error

	// Update 写入或覆盖单个向量（upsert）
	Update(ctx context.Context, req *VectorUpdateRequest) error

	// Query 按元数据等值条件查询（不做向量计算）
	Query(ctx context.Context, req *VectorQueryRequest) ([]VectorSearchItem, error)

	// Delete 删除向量
	Delete(ctx context.Context, req *VectorDeleteRequest) error

	// CreateCollection 创建集合
	CreateCollection(ctx context.Context, req *VectorCreateCollectionRequest) error

	// DropCollection 删除集合
	DropCollection(ctx context.Context, collection string) error

	// HasCollection 检查集合是否存在
	HasCollection(ctx context.Context, collection string) (bool, error)
}

// VectorInsertRequest 向量插入请求
type VectorInsertRequest struct {
	// Collection 集合名称
	Collection string

	// Vectors 向量列表
	Vectors [][]float64

	// IDs 对应的物品 ID 列表
	IDs []string

	// Metadata 元数据
	Metadata []map[string]interface{}
}

// VectorUpdateRequest 向量更新请求
type VectorUpdateRequest struct {
	// Collection 集合名称
	Collection string

	// Vector 新向量
	Vector []float64

	// ID 物品 ID
	ID string

	// Metadata 元数据
	Metadata map[string]interface{}
}

// VectorDeleteRequest 向量删除请求
type VectorDeleteRequest struct {
	// Collection 集合名称
	Collection string

	// IDs 要删除的物品 ID 列表
	IDs []string
}

// VectorCreateCollectionRequest 创建集合请求
type VectorCreateCollectionRequest struct {
	// Name 集合名称
	Name string

	// Dimension 向量维度
	Dimension int

	// Metric 距离度量方式
	Metric string

	// Params 额外参数
	Params map[string]interface{}
}

// VectorQueryRequest 元数据查询请求
type VectorQueryRequest struct {
	// Collection 集合名称
	Collection string

	// Filter 元数据等值条件
	Filter map[string]interface{}

	// Limit 最大返回数量
	Limit int
}
