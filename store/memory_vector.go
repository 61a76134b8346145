package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/vecmath"
)

// 确保实现了接口
var (
	_ core.VectorService         = (*MemoryVectorService)(nil)
	_ core.VectorDatabaseService = (*MemoryVectorService)(nil)
)

// MemoryVectorService 是内存实现的向量服务，用于测试/开发/原型。
// 线性扫描全部向量，支持 cosine / euclidean / inner_product 三种度量。
type MemoryVectorService struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	metric    string
	vectors   map[string][]float64
	metadata  map[string]map[string]interface{}
}

// NewMemoryVectorService 创建内存向量服务实例。
func NewMemoryVectorService() *MemoryVectorService {
	return &MemoryVectorService{
		collections: make(map[string]*collection),
	}
}

func (m *MemoryVectorService) Name() string { return "memory_vector" }

// Search 实现 core.VectorService 接口。结果按分数降序，同分按 ID 升序。
func (m *MemoryVectorService) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil {
		return nil, vectorInvalid("vector search request is nil")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[req.Collection]
	if !ok {
		return &core.VectorSearchResult{Items: []core.VectorSearchItem{}}, nil
	}
	if len(req.Vector) != col.dimension {
		return nil, vectorInvalid("vector dimension mismatch")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	metric := req.Metric
	if metric == "" {
		metric = col.metric
	}

	items := make([]core.VectorSearchItem, 0, len(col.vectors))
	for id, vec := range col.vectors {
		if req.Filter != nil && !matchFilter(req.Filter, col.metadata[id]) {
			continue
		}
		score, distance := measure(metric, req.Vector, vec)
		item := core.VectorSearchItem{
			ID:       id,
			Score:    score,
			Distance: distance,
			Metadata: col.metadata[id],
		}
		if req.WithVectors {
			item.Vector = append([]float64(nil), vec...)
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > topK {
		items = items[:topK]
	}
	return &core.VectorSearchResult{Items: items}, nil
}

func measure(metric string, query, vec []float64) (score, distance float64) {
	switch metric {
	case string(core.MetricEuclidean):
		distance = vecmath.Distance(query, vec)
		return 1.0 / (1.0 + distance), distance
	case string(core.MetricInnerProduct):
		var dot float64
		for i := range query {
			dot += query[i] * vec[i]
		}
		return dot, -dot
	default:
		score = vecmath.CosineSimilarity(query, vec)
		return score, 1.0 - score
	}
}

// Close 实现 core.VectorService 接口
func (m *MemoryVectorService) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]*collection)
	return nil
}

// Insert 实现 core.VectorDatabaseService 接口
func (m *MemoryVectorService) Insert(ctx context.Context, req *core.VectorInsertRequest) error {
	if req == nil {
		return vectorInvalid("insert request is nil")
	}
	if len(req.Vectors) != len(req.IDs) {
		return vectorInvalid("vectors and ids length mismatch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, err := m.collection(req.Collection)
	if err != nil {
		return err
	}
	for _, vec := range req.Vectors {
		if len(vec) != col.dimension {
			return vectorInvalid("vector dimension mismatch")
		}
	}
	for i, vec := range req.Vectors {
		col.vectors[req.IDs[i]] = append([]float64(nil), vec...)
		if len(req.Metadata) > i {
			col.metadata[req.IDs[i]] = req.Metadata[i]
		}
	}
	return nil
}

// Update 实现 core.VectorDatabaseService 接口，ID 不存在时插入。
func (m *MemoryVectorService) Update(ctx context.Context, req *core.VectorUpdateRequest) error {
	if req == nil {
		return vectorInvalid("update request is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, err := m.collection(req.Collection)
	if err != nil {
		return err
	}
	if len(req.Vector) != col.dimension {
		return vectorInvalid("vector dimension mismatch")
	}
	col.vectors[req.ID] = append([]float64(nil), req.Vector...)
	if req.Metadata != nil {
		col.metadata[req.ID] = req.Metadata
	}
	return nil
}

// Query 实现 core.VectorDatabaseService 接口，按 ID 升序返回匹配元数据的条目。
func (m *MemoryVectorService) Query(ctx context.Context, req *core.VectorQueryRequest) ([]core.VectorSearchItem, error) {
	if req == nil {
		return nil, vectorInvalid("query request is nil")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[req.Collection]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(col.vectors))
	for id := range col.vectors {
		if req.Filter == nil || matchFilter(req.Filter, col.metadata[id]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	items := make([]core.VectorSearchItem, len(ids))
	for i, id := range ids {
		items[i] = core.VectorSearchItem{
			ID:       id,
			Metadata: col.metadata[id],
			Vector:   append([]float64(nil), col.vectors[id]...),
		}
	}
	return items, nil
}

// Delete 实现 core.VectorDatabaseService 接口
func (m *MemoryVectorService) Delete(ctx context.Context, req *core.VectorDeleteRequest) error {
	if req == nil {
		return vectorInvalid("delete request is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, err := m.collection(req.Collection)
	if err != nil {
		return err
	}
	for _, id := range req.IDs {
		delete(col.vectors, id)
		delete(col.metadata, id)
	}
	return nil
}

// CreateCollection 实现 core.VectorDatabaseService 接口
func (m *MemoryVectorService) CreateCollection(ctx context.Context, req *core.VectorCreateCollectionRequest) error {
	if req == nil {
		return vectorInvalid("create collection request is nil")
	}
	if req.Name == "" {
		return vectorInvalid("collection name is required")
	}
	if req.Dimension <= 0 {
		return vectorInvalid("dimension must be greater than 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.collections[req.Name]; exists {
		return vectorInvalid("collection already exists: " + req.Name)
	}
	metric := req.Metric
	if !core.ValidateVectorMetric(metric) {
		metric = string(core.MetricCosine)
	}
	m.collections[req.Name] = &collection{
		dimension: req.Dimension,
		metric:    metric,
		vectors:   make(map[string][]float64),
		metadata:  make(map[string]map[string]interface{}),
	}
	return nil
}

// DropCollection 实现 core.VectorDatabaseService 接口
func (m *MemoryVectorService) DropCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, collection)
	return nil
}

// HasCollection 实现 core.VectorDatabaseService 接口
func (m *MemoryVectorService) HasCollection(ctx context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.collections[collection]
	return exists, nil
}

// collection 调用方必须持有锁
func (m *MemoryVectorService) collection(name string) (*collection, error) {
	col, ok := m.collections[name]
	if !ok {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeNotFound, "collection not found: "+name)
	}
	return col, nil
}

// matchFilter 检查元数据是否匹配所有等值条件
func matchFilter(filter map[string]interface{}, metadata map[string]interface{}) bool {
	if len(filter) == 0 {
		return true
	}
	if metadata == nil {
		return false
	}
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func vectorInvalid(msg string) error {
	return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, msg)
}
