package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/rushteam/discovery/core"
)

// 集合字段。元数据字段与 embedding.ItemMetadata 一致，Search / Query 的过滤条件只能使用这些字段。
const (
	FieldID          = "id"
	FieldVector      = "vector"
	FieldAuthorID    = "author_id"
	FieldContentType = "content_type"
	FieldIsPrivate   = "is_private"
	FieldCreatedAt   = "created_at"
)

var metadataFields = []string{FieldAuthorID, FieldContentType, FieldIsPrivate, FieldCreatedAt}

// MilvusService 是 Milvus 向量数据库的 VectorDatabaseService 实现。
//
// 注意：此实现位于扩展包中，需要单独引入：
//
//	go get github.com/rushteam/discovery/ext/vector/milvus
type MilvusService struct {
	Address  string
	Username string
	Password string
	Database string
	client   *milvusclient.Client

	// metrics 记录每个集合创建时的度量方式，用于把 Milvus 分数换算为相似度
	metrics map[string]string
}

// NewMilvusService 创建一个新的 Milvus 服务实例。
func NewMilvusService(ctx context.Context, address string, opts ...MilvusOption) (*MilvusService, error) {
	s := &MilvusService{
		Address:  address,
		Database: "default",
		metrics:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  s.Address,
		Username: s.Username,
		Password: s.Password,
		DBName:   s.Database,
	})
	if err != nil {
		return nil, unavailable("create milvus client", err)
	}
	s.client = client
	return s, nil
}

type MilvusOption func(*MilvusService)

func WithMilvusAuth(username, password string) MilvusOption {
	return func(s *MilvusService) {
		s.Username = username
		s.Password = password
	}
}

func WithMilvusDatabase(database string) MilvusOption {
	return func(s *MilvusService) {
		s.Database = database
	}
}

// Search 实现 core.VectorService 接口
func (s *MilvusService) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil || req.Collection == "" || len(req.Vector) == 0 {
		return nil, invalid("collection and vector are required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	metric := s.metricOf(req.Collection, req.Metric)

	fields := append([]string{FieldID}, metadataFields...)
	if req.WithVectors {
		fields = append(fields, FieldVector)
	}
	opt := milvusclient.NewSearchOption(req.Collection, topK, []entity.Vector{entity.FloatVector(toFloat32(req.Vector))}).
		WithOutputFields(fields...)
	if expr, params := filterExpr(req.Filter); expr != "" {
		opt = opt.WithFilter(expr)
		for k, v := range params {
			opt = opt.WithTemplateParam(k, v)
		}
	}
	if ap := annParam(req.Params); ap != nil {
		opt = opt.WithAnnParam(ap)
	}

	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, unavailable("milvus search", err)
	}

	items := make([]core.VectorSearchItem, 0, topK)
	for _, rs := range results {
		if rs.Err != nil {
			return nil, unavailable("milvus search", rs.Err)
		}
		for i := 0; i < rs.ResultCount; i++ {
			id, err := rs.IDs.GetAsString(i)
			if err != nil {
				continue
			}
			item := core.VectorSearchItem{ID: id, Metadata: rowMetadata(rs, i)}
			if i < len(rs.Scores) {
				item.Score, item.Distance = scoreOf(metric, float64(rs.Scores[i]))
			}
			if req.WithVectors {
				item.Vector = rowVector(rs, i)
			}
			items = append(items, item)
		}
	}
	return &core.VectorSearchResult{Items: items}, nil
}

// Query 按元数据过滤查询，结果不排序。
func (s *MilvusService) Query(ctx context.Context, req *core.VectorQueryRequest) ([]core.VectorSearchItem, error) {
	if req == nil || req.Collection == "" {
		return nil, invalid("collection is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	opt := milvusclient.NewQueryOption(req.Collection).
		WithOutputFields(append([]string{FieldID}, metadataFields...)...).
		WithLimit(limit)
	expr, params := filterExpr(req.Filter)
	if expr == "" {
		expr = FieldID + ` != ""`
	}
	opt = opt.WithFilter(expr)
	for k, v := range params {
		opt = opt.WithTemplateParam(k, v)
	}

	rs, err := s.client.Query(ctx, opt)
	if err != nil {
		return nil, unavailable("milvus query", err)
	}
	idCol := rs.GetColumn(FieldID)
	if idCol == nil {
		return []core.VectorSearchItem{}, nil
	}
	out := make([]core.VectorSearchItem, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		id, err := idCol.GetAsString(i)
		if err != nil {
			continue
		}
		out = append(out, core.VectorSearchItem{ID: id, Metadata: rowMetadata(rs, i)})
	}
	return out, nil
}

func (s *MilvusService) Insert(ctx context.Context, req *core.VectorInsertRequest) error {
	cols, err := buildColumns(req)
	if err != nil {
		return err
	}
	if _, err := s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(req.Collection, cols...)); err != nil {
		return unavailable("milvus insert", err)
	}
	return nil
}

// Update 使用 Milvus Upsert，不存在时插入。
func (s *MilvusService) Update(ctx context.Context, req *core.VectorUpdateRequest) error {
	if req == nil || req.ID == "" {
		return invalid("id is required")
	}
	cols, err := buildColumns(&core.VectorInsertRequest{
		Collection: req.Collection,
		IDs:        []string{req.ID},
		Vectors:    [][]float64{req.Vector},
		Metadata:   []map[string]interface{}{req.Metadata},
	})
	if err != nil {
		return err
	}
	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(req.Collection, cols...)); err != nil {
		return unavailable("milvus upsert", err)
	}
	return nil
}

func (s *MilvusService) Delete(ctx context.Context, req *core.VectorDeleteRequest) error {
	if req == nil || req.Collection == "" || len(req.IDs) == 0 {
		return invalid("collection and ids are required")
	}
	if _, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(req.Collection).WithStringIDs(FieldID, req.IDs)); err != nil {
		return unavailable("milvus delete", err)
	}
	return nil
}

// CreateCollection 创建内容集合：主键 id、向量字段与固定的元数据字段，索引使用 AUTOINDEX。
func (s *MilvusService) CreateCollection(ctx context.Context, req *core.VectorCreateCollectionRequest) error {
	if req == nil || req.Name == "" {
		return invalid("collection name is required")
	}
	if req.Dimension <= 0 {
		return invalid("dimension must be greater than 0")
	}
	metric := req.Metric
	if !core.ValidateVectorMetric(metric) {
		metric = string(core.MetricCosine)
	}

	schema := entity.NewSchema().
		WithName(req.Name).
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(255).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(req.Dimension))).
		WithField(entity.NewField().WithName(FieldAuthorID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(255)).
		WithField(entity.NewField().WithName(FieldContentType).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
		WithField(entity.NewField().WithName(FieldIsPrivate).WithDataType(entity.FieldTypeBool)).
		WithField(entity.NewField().WithName(FieldCreatedAt).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))

	opt := milvusclient.NewCreateCollectionOption(req.Name, schema).
		WithIndexOptions(milvusclient.NewCreateIndexOption(req.Name, FieldVector, index.NewAutoIndex(metricType(metric))))
	if err := s.client.CreateCollection(ctx, opt); err != nil {
		return unavailable("milvus create collection", err)
	}
	s.metrics[req.Name] = metric
	return nil
}

func (s *MilvusService) DropCollection(ctx context.Context, collection string) error {
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return unavailable("milvus drop collection", err)
	}
	delete(s.metrics, collection)
	return nil
}

func (s *MilvusService) HasCollection(ctx context.Context, collection string) (bool, error) {
	ok, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return false, unavailable("milvus has collection", err)
	}
	return ok, nil
}

func (s *MilvusService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(context.Background())
}

// metricOf 优先使用集合创建时的度量方式。Milvus 搜索时使用索引的度量，请求中的 Metric 只用于分数换算。
func (s *MilvusService) metricOf(collection, requested string) string {
	if m, ok := s.metrics[collection]; ok {
		return m
	}
	if core.ValidateVectorMetric(requested) {
		return requested
	}
	return string(core.MetricCosine)
}

// buildColumns 把插入请求转换为固定 schema 的列，缺失的元数据取零值。
func buildColumns(req *core.VectorInsertRequest) ([]column.Column, error) {
	if req == nil || req.Collection == "" {
		return nil, invalid("collection is required")
	}
	if len(req.Vectors) == 0 || len(req.Vectors) != len(req.IDs) {
		return nil, invalid("vectors and ids length mismatch")
	}
	dim := len(req.Vectors[0])
	n := len(req.IDs)
	vectors := make([][]float32, n)
	authors := make([]string, n)
	types := make([]string, n)
	private := make([]bool, n)
	created := make([]string, n)
	for i := range req.IDs {
		if len(req.Vectors[i]) != dim {
			return nil, invalid("vector dimension mismatch")
		}
		vectors[i] = toFloat32(req.Vectors[i])
		var md map[string]interface{}
		if i < len(req.Metadata) {
			md = req.Metadata[i]
		}
		authors[i] = stringOf(md[FieldAuthorID])
		types[i] = stringOf(md[FieldContentType])
		created[i] = stringOf(md[FieldCreatedAt])
		private[i], _ = md[FieldIsPrivate].(bool)
	}
	return []column.Column{
		column.NewColumnVarChar(FieldID, req.IDs),
		column.NewColumnFloatVector(FieldVector, dim, vectors),
		column.NewColumnVarChar(FieldAuthorID, authors),
		column.NewColumnVarChar(FieldContentType, types),
		column.NewColumnBool(FieldIsPrivate, private),
		column.NewColumnVarChar(FieldCreatedAt, created),
	}, nil
}

// filterExpr 把等值过滤转换为带模板参数的表达式，key 排序保证表达式稳定。
func filterExpr(filter map[string]interface{}) (string, map[string]interface{}) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	exprs := make([]string, 0, len(keys))
	params := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		p := "f_" + k
		exprs = append(exprs, fmt.Sprintf("%s == {%s}", k, p))
		params[p] = filter[k]
	}
	return strings.Join(exprs, " && "), params
}

func annParam(params map[string]interface{}) index.AnnParam {
	if len(params) == 0 {
		return nil
	}
	ap := index.NewCustomAnnParam()
	ok := false
	for _, k := range []string{"nprobe", "ef", "radius", "range_filter"} {
		if v, has := params[k]; has {
			ap.WithExtraParam(k, v)
			ok = true
		}
	}
	if !ok {
		return nil
	}
	return ap
}

// scoreOf 把 Milvus 返回的分数换算为 score（越大越相似）与 distance。
func scoreOf(metric string, raw float64) (score, distance float64) {
	switch metric {
	case string(core.MetricEuclidean):
		return 1.0 / (1.0 + raw), raw
	case string(core.MetricInnerProduct):
		return raw, -raw
	default:
		return raw, 1.0 - raw
	}
}

func metricType(metric string) entity.MetricType {
	switch metric {
	case string(core.MetricEuclidean):
		return entity.L2
	case string(core.MetricInnerProduct):
		return entity.IP
	default:
		return entity.COSINE
	}
}

func rowMetadata(rs milvusclient.ResultSet, i int) map[string]interface{} {
	md := make(map[string]interface{}, len(metadataFields))
	for _, f := range metadataFields {
		col := rs.GetColumn(f)
		if col == nil || i >= col.Len() {
			continue
		}
		if v, err := col.Get(i); err == nil {
			md[f] = v
		}
	}
	return md
}

func rowVector(rs milvusclient.ResultSet, i int) []float64 {
	col := rs.GetColumn(FieldVector)
	if col == nil || i >= col.Len() {
		return nil
	}
	v, err := col.Get(i)
	if err != nil {
		return nil
	}
	switch vec := v.(type) {
	case entity.FloatVector:
		return toFloat64(vec)
	case []float32:
		return toFloat64(vec)
	}
	return nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func stringOf(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

func invalid(msg string) error {
	return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "milvus: "+msg)
}

func unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleVector, core.ErrorCodeUpstreamUnavailable, "milvus: "+msg, err)
}

var (
	_ core.VectorService         = (*MilvusService)(nil)
	_ core.VectorDatabaseService = (*MilvusService)(nil)
)
