package store

import (
	"context"
	"testing"

	"github.com/rushteam/discovery/core"
)

func newTestVectorService(t *testing.T) *MemoryVectorService {
	t.Helper()
	svc := NewMemoryVectorService()
	err := svc.CreateCollection(context.Background(), &core.VectorCreateCollectionRequest{
		Name: "posts", Dimension: 2, Metric: "cosine",
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestMemoryVectorService_Search(t *testing.T) {
	ctx := context.Background()
	svc := newTestVectorService(t)

	_ = svc.Insert(ctx, &core.VectorInsertRequest{
		Collection: "posts",
		IDs:        []string{"a", "b", "c"},
		Vectors:    [][]float64{{1, 0}, {0.9, 0.1}, {0, 1}},
		Metadata: []map[string]interface{}{
			{"author_id": "u1"}, {"author_id": "u2"}, {"author_id": "u2"},
		},
	})

	res, err := svc.Search(ctx, &core.VectorSearchRequest{
		Collection: "posts", Vector: []float64{1, 0}, TopK: 2, WithVectors: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Items[0].ID != "a" || res.Items[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", res.Items)
	}
	if len(res.Items[0].Vector) != 2 {
		t.Errorf("expected vectors in result")
	}
	if res.Items[1].Metadata["author_id"] != "u2" {
		t.Errorf("expected metadata in result, got %v", res.Items[1].Metadata)
	}

	filtered, _ := svc.Search(ctx, &core.VectorSearchRequest{
		Collection: "posts", Vector: []float64{1, 0}, TopK: 10,
		Filter: map[string]interface{}{"author_id": "u2"},
	})
	if len(filtered.Items) != 2 || filtered.Items[0].ID != "b" {
		t.Errorf("filter not applied: %+v", filtered.Items)
	}
}

func TestMemoryVectorService_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestVectorService(t)

	if _, err := svc.Search(ctx, &core.VectorSearchRequest{Collection: "posts", Vector: []float64{1, 0, 0}}); !core.IsInvalidInput(err) {
		t.Errorf("expected INVALID_INPUT on dimension mismatch, got %v", err)
	}
	if err := svc.Update(ctx, &core.VectorUpdateRequest{Collection: "missing", ID: "x", Vector: []float64{1, 0}}); !core.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND for missing collection, got %v", err)
	}
	res, err := svc.Search(ctx, &core.VectorSearchRequest{Collection: "missing", Vector: []float64{1, 0}})
	if err != nil || len(res.Items) != 0 {
		t.Errorf("missing collection should return empty result, got %v %v", res, err)
	}
}

func TestMemoryVectorService_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	svc := newTestVectorService(t)

	_ = svc.Update(ctx, &core.VectorUpdateRequest{Collection: "posts", ID: "p2", Vector: []float64{1, 1}, Metadata: map[string]interface{}{"content_type": "video"}})
	_ = svc.Update(ctx, &core.VectorUpdateRequest{Collection: "posts", ID: "p1", Vector: []float64{1, 0}, Metadata: map[string]interface{}{"content_type": "video"}})
	_ = svc.Update(ctx, &core.VectorUpdateRequest{Collection: "posts", ID: "p1", Vector: []float64{0, 1}})

	items, err := svc.Query(ctx, &core.VectorQueryRequest{
		Collection: "posts",
		Filter:     map[string]interface{}{"content_type": "video"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != "p1" {
		t.Fatalf("Query() = %+v", items)
	}
	if items[0].Vector[1] != 1 {
		t.Errorf("upsert should replace vector, got %v", items[0].Vector)
	}

	_ = svc.Delete(ctx, &core.VectorDeleteRequest{Collection: "posts", IDs: []string{"p1"}})
	items, _ = svc.Query(ctx, &core.VectorQueryRequest{Collection: "posts", Limit: 10})
	if len(items) != 1 || items[0].ID != "p2" {
		t.Errorf("after delete Query() = %+v", items)
	}
}
