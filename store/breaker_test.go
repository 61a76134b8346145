package store

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/discovery/core"
)

type failingContentStore struct {
	core.ContentStore
	err   error
	calls int
}

func (f *failingContentStore) QueryVisibleItems(ctx context.Context, viewerID string, filter core.ItemFilter) ([]*core.ContentItem, error) {
	f.calls++
	return nil, f.err
}

func (f *failingContentStore) GetItem(ctx context.Context, id string) (*core.ContentItem, error) {
	f.calls++
	return nil, core.ErrItemNotFound
}

func TestBreakerContentStore_OpensAfterFailures(t *testing.T) {
	inner := &failingContentStore{err: errors.New("connection refused")}
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	b := NewBreakerContentStore(inner, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.QueryVisibleItems(ctx, "u", core.ItemFilter{})
		if !core.IsUpstreamUnavailable(err) {
			t.Fatalf("call %d: expected UPSTREAM_UNAVAILABLE, got %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	_, err := b.QueryVisibleItems(ctx, "u", core.ItemFilter{})
	if !core.IsUpstreamUnavailable(err) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open-state rejection, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("open circuit should not reach inner store, calls = %d", inner.calls)
	}
}

func TestBreakerContentStore_NotFoundIsNotFailure(t *testing.T) {
	inner := &failingContentStore{}
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	b := NewBreakerContentStore(inner, cfg)

	for i := 0; i < 3; i++ {
		if _, err := b.GetItem(context.Background(), "x"); !core.IsNotFound(err) {
			t.Fatalf("expected NOT_FOUND passthrough, got %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreakerVectorService_Passthrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryVectorService()
	b := NewBreakerVectorService(inner, DefaultBreakerConfig(""))

	if err := b.CreateCollection(ctx, &core.VectorCreateCollectionRequest{Name: "posts", Dimension: 2}); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(ctx, &core.VectorUpdateRequest{Collection: "posts", ID: "a", Vector: []float64{1, 0}}); err != nil {
		t.Fatal(err)
	}
	res, err := b.Search(ctx, &core.VectorSearchRequest{Collection: "posts", Vector: []float64{1, 0}, TopK: 1})
	if err != nil || len(res.Items) != 1 || res.Items[0].ID != "a" {
		t.Fatalf("Search() = %+v, %v", res, err)
	}
	if _, err := b.Search(ctx, &core.VectorSearchRequest{Collection: "posts", Vector: []float64{1}}); !core.IsInvalidInput(err) {
		t.Errorf("INVALID_INPUT should pass through unchanged, got %v", err)
	}
}
