package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/store"
)

func TestHTTPProvider_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var in embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if in.Model != "text-embed" || len(in.Input) != 2 {
			t.Errorf("unexpected request: %+v", in)
		}
		// 故意倒序返回，依赖 index 对齐
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.3,0.4],"index":1},{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embed", Dimension: 2}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{0.1, 0.2}, {0.3, 0.4}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("EmbedBatch() = %v, want %v", out, want)
	}
}

func TestHTTPProvider_Retry(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "5xx is retried", status: http.StatusBadGateway, wantCalls: 3},
		{name: "4xx is not retried", status: http.StatusBadRequest, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p, _ := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, MaxRetries: 2, Backoff: time.Millisecond}, srv.Client())
			_, err := p.Embed(context.Background(), "hello")
			if !core.IsUpstreamUnavailable(err) {
				t.Errorf("expected UPSTREAM_UNAVAILABLE, got %v", err)
			}
			var he *HTTPError
			if !errors.As(err, &he) || he.StatusCode != tt.status {
				t.Errorf("expected HTTPError %d in chain, got %v", tt.status, err)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHTTPProvider_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}]}`))
	}))
	defer srv.Close()

	p, _ := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Dimension: 2}, srv.Client())
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Error("expected dimension error")
	}
	if _, err := p.Embed(context.Background(), "  "); !core.IsInvalidInput(err) {
		t.Errorf("expected INVALID_INPUT for blank content, got %v", err)
	}
}

type countingProvider struct {
	calls int
	vec   []float64
	err   error
}

func (p *countingProvider) Embed(_ context.Context, _ string) ([]float64, error) {
	p.calls++
	return p.vec, p.err
}

func TestCachedProvider(t *testing.T) {
	next := &countingProvider{vec: []float64{1, 2}}
	p := NewCachedProvider(next, 0)
	for i := 0; i < 3; i++ {
		if _, err := p.Embed(context.Background(), "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls != 1 || p.Len() != 1 {
		t.Errorf("calls = %d, len = %d, want one upstream call", next.calls, p.Len())
	}

	failing := NewCachedProvider(&countingProvider{err: errors.New("down")}, time.Minute)
	if _, err := failing.Embed(context.Background(), "x"); err == nil || failing.Len() != 0 {
		t.Errorf("errors must not be cached")
	}
}

func TestItemResolver_Chain(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	cs := store.NewMemoryContentStore()
	cs.Put(
		&core.ContentItem{ID: "stored", Embedding: []float64{1, 0}},
		&core.ContentItem{ID: "text", Text: "hello", ContentType: core.ContentTypeImage},
		&core.ContentItem{ID: "empty"},
		&core.ContentItem{ID: "cached"},
	)
	_ = kv.Set(ctx, EmbeddingKey("cached"), []byte(`[0,1]`))

	vs := store.NewMemoryVectorService()
	_ = vs.CreateCollection(ctx, &core.VectorCreateCollectionRequest{Name: "posts", Dimension: 2})
	provider := &countingProvider{vec: []float64{0.6, 0.8}}

	r := NewItemResolver(kv, cs, provider)
	r.Vector = vs
	r.Collection = "posts"

	got, err := r.ResolveMany(ctx, []string{"cached", "missing", "empty", "text", "stored"})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, res := range got {
		ids = append(ids, res.Item.ID)
	}
	if want := []string{"cached", "text", "stored"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ResolveMany() ids = %v, want %v", ids, want)
	}
	if !reflect.DeepEqual(got[0].Vector, []float64{0, 1}) {
		t.Errorf("cached vector = %v", got[0].Vector)
	}

	// provider 结果回写 KV 与向量索引
	if _, err := kv.Get(ctx, EmbeddingKey("text")); err != nil {
		t.Errorf("computed embedding not persisted: %v", err)
	}
	hits, _ := vs.Query(ctx, &core.VectorQueryRequest{Collection: "posts", Filter: map[string]interface{}{"content_type": "image"}})
	if len(hits) != 1 || hits[0].ID != "text" {
		t.Errorf("vector index = %+v", hits)
	}

	if _, err := r.Resolve(ctx, "text"); err != nil || provider.calls != 1 {
		t.Errorf("second resolve should hit cache, calls = %d, err = %v", provider.calls, err)
	}
	_, exp, ok := r.Local.GetWithExpiration("text")
	if !ok || exp.IsZero() || exp.After(time.Now().Add(LocalTTL)) {
		t.Errorf("local entry expiration = %v (present %v), want within %v", exp, ok, LocalTTL)
	}
	if _, err := r.Resolve(ctx, "empty"); !core.IsNoValidSignal(err) {
		t.Errorf("expected NO_VALID_SIGNAL, got %v", err)
	}
	if _, err := r.Resolve(ctx, "missing"); !core.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
