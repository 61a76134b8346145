package recall

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/filter"
	"github.com/rushteam/discovery/pkg/utils"
	"github.com/rushteam/discovery/store"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	name  string
	ids   []string
	err   error
	delay time.Duration
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*core.Candidate, len(s.ids))
	for i, id := range s.ids {
		out[i] = core.NewCandidate(&core.ContentItem{ID: id, AuthorID: "a", CreatedAt: testNow})
	}
	return out, nil
}

func ids(cands []*core.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID()
	}
	return out
}

func TestFanout_Merge(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		want     []string
	}{
		{name: "first dedups in source order", strategy: MergeFirst, want: []string{"1", "2", "3"}},
		{name: "union keeps duplicates", strategy: MergeUnion, want: []string{"1", "2", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Fanout{
				Sources: []Source{
					&staticSource{name: "a", ids: []string{"1", "2"}},
					&staticSource{name: "b", ids: []string{"2", "3"}},
				},
				MergeStrategy: tt.strategy,
			}
			out, err := f.Process(context.Background(), core.NewRecommendContext("r", "u", testNow), nil)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(ids(out), tt.want) {
				t.Errorf("Process() = %v, want %v", ids(out), tt.want)
			}
		})
	}
}

func TestFanout_DedupMergesLabels(t *testing.T) {
	f := &Fanout{Sources: []Source{
		&staticSource{name: "a", ids: []string{"1"}},
		&staticSource{name: "b", ids: []string{"1"}},
	}}
	out, _ := f.Process(context.Background(), core.NewRecommendContext("r", "u", testNow), nil)
	if len(out) != 1 {
		t.Fatalf("expected single candidate, got %d", len(out))
	}
	lbl := out[0].Labels[utils.LabelRecallSource]
	if lbl.Value != "a|b" {
		t.Errorf("recall source label = %q, want a|b", lbl.Value)
	}
}

func TestFanout_PartialFailure(t *testing.T) {
	var failed []string
	f := &Fanout{
		Sources: []Source{
			&staticSource{name: "bad", err: errors.New("index down")},
			&staticSource{name: "slow", ids: []string{"x"}, delay: time.Second},
			&staticSource{name: "good", ids: []string{"1"}},
		},
		Timeout:       20 * time.Millisecond,
		OnSourceError: func(src string, _ error) { failed = append(failed, src) },
		MaxConcurrent: 1,
	}
	out, err := f.Process(context.Background(), core.NewRecommendContext("r", "u", testNow), nil)
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if !reflect.DeepEqual(ids(out), []string{"1"}) {
		t.Errorf("Process() = %v", ids(out))
	}
	if len(failed) != 2 {
		t.Errorf("OnSourceError called for %v, want bad and slow", failed)
	}
}

func TestFanout_AllFailed(t *testing.T) {
	f := &Fanout{Sources: []Source{
		&staticSource{name: "a", err: errors.New("x")},
		&staticSource{name: "b", err: errors.New("y")},
	}}
	_, err := f.Process(context.Background(), core.NewRecommendContext("r", "u", testNow), nil)
	if !core.IsUpstreamUnavailable(err) {
		t.Fatalf("expected UPSTREAM_UNAVAILABLE, got %v", err)
	}
}

func TestFanout_SkippedSources(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    []string
		wantErr bool
	}{
		{
			name:    "skipped does not mask failure",
			sources: []Source{&staticSource{name: "ann", err: ErrSkipped}, &staticSource{name: "recent", err: errors.New("db down")}},
			wantErr: true,
		},
		{
			name:    "all skipped",
			sources: []Source{&staticSource{name: "ann", err: ErrSkipped}, &staticSource{name: "hot", err: ErrSkipped}},
			want:    []string{},
		},
		{
			name:    "skipped with success",
			sources: []Source{&staticSource{name: "ann", err: ErrSkipped}, &staticSource{name: "recent", ids: []string{"1"}}},
			want:    []string{"1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reported []string
			f := &Fanout{Sources: tt.sources, OnSourceError: func(src string, _ error) { reported = append(reported, src) }}
			out, err := f.Process(context.Background(), core.NewRecommendContext("r", "u", testNow), nil)
			if tt.wantErr {
				if !core.IsUpstreamUnavailable(err) {
					t.Fatalf("error = %v, want UPSTREAM_UNAVAILABLE", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Process() = %v, want %v", got, tt.want)
			}
			for _, src := range reported {
				if src == "ann" || src == "hot" {
					t.Errorf("skipped source %s reported as error", src)
				}
			}
		})
	}
}

func TestHot_Recall(t *testing.T) {
	ctx := context.Background()
	cs := seedContent()
	kv := store.NewMemoryStore()
	hot := &Hot{KV: kv, Content: cs, Window: 7 * 24 * time.Hour}
	rctx := core.NewRecommendContext("r", "viewer", testNow)

	if _, err := hot.Recall(ctx, rctx); !errors.Is(err, ErrSkipped) {
		t.Fatalf("missing list error = %v, want ErrSkipped", err)
	}

	if err := PublishHot(ctx, kv, "", []string{"p2", "p4", "missing", "p1"}, 0); err != nil {
		t.Fatal(err)
	}
	out, err := hot.Recall(ctx, rctx)
	if err != nil {
		t.Fatal(err)
	}
	// p4 超出时间窗口，missing 不存在
	if !reflect.DeepEqual(ids(out), []string{"p2", "p1"}) {
		t.Errorf("Recall() = %v, want [p2 p1]", ids(out))
	}

	rctx.Params[ParamCandidateLimit] = 1
	out, _ = hot.Recall(ctx, rctx)
	if !reflect.DeepEqual(ids(out), []string{"p2"}) {
		t.Errorf("limited Recall() = %v, want [p2]", ids(out))
	}
}

func seedContent() *store.MemoryContentStore {
	cs := store.NewMemoryContentStore()
	cs.Put(
		&core.ContentItem{ID: "p1", AuthorID: "alice", CreatedAt: testNow.Add(-1 * time.Hour), Embedding: []float64{1, 0}},
		&core.ContentItem{ID: "p2", AuthorID: "bob", CreatedAt: testNow.Add(-2 * time.Hour), Embedding: []float64{0, 1}},
		&core.ContentItem{ID: "p3", AuthorID: "viewer", CreatedAt: testNow.Add(-3 * time.Hour), Embedding: []float64{1, 0}},
		&core.ContentItem{ID: "p4", AuthorID: "alice", CreatedAt: testNow.Add(-30 * 24 * time.Hour), Embedding: []float64{1, 0}},
		&core.ContentItem{ID: "p5", AuthorID: "carol", CreatedAt: testNow.Add(-4 * time.Hour), IsPrivate: true},
	)
	return cs
}

func TestRecent_Window(t *testing.T) {
	r := &Recent{Store: seedContent(), Window: 7 * 24 * time.Hour, Limit: 10}
	out, err := r.Recall(context.Background(), core.NewRecommendContext("r", "viewer", testNow))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"p1", "p2"}; !reflect.DeepEqual(ids(out), want) {
		t.Errorf("Recall() = %v, want %v", ids(out), want)
	}
}

func TestANN_ColdStartAndSearch(t *testing.T) {
	ctx := context.Background()
	cs := seedContent()
	vs := store.NewMemoryVectorService()
	_ = vs.CreateCollection(ctx, &core.VectorCreateCollectionRequest{Name: "posts", Dimension: 2, Metric: "cosine"})
	_ = vs.Insert(ctx, &core.VectorInsertRequest{
		Collection: "posts",
		IDs:        []string{"p1", "p2", "p4"},
		Vectors:    [][]float64{{1, 0}, {0, 1}, {1, 0}},
	})
	ann := &ANN{Vector: vs, Content: cs, Collection: "posts", Metric: "cosine", TopK: 2, Window: 7 * 24 * time.Hour}

	rctx := core.NewRecommendContext("r", "viewer", testNow)
	out, err := ann.Recall(ctx, rctx)
	if !errors.Is(err, ErrSkipped) || len(out) != 0 {
		t.Fatalf("cold start should be skipped, got %v, %v", ids(out), err)
	}

	rctx.Profile = core.NewUserPreferenceProfile("viewer", []float64{1, 0})
	out, err = ann.Recall(ctx, rctx)
	if err != nil {
		t.Fatal(err)
	}
	// p4 命中但超出时间窗口
	if !reflect.DeepEqual(ids(out), []string{"p1"}) {
		t.Errorf("Recall() = %v, want [p1]", ids(out))
	}
	if out[0].Labels[LabelANNScore].Value != "1.0000" {
		t.Errorf("ann score label = %+v", out[0].Labels[LabelANNScore])
	}
}

type failingLoader struct{}

func (failingLoader) LoadRelations(context.Context, string) (*core.UserRelations, error) {
	return nil, errors.New("redis down")
}

func newRetriever(cs core.ContentStore, kv core.Store) *Retriever {
	adapter := filter.NewStoreAdapter(kv)
	return &Retriever{
		Fanout: &Fanout{Sources: []Source{
			&Recent{Store: cs, Window: 7 * 24 * time.Hour},
		}},
		Relations: adapter,
		Filters:   filter.DefaultFilters(adapter, 0),
		Fallback:  &Recent{Store: cs},
	}
}

func TestRetriever_Retrieve(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	adapter := filter.NewStoreAdapter(kv)
	_ = adapter.Block(ctx, "bob", "viewer")
	_ = adapter.Follow(ctx, "viewer", "carol")

	r := newRetriever(seedContent(), kv)
	rctx := core.NewRecommendContext("r", "viewer", testNow)
	out, err := r.Retrieve(ctx, rctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	// bob 拉黑了 viewer；carol 的私密内容因关注可见；自己的 p3 被排除
	if want := []string{"p1", "p5"}; !reflect.DeepEqual(ids(out), want) {
		t.Errorf("Retrieve() = %v, want %v", ids(out), want)
	}
	if rctx.Params[ParamCandidateLimit] != 15 {
		t.Errorf("candidate limit = %v, want limit*3", rctx.Params[ParamCandidateLimit])
	}

	for _, tt := range []struct{ budget, want int }{{40, 40}, {2, 15}} {
		rctx := core.NewRecommendContext("r", "viewer", testNow)
		rctx.Params[ParamCandidateBudget] = tt.budget
		if _, err := r.Retrieve(ctx, rctx, 5); err != nil {
			t.Fatal(err)
		}
		if rctx.Params[ParamCandidateLimit] != tt.want {
			t.Errorf("budget %d: candidate limit = %v, want %d", tt.budget, rctx.Params[ParamCandidateLimit], tt.want)
		}
	}

	if _, err := r.Retrieve(ctx, rctx, 0); !core.IsInvalidInput(err) {
		t.Errorf("expected INVALID_INPUT for zero limit, got %v", err)
	}
}

func TestRetriever_Fallback(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	r := newRetriever(seedContent(), kv)
	out, err := r.RetrieveFallback(context.Background(), core.NewRecommendContext("r", "viewer", testNow), 10)
	if err != nil {
		t.Fatal(err)
	}
	// 降级路径不限时间窗口
	if want := []string{"p1", "p2", "p4"}; !reflect.DeepEqual(ids(out), want) {
		t.Errorf("RetrieveFallback() = %v, want %v", ids(out), want)
	}
	for _, c := range out {
		if c.Scored {
			t.Errorf("fallback candidates must not be scored")
		}
	}
}

func TestRetriever_Degrade(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	r := newRetriever(seedContent(), kv)
	r.Relations = failingLoader{}

	rctx := core.NewRecommendContext("r", "viewer", testNow)
	if _, err := r.Retrieve(context.Background(), rctx, 5); !core.IsUpstreamUnavailable(err) {
		t.Errorf("expected UPSTREAM_UNAVAILABLE, got %v", err)
	}
	items := r.GetCandidates(context.Background(), core.NewRecommendContext("r", "viewer", testNow), 5)
	if items == nil || len(items) != 0 {
		t.Errorf("GetCandidates() = %v, want empty non-nil slice", items)
	}
}
