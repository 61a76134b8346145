package filter

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/utils"
	"github.com/rushteam/discovery/store"
)

func cand(id, author string, private bool) *core.Candidate {
	return core.NewCandidate(&core.ContentItem{ID: id, AuthorID: author, IsPrivate: private, ContentType: core.ContentTypeText})
}

func candIDs(cands []*core.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID()
	}
	return out
}

func TestFilterNode_Visibility(t *testing.T) {
	rctx := core.NewRecommendContext("r", "viewer", time.Now())
	rctx.Relations = core.NewUserRelations(
		[]string{"blocked", "blocker"},
		[]string{"friend"},
		[]string{"seen-post"},
	)

	in := []*core.Candidate{
		cand("own", "viewer", false),
		cand("b1", "blocked", false),
		cand("b2", "blocker", false),
		cand("seen-post", "alice", false),
		cand("private-stranger", "stranger", true),
		cand("private-friend", "friend", true),
		cand("ok", "alice", false),
	}
	node := &FilterNode{Filters: DefaultFilters(nil, 0)}
	out, err := node.Process(context.Background(), rctx, in)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"private-friend", "ok"}
	if !reflect.DeepEqual(candIDs(out), want) {
		t.Fatalf("Process() = %v, want %v", candIDs(out), want)
	}

	lbl, ok := in[1].Labels[utils.LabelFiltered]
	if !ok || lbl.Source != "filter.user_block" {
		t.Errorf("filtered label = %+v", lbl)
	}
	if in[4].Labels[utils.LabelFiltered].Source != "filter.privacy" {
		t.Errorf("private item should be filtered by privacy filter, got %+v", in[4].Labels)
	}
}

func TestStoreAdapter_Relations(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	a := NewStoreAdapter(kv)

	if err := a.Block(ctx, "u1", "u2"); err != nil {
		t.Fatal(err)
	}
	_ = a.Block(ctx, "u3", "u1")
	_ = a.Follow(ctx, "u1", "u4")
	_ = a.MarkSeen(ctx, "u1", []string{"p1", "p2"})
	_ = a.MarkSeen(ctx, "u1", []string{"p2", "p3"})

	rel, err := a.LoadRelations(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !rel.IsBlocked("u2") || !rel.IsBlocked("u3") {
		t.Errorf("blocks must be bidirectional: %v", rel.BlockedIDs())
	}
	if !rel.Follows("u4") {
		t.Errorf("expected following u4")
	}
	if got := rel.SeenIDs(); !reflect.DeepEqual(got, []string{"p1", "p2", "p3"}) {
		t.Errorf("SeenIDs() = %v", got)
	}

	// 反向：u2 视角看到 u1 的拉黑
	rel2, _ := a.LoadRelations(ctx, "u2")
	if !rel2.IsBlocked("u1") {
		t.Errorf("u2 should see u1 in blocked_by")
	}

	_ = a.Unblock(ctx, "u1", "u2")
	rel, _ = a.LoadRelations(ctx, "u1")
	if rel.IsBlocked("u2") {
		t.Errorf("unblock did not remove u2")
	}
}

func TestStoreAdapter_SeenWindow(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	a := NewStoreAdapter(kv)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	_ = a.MarkSeen(ctx, "u1", []string{"old"})
	a.now = func() time.Time { return now }
	_ = a.MarkSeen(ctx, "u1", []string{"new"})

	rel, _ := a.LoadRelations(ctx, "u1")
	if got := rel.SeenIDs(); !reflect.DeepEqual(got, []string{"new"}) {
		t.Errorf("SeenIDs() = %v, want only records inside window", got)
	}
}

func TestExposedFilter_Bloom(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	bloom := NewMemoryBloomFilter(1000, 0.001)
	a := NewStoreAdapterWithBloomFilter(kv, bloom)
	a.SeenWindow = time.Hour

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_ = a.MarkSeen(ctx, "u1", []string{"p-old"})
	a.now = func() time.Time { return now }

	rctx := core.NewRecommendContext("r", "u1", now)
	rel, _ := a.LoadRelations(ctx, "u1")
	rctx.Relations = rel
	if rel.HasSeen("p-old") {
		t.Fatal("record outside seen window should not be in relations")
	}

	f := NewExposedFilter(a, "", 7)
	hit, err := f.ShouldFilter(ctx, rctx, cand("p-old", "x", false))
	if err != nil || !hit {
		t.Errorf("bloom filter should catch older exposure, hit=%v err=%v", hit, err)
	}
	hit, _ = f.ShouldFilter(ctx, rctx, cand("p-fresh", "x", false))
	if hit {
		t.Errorf("unseen item should pass")
	}

	noBloom := NewExposedFilter(a, "", 0)
	if hit, _ := noBloom.ShouldFilter(ctx, rctx, cand("p-old", "x", false)); hit {
		t.Errorf("bloom disabled: old exposure is outside window and should pass")
	}
}

func TestBlacklistAndExprFilter(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	_ = kv.Set(ctx, "content:blacklist", []byte(`["bad"]`))
	a := NewStoreAdapter(kv)

	expr, err := NewExprFilter(`item.content_type == "video"`)
	if err != nil {
		t.Fatal(err)
	}
	video := core.NewCandidate(&core.ContentItem{ID: "v", ContentType: core.ContentTypeVideo})

	out := Apply(ctx, core.NewRecommendContext("r", "u", time.Now()),
		[]*core.Candidate{cand("bad", "x", false), cand("good", "x", false), video},
		NewBlacklistFilter([]string{"also-bad"}, a, "content:blacklist"), expr,
	)
	if !reflect.DeepEqual(candIDs(out), []string{"good"}) {
		t.Errorf("Apply() = %v", candIDs(out))
	}
}
