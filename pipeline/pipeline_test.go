package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rushteam/discovery/core"
)

type recordingHook struct {
	events []string
}

func (h *recordingHook) BeforeNode(ctx context.Context, rctx *core.RecommendContext, node Node, cands []*core.Candidate) ([]*core.Candidate, error) {
	h.events = append(h.events, "before:"+node.Name())
	return cands, nil
}

func (h *recordingHook) AfterNode(ctx context.Context, rctx *core.RecommendContext, node Node, cands []*core.Candidate, err error) ([]*core.Candidate, error) {
	h.events = append(h.events, "after:"+node.Name())
	return cands, err
}

func appendNode(name string, id string) Node {
	return NodeFunc{
		NodeName: name,
		NodeKind: KindRecall,
		Fn: func(ctx context.Context, rctx *core.RecommendContext, cands []*core.Candidate) ([]*core.Candidate, error) {
			return append(cands, core.NewCandidate(&core.ContentItem{ID: id})), nil
		},
	}
}

func TestPipeline_RunOrder(t *testing.T) {
	hook := &recordingHook{}
	p := &Pipeline{
		Nodes: []Node{appendNode("a", "1"), appendNode("b", "2")},
		Hooks: []Hook{hook},
	}
	out, err := p.Run(context.Background(), core.NewRecommendContext("r", "u", time.Now()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].ID() != "1" || out[1].ID() != "2" {
		t.Fatalf("unexpected output: %v", out)
	}
	want := []string{"before:a", "after:a", "before:b", "after:b"}
	if !reflect.DeepEqual(hook.events, want) {
		t.Errorf("hook events = %v, want %v", hook.events, want)
	}
}

func TestPipeline_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	p := &Pipeline{Nodes: []Node{
		NodeFunc{NodeName: "fail", NodeKind: KindScore, Fn: func(context.Context, *core.RecommendContext, []*core.Candidate) ([]*core.Candidate, error) {
			return nil, boom
		}},
		NodeFunc{NodeName: "never", NodeKind: KindRank, Fn: func(_ context.Context, _ *core.RecommendContext, c []*core.Candidate) ([]*core.Candidate, error) {
			called = true
			return c, nil
		}},
	}}

	_, err := p.Run(context.Background(), nil, nil)
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Node != "fail" || nodeErr.Kind != KindScore {
		t.Fatalf("expected NodeError for fail node, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("NodeError should unwrap to cause")
	}
	if called {
		t.Error("nodes after a failure must not run")
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{Nodes: []Node{appendNode("a", "1")}}
	if _, err := p.Run(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
