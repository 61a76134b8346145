package dsl

import (
	"testing"
	"time"

	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/utils"
)

func TestProgram_EvalEvent(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		event map[string]interface{}
		want  bool
	}{
		{
			name:  "action match",
			expr:  `event.action == "save"`,
			event: map[string]interface{}{"action": "save"},
			want:  true,
		},
		{
			name:  "action mismatch",
			expr:  `event.action == "save"`,
			event: map[string]interface{}{"action": "view"},
			want:  false,
		},
		{
			name:  "has guard",
			expr:  `has(event.content_type) && event.content_type == "video"`,
			event: map[string]interface{}{"action": "save"},
			want:  false,
		},
		{
			name:  "in list",
			expr:  `event.content_type in ["image", "video"]`,
			event: map[string]interface{}{"content_type": "image"},
			want:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := prg.Eval(map[string]interface{}{"event": tt.event})
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile(`event.action ==`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestProgram_NonBool(t *testing.T) {
	prg, err := Compile(`"x"`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := prg.Eval(nil); err == nil {
		t.Fatal("expected error for non-bool result")
	}
}

func TestEval_Candidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cand := core.NewCandidate(&core.ContentItem{
		ID:          "p1",
		AuthorID:    "a1",
		ContentType: core.ContentTypeVideo,
		Hashtags:    []string{"go", "music"},
		CreatedAt:   now.Add(-2 * time.Hour),
	})
	cand.PutLabel(utils.LabelRecallSource, utils.Label{Value: "recent", Source: "recall"})
	rctx := core.NewRecommendContext("req", "u1", now)

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `item.content_type == "video"`, want: true},
		{expr: `"music" in item.hashtags`, want: true},
		{expr: `label.recall_source == "recent"`, want: true},
		{expr: `item.created_at > now - duration("1h")`, want: false},
		{expr: `rctx.user_id == "u1"`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := NewEval(cand, rctx).Evaluate(tt.expr)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}
