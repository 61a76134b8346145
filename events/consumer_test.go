package events

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
)

type recordingHandler struct {
	updateErr error
	updates   [][]string
	events    []cache.Event
}

func (h *recordingHandler) UpdateUserPreferences(_ context.Context, userID string, postIDs []string, types []string, _ map[string]float64) (*core.UserPreferenceProfile, error) {
	h.updates = append(h.updates, append([]string{userID}, postIDs...))
	if h.updateErr != nil {
		return nil, h.updateErr
	}
	return &core.UserPreferenceProfile{UserID: userID}, nil
}

func (h *recordingHandler) InvalidateByEvent(_ context.Context, ev cache.Event) (int, error) {
	h.events = append(h.events, ev)
	return 1, nil
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		updateErr   error
		wantErr     bool
		wantUpdates int
		wantActions []string
	}{
		{
			name:        "interaction",
			msg:         `{"kind":"interaction","user_id":"u1","post_ids":["p1","p2"],"interaction_types":["save","like","save"]}`,
			wantUpdates: 1,
			wantActions: []string{"save", "like"},
		},
		{
			name:        "interaction without signal still invalidates",
			msg:         `{"kind":"interaction","user_id":"u1","post_ids":["p1"],"interaction_types":["like"]}`,
			updateErr:   core.NewDomainError(core.ModuleProfile, core.ErrorCodeNoValidSignal, "no vectors"),
			wantUpdates: 1,
			wantActions: []string{"like"},
		},
		{
			name:        "interaction upstream failure",
			msg:         `{"kind":"interaction","user_id":"u1","post_ids":["p1"],"interaction_types":["like"]}`,
			updateErr:   errors.New("boom"),
			wantErr:     true,
			wantUpdates: 1,
			wantActions: []string{"like"},
		},
		{
			name:    "interaction missing user",
			msg:     `{"kind":"interaction","post_ids":["p1"]}`,
			wantErr: true,
		},
		{
			name:        "invalidation",
			msg:         `{"kind":"invalidation","type":"post_update","content_id":"p1"}`,
			wantActions: []string{"post_update"},
		},
		{
			name:    "invalidation without type",
			msg:     `{"kind":"invalidation","content_id":"p1"}`,
			wantErr: true,
		},
		{name: "unknown kind", msg: `{"kind":"ping"}`, wantErr: true},
		{name: "malformed", msg: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{updateErr: tt.updateErr}
			err := Handle(context.Background(), h, []byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(h.updates) != tt.wantUpdates {
				t.Errorf("updates = %v, want %d", h.updates, tt.wantUpdates)
			}
			var actions []string
			for _, ev := range h.events {
				if ev.Action != "" {
					actions = append(actions, ev.Action)
				} else {
					actions = append(actions, ev.Type)
				}
			}
			if !reflect.DeepEqual(actions, tt.wantActions) {
				t.Errorf("actions = %v, want %v", actions, tt.wantActions)
			}
		})
	}
}

func TestHandle_InteractionEventCarriesUser(t *testing.T) {
	h := &recordingHandler{}
	msg := `{"kind":"interaction","user_id":"u7","post_ids":["p9"],"interaction_types":["comment"]}`
	if err := Handle(context.Background(), h, []byte(msg)); err != nil {
		t.Fatal(err)
	}
	ev := h.events[0]
	if ev.UserID != "u7" || ev.ContentID != "p9" || ev.Type != KindInteraction {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHandle_UnknownKindIsSentinel(t *testing.T) {
	err := Handle(context.Background(), &recordingHandler{}, []byte(`{"kind":"x"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestNewConsumer_Validation(t *testing.T) {
	if _, err := NewConsumer(Config{Topic: "t"}, &recordingHandler{}, nil); !core.IsInvalidInput(err) {
		t.Errorf("missing brokers: err = %v", err)
	}
	if _, err := NewConsumer(Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil, nil); !core.IsInvalidInput(err) {
		t.Errorf("missing handler: err = %v", err)
	}
}
