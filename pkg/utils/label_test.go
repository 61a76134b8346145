package utils

import "testing"

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{
			name:     "empty existing takes incoming",
			existing: Label{},
			incoming: Label{Value: "ann", Source: "recall"},
			want:     Label{Value: "ann", Source: "recall"},
		},
		{
			name:     "empty incoming keeps existing",
			existing: Label{Value: "recent", Source: "recall"},
			incoming: Label{},
			want:     Label{Value: "recent", Source: "recall"},
		},
		{
			name:     "both present accumulate",
			existing: Label{Value: "recent", Source: "recall"},
			incoming: Label{Value: "ann", Source: "recall"},
			want:     Label{Value: "recent|ann", Source: "recall,recall"},
		},
		{
			name:     "missing source on one side",
			existing: Label{Value: "a"},
			incoming: Label{Value: "b", Source: "rank"},
			want:     Label{Value: "a|b", Source: "rank"},
		},
		{
			name:     "repeated value is not appended",
			existing: Label{Value: "recent|ann", Source: "recall,recall"},
			incoming: Label{Value: "ann", Source: "recall"},
			want:     Label{Value: "recent|ann", Source: "recall,recall"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
