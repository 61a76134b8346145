package vecmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rushteam/discovery/core"
)

const eps = 1e-9

func randomVector(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}

func TestCosineSimilarity_Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		a := randomVector(rng, 64)
		b := randomVector(rng, 64)
		if ab, ba := CosineSimilarity(a, b), CosineSimilarity(b, a); ab != ba {
			t.Fatalf("cosine not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestCosineSimilarity_Self(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		v := randomVector(rng, 1024)
		if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-9 {
			t.Fatalf("self similarity = %v, want 1", got)
		}
	}
}

func TestCosineSimilarity_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "dimension mismatch", a: []float64{1, 2, 3}, b: []float64{1, 2}, want: 0},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-2, 0}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > eps {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightedCentroid(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float64
		weights []float64
		want    []float64
		wantErr bool
	}{
		{
			name:    "uniform weights",
			vectors: [][]float64{{0, 0}, {2, 4}},
			want:    []float64{1, 2},
		},
		{
			name:    "explicit weights",
			vectors: [][]float64{{0, 0}, {3, 3}},
			weights: []float64{2, 1},
			want:    []float64{1, 1},
		},
		{name: "empty input", vectors: nil, wantErr: true},
		{name: "dimension mismatch", vectors: [][]float64{{1, 2}, {1}}, wantErr: true},
		{name: "weights length mismatch", vectors: [][]float64{{1}}, weights: []float64{1, 2}, wantErr: true},
		{name: "zero weights", vectors: [][]float64{{1}}, weights: []float64{0}, wantErr: true},
		{name: "negative weight", vectors: [][]float64{{1}, {2}}, weights: []float64{1, -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WeightedCentroid(tt.vectors, tt.weights)
			if tt.wantErr {
				if !core.IsInvalidInput(err) {
					t.Fatalf("expected INVALID_INPUT, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > eps {
					t.Errorf("centroid[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInterpolate_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		a := randomVector(rng, 32)
		b := randomVector(rng, 32)
		rate := rng.Float64()
		got, err := Interpolate(a, b, rate)
		if err != nil {
			t.Fatal(err)
		}
		for j := range got {
			lo, hi := math.Min(a[j], b[j]), math.Max(a[j], b[j])
			if got[j] < lo-eps || got[j] > hi+eps {
				t.Fatalf("component %d = %v outside [%v, %v]", j, got[j], lo, hi)
			}
		}
	}
}

func TestInterpolate_ClampsRate(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{1, 1}

	got, _ := Interpolate(a, b, 5)
	if got[0] != 1 || got[1] != 1 {
		t.Errorf("rate > 1 should clamp to target, got %v", got)
	}
	got, _ = Interpolate(a, b, -1)
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("rate < 0 should clamp to current, got %v", got)
	}
	if _, err := Interpolate(a, []float64{1}, 0.5); !core.IsInvalidInput(err) {
		t.Errorf("expected INVALID_INPUT on mismatch, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	if math.Abs(v[0]-0.6) > eps || math.Abs(v[1]-0.8) > eps {
		t.Errorf("Normalize() = %v", v)
	}
	zero := Normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}
