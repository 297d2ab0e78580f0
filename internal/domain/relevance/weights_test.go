package relevance

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/treerag/internal/domain"
)

func TestNewWeights(t *testing.T) {
	tests := []struct {
		name    string
		s, st   float64
		c       float64
		wantErr bool
	}{
		{"default", 0.7, 0.2, 0.1, false},
		{"all semantic", 1, 0, 0, false},
		{"within tolerance", 0.5, 0.3, 0.2 + 1e-7, false},
		{"sum above one", 0.5, 0.3, 0.3, true},
		{"sum below one", 0.3, 0.3, 0.3, true},
		{"negative", 1.2, -0.1, -0.1, true},
		{"nan", math.NaN(), 0.5, 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWeights(tt.s, tt.st, tt.c)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidWeights) {
					t.Fatalf("expected ErrInvalidWeights, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w.Semantic() != tt.s {
				t.Errorf("semantic = %v, want %v", w.Semantic(), tt.s)
			}
		})
	}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	if w.Semantic() != 0.7 || w.Structural() != 0.2 || w.Contextual() != 0.1 {
		t.Errorf("unexpected defaults: %+v", w)
	}
	if w.IsZero() {
		t.Error("defaults must not be zero")
	}
}

func TestWeights_CombineClamps(t *testing.T) {
	w := DefaultWeights()
	got := w.Combine(Components{Semantic: 1, Structural: 1, Contextual: 1})
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("expected 1, got %v", got)
	}
	if w.Combine(Components{}) != 0 {
		t.Error("expected 0 for zero components")
	}
	if Clamp01(2) != 1 || Clamp01(-1) != 0 || Clamp01(math.NaN()) != 0 {
		t.Error("Clamp01 out of range")
	}
}
