package relevance

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		minLen int
		want   []string
	}{
		{"filters short", "How do JavaScript functions work?", 3, []string{"how", "javascript", "functions", "work"}},
		{"keeps duplicates", "ab abc abc", 3, []string{"abc", "abc"}},
		{"unicode runes", "Сложные функции и я", 3, []string{"сложные", "функции"}},
		{"underscore is word", "snake_case x", 1, []string{"snake_case", "x"}},
		{"empty", "", 1, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.text, tt.minLen)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWordsAndQueryLength(t *testing.T) {
	w := Words("Functions in  JavaScript")
	if len(w) != 3 {
		t.Fatalf("expected 3 words, got %v", w)
	}
	if _, ok := w["javascript"]; !ok {
		t.Error("expected lowercased word")
	}
	if QueryLength("  a b  c ") != 3 {
		t.Errorf("expected 3, got %d", QueryLength("  a b  c "))
	}
	if len(TermSet("foo foo bar", 3)) != 2 {
		t.Error("expected distinct terms")
	}
}
