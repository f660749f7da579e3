package budget

import (
	"strings"
	"testing"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_FitParts_AllFit(t *testing.T) {
	t.Parallel()
	parts := []string{"aaaa", "bbbb", "cccc"}
	// Each part costs 1 overhead + 1 estimated = 2 tokens; three parts = 6.
	got := FitParts(parts, 6)
	if len(got) != 3 {
		t.Errorf("want all 3 parts kept, got %d", len(got))
	}
}

func Test_FitParts_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	parts := []string{
		strings.Repeat("a", 40), // 1 + 10 = 11 tokens
		strings.Repeat("b", 40), // cumulative 22
		strings.Repeat("c", 40), // cumulative 33
	}
	got := FitParts(parts, 25)
	if len(got) != 2 {
		t.Fatalf("want 2 parts within budget, got %d", len(got))
	}
	// The tail of the ranking is what gets dropped, never the head.
	if got[0][0] != 'a' || got[1][0] != 'b' {
		t.Errorf("wrong parts survived: %q", got)
	}
}

func Test_FitParts_BudgetTooSmallForAny(t *testing.T) {
	t.Parallel()
	got := FitParts([]string{strings.Repeat("a", 400)}, 10)
	if len(got) != 0 {
		t.Errorf("want 0 parts, got %d", len(got))
	}
}

func Test_FitParts_ZeroBudgetUsesDefault(t *testing.T) {
	t.Parallel()
	parts := []string{"short"}
	got := FitParts(parts, 0)
	if len(got) != 1 {
		t.Errorf("want 1 part under the default budget, got %d", len(got))
	}
}

func Test_FitParts_Empty(t *testing.T) {
	t.Parallel()
	if got := FitParts(nil, 100); len(got) != 0 {
		t.Errorf("want no parts, got %d", len(got))
	}
}
