package token

import "testing"

func TestCountEmpty(t *testing.T) {
	c := NewCounter()
	if got := c.Count(""); got != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestCountDeterministic(t *testing.T) {
	c := NewCounter()
	text := "The quick brown fox jumps over the lazy dog."
	first := c.Count(text)
	for i := 0; i < 5; i++ {
		if got := c.Count(text); got != first {
			t.Fatalf("count changed between calls: %d vs %d", first, got)
		}
	}
	if first <= 0 {
		t.Errorf("expected positive count, got %d", first)
	}
}

func TestCountNeverNegative(t *testing.T) {
	c := NewCounter()
	for _, text := range []string{"a", "  ", "\n\n\n", "日本語テキスト"} {
		if got := c.Count(text); got < 0 {
			t.Errorf("Count(%q) = %d, want non-negative", text, got)
		}
	}
}

func TestFallbackCount(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{1, 1},
		{4, 1},
		{5, 2},
		{8, 2},
		{200000, 50000},
	}
	for _, tc := range cases {
		text := make([]byte, tc.length)
		for i := range text {
			text[i] = 'x'
		}
		if got := fallbackCount(string(text)); got != tc.want {
			t.Errorf("fallbackCount(len=%d) = %d, want %d", tc.length, got, tc.want)
		}
	}
}
