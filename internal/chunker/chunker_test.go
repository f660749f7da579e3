package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func Test_New_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -10, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.size, tc.overlap); err == nil {
				t.Errorf("New(%d, %d) accepted invalid config", tc.size, tc.overlap)
			}
		})
	}
}

func Test_Split_EmptyInputYieldsNil(t *testing.T) {
	t.Parallel()
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := s.Split(input); got != nil {
			t.Errorf("Split(%q) = %v, want nil", input, got)
		}
	}
}

func Test_Split_ShortInputIsSingleChunk(t *testing.T) {
	t.Parallel()
	s, err := New(100, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.Split("a short document")
	if len(got) != 1 || got[0] != "a short document" {
		t.Errorf("Split = %v, want the input as a single chunk", got)
	}
}

func Test_Split_RespectsSizeBound(t *testing.T) {
	t.Parallel()
	s, err := New(50, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d has %d chars, exceeds size 50: %q", i, len(c), c)
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func Test_Split_PrefersParagraphBoundaries(t *testing.T) {
	t.Parallel()
	s, err := New(60, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := "first paragraph with some words here.\n\nsecond paragraph with different words."
	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks split at the paragraph break, got %d: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "first paragraph") {
		t.Errorf("chunk 0 = %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "second paragraph") {
		t.Errorf("chunk 1 = %q", chunks[1])
	}
}

func Test_Split_HardWindowsShareOverlap(t *testing.T) {
	t.Parallel()
	s, err := New(10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// No separators at all — forces the character-window fallback.
	text := strings.Repeat("x", 9) + strings.Repeat("y", 9) + strings.Repeat("z", 9)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if len(prev) < 4 {
			continue
		}
		if !strings.HasPrefix(cur, prev[len(prev)-4:]) {
			t.Errorf("chunk %d does not start with the previous chunk's 4-char tail: %q then %q", i, prev, cur)
		}
	}
}

func Test_Split_HardWindowsKeepMultiByteRunesIntact(t *testing.T) {
	t.Parallel()
	s, err := New(10, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Separator-free CJK prose: every rune is 3 bytes, so any byte-offset
	// slicing would cut mid-rune.
	text := strings.Repeat("知識図構造化検索実装例", 4)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Errorf("chunk %d has %d runes, want at most 10", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prevRunes := []rune(chunks[i-1])
		if len(prevRunes) < 4 {
			continue
		}
		if !strings.HasPrefix(chunks[i], string(prevRunes[len(prevRunes)-4:])) {
			t.Errorf("chunk %d does not start with the previous chunk's 4-rune tail: %q then %q", i, chunks[i-1], chunks[i])
		}
	}
}

func Test_Split_Deterministic(t *testing.T) {
	t.Parallel()
	s, err := New(80, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := strings.Repeat("sentence one is here. sentence two follows it.\nnew line text. ", 8)
	first := s.Split(text)
	for run := 0; run < 5; run++ {
		again := s.Split(text)
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d chunks, first run %d", run, len(again), len(first))
		}
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run %d chunk %d differs: %q vs %q", run, i, again[i], first[i])
			}
		}
	}
}

func Test_Split_CoversAllContent(t *testing.T) {
	t.Parallel()
	s, err := New(40, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november"
	chunks := s.Split(text)
	joined := strings.Join(chunks, " ")
	for _, word := range strings.Fields(text) {
		if !strings.Contains(joined, word) {
			t.Errorf("word %q lost during chunking", word)
		}
	}
}
