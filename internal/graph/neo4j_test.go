package graph

import (
	"strings"
	"testing"
)

// Test_CascadeDeleteProjectsStoredChunkID pins the property agreement between
// chunk creation and the cascade delete. Chunk nodes store their identifier
// under `id`; if the delete query projects any other property, every
// projection is NULL, collect() drops them all, and the engine never learns
// which vector-index points to remove.
func Test_CascadeDeleteProjectsStoredChunkID(t *testing.T) {
	t.Parallel()

	if !strings.Contains(createChunksCypher, "Chunk {id: ch.id") {
		t.Fatalf("chunk nodes no longer store their identifier under `id`:\n%s", createChunksCypher)
	}
	if !strings.Contains(deleteDocumentCypher, "c.id AS chunk_id") {
		t.Errorf("cascade delete does not project the stored chunk id:\n%s", deleteDocumentCypher)
	}
	if !strings.Contains(deleteDocumentCypher, "collect(chunk_id)") {
		t.Errorf("cascade delete does not collect the projected chunk ids:\n%s", deleteDocumentCypher)
	}
}

func Test_EscapeLucene(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  string
	}{
		{"plain words", "plain words"},
		{"foo+bar", `foo\+bar`},
		{"a:b", `a\:b`},
		{`wild*card?`, `wild\*card\?`},
		{`(grouped) AND [ranged]`, `\(grouped\) AND \[ranged\]`},
		{`back\slash`, `back\\slash`},
		{`"quoted phrase"`, `\"quoted phrase\"`},
		{"", ""},
	}
	for _, tc := range cases {
		if got := escapeLucene(tc.input); got != tc.want {
			t.Errorf("escapeLucene(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func Test_SearchResultFromRow(t *testing.T) {
	t.Parallel()
	row := map[string]any{
		"chunk_id": "doc-1:0003",
		"text":     "chunk text",
		"doc_id":   "doc-1",
		"score":    0.87,
		"doc": map[string]any{
			"id":         "doc-1",
			"content":    "full document body",
			"created_at": "2026-01-01T00:00:00Z",
			"team":       "sre",
			"year":       int64(2026),
		},
	}

	r := searchResultFromRow(row)
	if r.ChunkID != "doc-1:0003" || r.Text != "chunk text" || r.DocID != "doc-1" {
		t.Errorf("identity fields = %+v", r)
	}
	if r.Score != 0.87 {
		t.Errorf("Score = %v, want 0.87", r.Score)
	}
	// Reserved document properties never leak into metadata.
	if _, ok := r.Metadata["content"]; ok {
		t.Error("content leaked into metadata")
	}
	if _, ok := r.Metadata["id"]; ok {
		t.Error("id leaked into metadata")
	}
	if r.Metadata["team"] != "sre" {
		t.Errorf("metadata team = %q, want sre", r.Metadata["team"])
	}
	if r.Metadata["year"] != "2026" {
		t.Errorf("metadata year = %q, want 2026", r.Metadata["year"])
	}
}

func Test_SearchResultFromRow_SparseRow(t *testing.T) {
	t.Parallel()
	r := searchResultFromRow(map[string]any{"chunk_id": "c1"})
	if r.ChunkID != "c1" {
		t.Errorf("ChunkID = %q", r.ChunkID)
	}
	if r.Score != 0 {
		t.Errorf("Score = %v, want 0 when absent", r.Score)
	}
	if r.Metadata != nil {
		t.Errorf("Metadata = %v, want nil without doc props", r.Metadata)
	}
}

func Test_ToFloat64(t *testing.T) {
	t.Parallel()
	got := toFloat64([]float32{0.5, 1.5})
	if len(got) != 2 || got[0] != 0.5 || got[1] != 1.5 {
		t.Errorf("toFloat64 = %v", got)
	}
	if out := toFloat64(nil); len(out) != 0 {
		t.Errorf("toFloat64(nil) = %v, want empty", out)
	}
}

func Test_AsInt64(t *testing.T) {
	t.Parallel()
	if got := asInt64(int64(7)); got != 7 {
		t.Errorf("asInt64(7) = %d", got)
	}
	if got := asInt64(nil); got != 0 {
		t.Errorf("asInt64(nil) = %d, want 0", got)
	}
	if got := asInt64("not a number"); got != 0 {
		t.Errorf("asInt64(string) = %d, want 0", got)
	}
}
