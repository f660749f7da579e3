// Package chunker splits raw document text into overlapping bounded-length
// segments for embedding. It uses a recursive-separator strategy: paragraph
// breaks first, then sentence breaks, then words, falling back to hard
// character windows only when no separator keeps a piece within the size
// limit. Splitting is deterministic — the same input always yields the same
// chunk boundaries.
package chunker

import (
	"fmt"
	"strings"
)

// separators is the ordered list of split points tried when a piece of text
// exceeds the chunk size. The empty string marks the hard character-window
// fallback.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter produces overlapping chunks of at most Size characters.
// It is stateless after construction and safe for concurrent use.
type Splitter struct {
	// size is the maximum chunk length in characters.
	size int

	// overlap is the number of characters consecutive chunks share.
	// Always strictly less than size.
	overlap int
}

// New constructs a Splitter. overlap must be non-negative and strictly less
// than size, otherwise chunking could never make progress.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size %d must be positive", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap %d must not be negative", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be strictly less than chunk size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split divides text into ordered chunks. Every chunk is non-empty and at
// most the configured size; consecutive chunks share the configured overlap
// where the text allows it. Empty or whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.size {
		return []string{text}
	}

	fragments := s.fragment(text, separators)
	return s.assemble(fragments)
}

// fragment recursively splits text into pieces of at most size characters,
// preferring the earliest separator that produces conforming pieces.
func (s *Splitter) fragment(text string, seps []string) []string {
	if len(text) <= s.size {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		return s.windows(text)
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent — fall through to the next one.
		return s.fragment(text, seps[1:])
	}

	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) <= s.size {
			out = append(out, part)
			continue
		}
		out = append(out, s.fragment(part, seps[1:])...)
	}
	return out
}

// windows slices text into hard windows of exactly size runes (the final
// window may be shorter), each advancing by size-overlap so consecutive
// windows share exactly overlap runes. Slicing by rune keeps multi-byte
// text valid UTF-8; byte offsets would cut CJK prose mid-character.
func (s *Splitter) windows(text string) []string {
	runes := []rune(text)
	var out []string
	stride := s.size - s.overlap
	for start := 0; start < len(runes); start += stride {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// assemble greedily packs fragments into chunks of at most size characters,
// carrying the configured overlap from the tail of each emitted chunk into
// the next so context continuity survives the boundary.
func (s *Splitter) assemble(fragments []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, frag := range fragments {
		if current.Len() > 0 && current.Len()+len(frag) > s.size {
			tail := overlapTail(current.String(), s.overlap)
			flush()
			if len(tail)+len(frag) <= s.size {
				current.WriteString(tail)
			}
		}
		current.WriteString(frag)
	}
	flush()

	return chunks
}

// overlapTail returns the last n runes of text, trimmed of leading
// whitespace so a carried overlap never starts a chunk with a space.
// Sliced by rune so a carried tail never opens a chunk mid-character.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if runes := []rune(text); len(runes) > n {
		text = string(runes[len(runes)-n:])
	}
	return strings.TrimLeft(text, " \n\t")
}
