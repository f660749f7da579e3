// Package budget provides token budget estimation for the context string
// assembled from retrieved chunks. Because graphrag supports multiple
// generation backends with different tokenizers, it uses a conservative
// character-based heuristic: 1 token ≈ 4 characters (English prose and
// code). This deliberately under-estimates token counts to leave headroom
// for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget in tokens for assembled
	// retrieval context. Conservative enough to fit within 8k-context
	// models while leaving room for the question and the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// FitParts returns the longest prefix of parts whose combined estimated
// token count (plus a small per-part overhead for joining) fits within
// maxTokens. Parts are assumed ordered best-first, so the lowest-ranked
// parts are the ones dropped when the budget is exceeded.
func FitParts(parts []string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	total := 0
	for i, p := range parts {
		total += 1 + Estimate(p)
		if total > maxTokens {
			return parts[:i]
		}
	}
	return parts
}
