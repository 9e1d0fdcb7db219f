package chunker

import "strings"

// EstimateTokens approximates a model token count at ~1.33 tokens per word.
// It is reported in document metadata only; chunking itself counts runes.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(int(float64(words)*1.33), 1)
}
