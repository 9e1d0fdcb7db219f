package reasoner

import (
	"encoding/json"
	"strings"

	"github.com/dgallion1/docjudge/internal/model"
)

const synthesisTemplate = `You are an AI that performs high-level reasoning over document fragments.

## Chunk Summaries
{{summaries}}

## Extracted Key Information
{{key_info}}

## Context Notes (optional)
{{context_notes}}

### Task
Combine all chunk information into a single unified document understanding.
Provide:
1. A coherent document summary (200 words max)
2. A list of the most important insights
3. Any contradictions or unclear sections
4. A confidence score between 0 and 1

Return ONLY valid JSON with this structure, without code fences or explanations:
{
    "summary": "...",
    "insights": ["...", "..."],
    "uncertainties": ["...", "..."],
    "confidence": 0.0
}
`

// BuildPrompt embeds the newline-joined chunk summaries, the indented JSON
// of every chunk's key info, and the context notes.
func BuildPrompt(results []model.ChunkResult, contextNotes string) string {
	summaries := make([]string, len(results))
	keyInfo := make([]map[string]any, len(results))
	for i, r := range results {
		summaries[i] = r.Summary
		keyInfo[i] = r.KeyInfo
	}
	ki, err := json.MarshalIndent(keyInfo, "", "  ")
	if err != nil {
		ki = []byte("[]")
	}

	return strings.NewReplacer(
		"{{summaries}}", strings.Join(summaries, "\n"),
		"{{key_info}}", string(ki),
		"{{context_notes}}", contextNotes,
	).Replace(synthesisTemplate)
}
