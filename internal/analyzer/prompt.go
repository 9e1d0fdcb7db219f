package analyzer

import "strings"

// Placeholder is replaced with the chunk text in both templates.
const Placeholder = "{{chunk_text}}"

// SummaryPrompt asks for a short summary and topic labels.
const SummaryPrompt = `Summarize the following text chunk in 2-4 sentences and list the topics it covers.

Topics are short lowercase labels such as "legal", "finance", "hr", "marketing",
"technical", "security" or "operations". Use as few labels as describe the chunk.

Return ONLY a JSON object, without code fences or commentary:
{"summary": "...", "topics": ["...", "..."]}

Text chunk:
{{chunk_text}}
`

// KeyInfoPrompt asks for structured key information.
const KeyInfoPrompt = `Extract the most important information from the following text chunk.

Rules:
- entities: people, organizations, products, places or documents named in the text
- facts: short factual statements the text asserts
- numbers: amounts, dates, percentages or quantities, as written
- actions: obligations, deadlines, requests or next steps
- misc: anything important that fits nowhere else
- Use empty arrays when a field has nothing. Do not invent information.

Return ONLY a JSON object, without code fences or commentary:
{"entities": [], "facts": [], "numbers": [], "actions": [], "misc": []}

Text chunk:
{{chunk_text}}
`

// Fill substitutes text for every placeholder in template.
func Fill(template, text string) string {
	return strings.ReplaceAll(template, Placeholder, text)
}
