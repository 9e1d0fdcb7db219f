package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var openFenceRe = regexp.MustCompile("(?i)^```[a-z0-9_+.-]*")

// StripCodeFences trims whitespace and removes a leading ``` fence (with any
// language tag) and a trailing ``` fence. Either may be missing.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		s = strings.TrimSpace(s[loc[1]:])
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Decoded is the outcome of parsing model output as JSON. When OK is false,
// Value is nil and Cleaned holds the text that failed to parse.
type Decoded struct {
	Value   any
	Cleaned string
	OK      bool
}

// Object returns Value as a JSON object, if it is one.
func (d Decoded) Object() (map[string]any, bool) {
	if !d.OK {
		return nil, false
	}
	m, ok := d.Value.(map[string]any)
	return m, ok
}

// DecodeJSON strips code fences from raw and parses the remainder. Malformed
// output is a normal outcome, never an error.
func DecodeJSON(raw string) Decoded {
	cleaned := StripCodeFences(raw)
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Decoded{Cleaned: cleaned}
	}
	return Decoded{Value: v, Cleaned: cleaned, OK: true}
}
