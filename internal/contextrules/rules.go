// Package contextrules parses the key=value context file that biases
// document scoring toward or away from topics.
package contextrules

import (
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultSensitivity applies when no sensitivity is given.
const DefaultSensitivity = 0.5

// Rules is the parsed context. The zero value is the empty rule set, which
// serializes to {}; use the accessor methods to read it with defaults applied.
type Rules struct {
	PriorityTopics []string
	IgnoreTopics   []string
	Sensitivity    *float64
	Raw            string
	Extra          map[string]string // unrecognized keys, verbatim
	present        bool
}

// IsEmpty reports whether the rules came from a missing or blank file.
func (r Rules) IsEmpty() bool { return !r.present }

// EffectiveSensitivity returns the sensitivity or DefaultSensitivity.
func (r Rules) EffectiveSensitivity() float64 {
	if r.Sensitivity == nil {
		return DefaultSensitivity
	}
	return *r.Sensitivity
}

// Notes returns the raw context text passed to the document reasoner.
func (r Rules) Notes() string { return r.Raw }

var sensitivityLevels = map[string]float64{
	"high": 0.8, "h": 0.8, "1": 0.8, "0.8": 0.8,
	"medium": 0.5, "med": 0.5, "m": 0.5,
	"low": 0.3, "l": 0.3,
}

// ParseSensitivity reads a numeric literal, clamped to [0,1], or a textual
// level. Unrecognized values fall back to DefaultSensitivity.
func ParseSensitivity(v string) float64 {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return DefaultSensitivity
		}
		return min(max(f, 0), 1)
	}
	if s, ok := sensitivityLevels[strings.ToLower(v)]; ok {
		return s
	}
	return DefaultSensitivity
}

// Parse reads key=value lines. Blank lines, # comments and lines without
// "=" are skipped. Keys are case-insensitive. Blank text yields empty Rules.
func Parse(text string) Rules {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Rules{}
	}

	r := Rules{
		PriorityTopics: []string{},
		IgnoreTopics:   []string{},
		Raw:            raw,
		Extra:          map[string]string{},
		present:        true,
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "sensitivity":
			s := ParseSensitivity(value)
			r.Sensitivity = &s
		case "focus", "priority", "priority_topics", "custom_priority":
			r.PriorityTopics = append(r.PriorityTopics, splitList(value)...)
		case "ignore", "ignore_topics":
			r.IgnoreTopics = append(r.IgnoreTopics, splitList(value)...)
		default:
			if key != "" {
				r.Extra[key] = value
			}
		}
	}

	r.PriorityTopics = dedupe(r.PriorityTopics)
	r.IgnoreTopics = dedupe(r.IgnoreTopics)
	if r.Sensitivity == nil {
		s := DefaultSensitivity
		r.Sensitivity = &s
	}
	return r
}

// Load reads and parses the context file at path. A missing file yields
// empty Rules, not an error.
func Load(path string) (Rules, error) {
	if path == "" {
		return Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Rules{}, nil
	}
	if err != nil {
		return Rules{}, eris.Wrapf(err, "read context file %s", path)
	}
	return Parse(string(data)), nil
}

// MarshalJSON writes {} for empty rules, else every recognized key plus the
// passthrough keys at top level.
func (r Rules) MarshalJSON() ([]byte, error) {
	if !r.present {
		return []byte("{}"), nil
	}
	m := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		m[k] = v
	}
	m["priority_topics"] = nonNil(r.PriorityTopics)
	m["ignore_topics"] = nonNil(r.IgnoreTopics)
	m["sensitivity"] = r.EffectiveSensitivity()
	m["raw"] = r.Raw
	return json.Marshal(m)
}

// UnmarshalJSON accepts the shape MarshalJSON produces.
func (r *Rules) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = Rules{}
	if len(m) == 0 {
		return nil
	}
	r.present = true
	r.PriorityTopics = []string{}
	r.IgnoreTopics = []string{}
	r.Extra = map[string]string{}
	for k, v := range m {
		switch k {
		case "priority_topics":
			r.PriorityTopics = toStrings(v)
		case "ignore_topics":
			r.IgnoreTopics = toStrings(v)
		case "sensitivity":
			if f, ok := v.(float64); ok {
				r.Sensitivity = &f
			}
		case "raw":
			r.Raw, _ = v.(string)
		default:
			if s, ok := v.(string); ok {
				r.Extra[k] = s
			}
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
