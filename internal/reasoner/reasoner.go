// Package reasoner asks the backend for a document-level synthesis of all
// chunk results and decides whether a full read is needed.
package reasoner

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"strconv"

	"github.com/dgallion1/docjudge/internal/analyzer"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/model"
)

// DefaultConfidence fills a synthesis that has no usable confidence.
const DefaultConfidence = 0.3

// Reasons reported by DecideNeedFullRead.
const (
	ReasonUncertainties = "uncertainties present"
	ReasonLowConfidence = "low confidence"
	ReasonFewInsights   = "insufficient insights"

	lowConfidence = 0.4
	minInsights   = 3
)

// Synthesis is the document-level result. Keys beyond the four known ones
// are kept in Extra and written back at top level.
type Synthesis struct {
	Summary       string
	Insights      []string
	Uncertainties []string
	Confidence    float64
	Extra         map[string]any
}

func (s Synthesis) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+4)
	maps.Copy(m, s.Extra)
	m["summary"] = s.Summary
	m["insights"] = nonNil(s.Insights)
	m["uncertainties"] = nonNil(s.Uncertainties)
	m["confidence"] = s.Confidence
	return json.Marshal(m)
}

// ReadDecision is the rule-based full-read verdict.
type ReadDecision struct {
	NeedFullRead bool     `json:"need_full_read"`
	Reasons      []string `json:"reasons"`
}

// Reasoner produces a Synthesis through one backend call.
type Reasoner struct {
	backend llm.Backend
	log     *slog.Logger
}

func New(backend llm.Backend, log *slog.Logger) *Reasoner {
	if log == nil {
		log = slog.Default()
	}
	return &Reasoner{backend: backend, log: log}
}

// Combine builds the synthesis prompt and parses the reply. A backend
// failure is returned alongside a fallback synthesis carrying an "error"
// key, so callers may choose to degrade instead of failing.
func (r *Reasoner) Combine(ctx context.Context, results []model.ChunkResult, contextNotes string) (Synthesis, error) {
	out, err := llm.Generate(ctx, r.backend, BuildPrompt(results, contextNotes))
	if err != nil {
		r.log.Warn("synthesis call failed", "error", err)
		s := fallback("")
		s.Extra = map[string]any{"error": err.Error()}
		return s, err
	}
	return ParseSynthesis(out), nil
}

// ParseSynthesis reads a synthesis reply. A JSON object keeps its extra keys
// and gets defaults for missing fields; anything else becomes the summary.
func ParseSynthesis(raw string) Synthesis {
	d := llm.DecodeJSON(raw)
	obj, ok := d.Object()
	if !ok {
		return fallback(d.Cleaned)
	}

	s := Synthesis{
		Insights:      []string{},
		Uncertainties: []string{},
		Confidence:    DefaultConfidence,
		Extra:         map[string]any{},
	}
	for k, v := range obj {
		switch k {
		case "summary":
			if str, ok := v.(string); ok {
				s.Summary = str
			} else {
				s.Summary = textOf(v)
			}
		case "insights":
			s.Insights = nonNil(analyzer.StringList(v))
		case "uncertainties":
			s.Uncertainties = nonNil(analyzer.StringList(v))
		case "confidence":
			s.Confidence = confidenceOf(v)
		default:
			s.Extra[k] = v
		}
	}
	return s
}

// DecideNeedFullRead collects every reason that applies; any reason means
// the document needs a full read.
func DecideNeedFullRead(s Synthesis) ReadDecision {
	reasons := []string{}
	if len(s.Uncertainties) > 0 {
		reasons = append(reasons, ReasonUncertainties)
	}
	if s.Confidence < lowConfidence {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if len(s.Insights) < minInsights {
		reasons = append(reasons, ReasonFewInsights)
	}
	return ReadDecision{NeedFullRead: len(reasons) > 0, Reasons: reasons}
}

func fallback(summary string) Synthesis {
	return Synthesis{
		Summary:       summary,
		Insights:      []string{},
		Uncertainties: []string{},
		Confidence:    DefaultConfidence,
	}
}

func confidenceOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return DefaultConfidence
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
