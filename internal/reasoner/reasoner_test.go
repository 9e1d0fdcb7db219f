package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/dgallion1/docjudge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []model.ChunkResult {
	return []model.ChunkResult{
		{ChunkID: 0, Summary: "s1", KeyInfo: map[string]any{"entities": []any{"ACME"}}},
		{ChunkID: 1, Summary: "s2", KeyInfo: map[string]any{"facts": []any{"f"}}},
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(sampleResults(), "focus=legal")
	assert.Contains(t, p, "Combine all chunk information")
	assert.Contains(t, p, "## Chunk Summaries\ns1\ns2\n")
	assert.Contains(t, p, "\"entities\": [\n      \"ACME\"\n    ]")
	assert.Contains(t, p, "## Context Notes (optional)\nfocus=legal\n")
	assert.NotContains(t, p, "{{")
}

func TestCombine_ParsesJSON(t *testing.T) {
	stub := llm.NewStubBackend(llm.StubRule{
		Contains: "Combine all chunk information",
		Response: "```json\n{\"summary\": \"Combined summary\", \"insights\": [\"i1\"], \"uncertainties\": [], \"confidence\": 0.75, \"audience\": \"legal\"}\n```",
	})
	s, err := New(stub, nil).Combine(context.Background(), sampleResults(), "")
	require.NoError(t, err)
	assert.Equal(t, "Combined summary", s.Summary)
	assert.Equal(t, []string{"i1"}, s.Insights)
	assert.Empty(t, s.Uncertainties)
	assert.Equal(t, 0.75, s.Confidence)
	assert.Equal(t, "legal", s.Extra["audience"])

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"Combined summary","insights":["i1"],"uncertainties":[],"confidence":0.75,"audience":"legal"}`, string(b))
}

type generateOnly struct{ chatCalls, genCalls int }

func (g *generateOnly) Chat(context.Context, string) (string, error) {
	g.chatCalls++
	return "{}", nil
}

func (g *generateOnly) Generate(context.Context, string) (string, error) {
	g.genCalls++
	return `{"summary":"from generate"}`, nil
}

func TestCombine_PrefersGenerate(t *testing.T) {
	b := &generateOnly{}
	s, err := New(b, nil).Combine(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from generate", s.Summary)
	assert.Equal(t, 1, b.genCalls)
	assert.Equal(t, 0, b.chatCalls)
}

func TestParseSynthesis_Defaults(t *testing.T) {
	s := ParseSynthesis(`{"insights": ["a", "b"]}`)
	assert.Equal(t, "", s.Summary)
	assert.Equal(t, []string{"a", "b"}, s.Insights)
	assert.Equal(t, []string{}, s.Uncertainties)
	assert.Equal(t, DefaultConfidence, s.Confidence)
}

func TestParseSynthesis_Fallbacks(t *testing.T) {
	s := ParseSynthesis("  The model answered in prose.  ")
	assert.Equal(t, "The model answered in prose.", s.Summary)
	assert.Empty(t, s.Insights)
	assert.Equal(t, DefaultConfidence, s.Confidence)

	s = ParseSynthesis(`["not", "an", "object"]`)
	assert.Equal(t, `["not", "an", "object"]`, s.Summary)
}

func TestParseSynthesis_LenientTypes(t *testing.T) {
	s := ParseSynthesis(`{"summary": {"a": 1}, "insights": "single", "confidence": "0.6"}`)
	assert.Equal(t, `{"a":1}`, s.Summary)
	assert.Equal(t, []string{"single"}, s.Insights)
	assert.Equal(t, 0.6, s.Confidence)

	s = ParseSynthesis(`{"confidence": "high"}`)
	assert.Equal(t, DefaultConfidence, s.Confidence)
}

func TestParseSynthesis_NullListsAreEmpty(t *testing.T) {
	s := ParseSynthesis(`{"summary": "s", "insights": null, "uncertainties": null}`)
	require.NotNil(t, s.Insights)
	require.NotNil(t, s.Uncertainties)
	assert.Empty(t, s.Insights)
	assert.Empty(t, s.Uncertainties)
}

func TestCombine_BackendFailure(t *testing.T) {
	b := failing{}
	s, err := New(b, nil).Combine(context.Background(), sampleResults(), "")
	require.Error(t, err)
	assert.Equal(t, "", s.Summary)
	assert.Equal(t, DefaultConfidence, s.Confidence)
	assert.True(t, strings.Contains(s.Extra["error"].(string), "down"))
}

type failing struct{}

func (failing) Chat(context.Context, string) (string, error) { return "", errors.New("backend down") }

func TestDecideNeedFullRead(t *testing.T) {
	tests := []struct {
		name  string
		s     Synthesis
		need  bool
		wants []string
	}{
		{
			name: "confident and complete",
			s:    Synthesis{Insights: []string{"a", "b", "c"}, Confidence: 0.9},
			need: false, wants: []string{},
		},
		{
			name: "uncertain",
			s:    Synthesis{Insights: []string{"a", "b", "c"}, Uncertainties: []string{"?"}, Confidence: 0.9},
			need: true, wants: []string{ReasonUncertainties},
		},
		{
			name: "everything wrong",
			s:    Synthesis{Uncertainties: []string{"?"}, Confidence: 0.1},
			need: true, wants: []string{ReasonUncertainties, ReasonLowConfidence, ReasonFewInsights},
		},
		{
			name: "boundary confidence is not low",
			s:    Synthesis{Insights: []string{"a", "b", "c"}, Confidence: 0.4},
			need: false, wants: []string{},
		},
		{
			name: "fallback synthesis",
			s:    ParseSynthesis("prose"),
			need: true, wants: []string{ReasonLowConfidence, ReasonFewInsights},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecideNeedFullRead(tt.s)
			assert.Equal(t, tt.need, d.NeedFullRead)
			assert.Equal(t, tt.wants, d.Reasons)
		})
	}
}
