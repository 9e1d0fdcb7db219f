package llm

import (
	"context"
	"strings"
	"sync"
)

// DefaultStubResponse is returned when no rule matches the prompt.
const DefaultStubResponse = `{"summary":"Stub summary","insights":["insight1"],"uncertainties":[],"confidence":0.9}`

// StubRule answers any prompt containing Contains with Response.
type StubRule struct {
	Contains string
	Response string
}

// StubBackend replies from canned rules; the first matching rule wins.
// It performs no I/O and is safe for concurrent use.
type StubBackend struct {
	rules    []StubRule
	fallback string

	mu      sync.Mutex
	prompts []string
}

func NewStubBackend(rules ...StubRule) *StubBackend {
	return &StubBackend{rules: rules, fallback: DefaultStubResponse}
}

// WithFallback replaces the reply used when no rule matches.
func (s *StubBackend) WithFallback(resp string) *StubBackend {
	s.fallback = resp
	return s
}

func (s *StubBackend) Name() string { return "stub" }

func (s *StubBackend) Chat(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	for _, r := range s.rules {
		if strings.Contains(prompt, r.Contains) {
			return r.Response, nil
		}
	}
	return s.fallback, nil
}

// Prompts returns every prompt received so far, in arrival order.
func (s *StubBackend) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// DefaultStubRules answer the chunk summary, key-info and synthesis prompts
// with well-formed JSON, for offline runs and demos.
func DefaultStubRules() []StubRule {
	return []StubRule{
		{
			Contains: "Summarize the following text chunk",
			Response: `{"summary": "This chunk covers contract obligations and payment terms.", "topics": ["legal", "finance"]}`,
		},
		{
			Contains: "Extract the most important information",
			Response: `{"entities": ["ACME Corp"], "facts": ["payment due in 30 days"], "numbers": ["30"], "actions": ["review contract"], "misc": []}`,
		},
		{
			Contains: "Combine all chunk information",
			Response: `{"summary": "The document is a services contract between ACME Corp and a supplier.", "insights": ["Payment is due within 30 days", "Termination requires written notice", "Liability is capped"], "uncertainties": [], "confidence": 0.85}`,
		},
	}
}
