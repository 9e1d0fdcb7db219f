// Package llm defines the language-model backend capability and its
// concrete providers.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBackendUnavailable is returned when a backend cannot be constructed.
var ErrBackendUnavailable = eris.New("backend unavailable")

// Backend answers a single user prompt with raw model text.
type Backend interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Generator is implemented by backends with a distinct completion mode.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Named backends report a provider/model label for metadata and logs.
type Named interface {
	Name() string
}

// Generate uses b's completion mode when it has one and falls back to Chat.
func Generate(ctx context.Context, b Backend, prompt string) (string, error) {
	if g, ok := b.(Generator); ok {
		return g.Generate(ctx, prompt)
	}
	return b.Chat(ctx, prompt)
}

// NameOf returns b's label, or its Go type when it has none.
func NameOf(b Backend) string {
	if n, ok := b.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", b)
}

// Spec selects a provider and model, as sent by API clients.
type Spec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Settings carries provider endpoints and credentials.
type Settings struct {
	OllamaURL          string
	HFBaseURL          string
	HFAPIKey           string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	AnthropicMaxTokens int64
	HTTPTimeout        time.Duration
}

// Models used when no model is named.
const (
	DefaultOllamaModel = "gemma3"
	DefaultHFModel     = "mistralai/Mistral-7B-Instruct-v0.2"
)

// New constructs the backend the Spec names. Unknown providers and missing
// credentials yield ErrBackendUnavailable.
func New(spec Spec, s Settings) (Backend, error) {
	model := strings.TrimSpace(spec.Model)
	client := &http.Client{Timeout: s.HTTPTimeout}
	if s.HTTPTimeout <= 0 {
		client.Timeout = 120 * time.Second
	}

	switch strings.ToLower(strings.TrimSpace(spec.Provider)) {
	case "stub":
		return NewStubBackend(DefaultStubRules()...), nil
	case "ollama":
		if model == "" {
			model = DefaultOllamaModel
		}
		return NewOllamaBackend(s.OllamaURL, model, client), nil
	case "hf", "huggingface":
		if model == "" {
			model = DefaultHFModel
		}
		if s.HFAPIKey == "" {
			return nil, eris.Wrap(ErrBackendUnavailable, "huggingface: api key is not configured")
		}
		return NewHFBackend(s.HFBaseURL, s.HFAPIKey, model, client), nil
	case "anthropic", "claude":
		if s.AnthropicAPIKey == "" {
			return nil, eris.Wrap(ErrBackendUnavailable, "anthropic: api key is not configured")
		}
		return NewAnthropicBackend(s.AnthropicAPIKey, model, s.AnthropicMaxTokens, s.AnthropicBaseURL), nil
	default:
		return nil, eris.Wrapf(ErrBackendUnavailable, "unknown provider %q", spec.Provider)
	}
}
