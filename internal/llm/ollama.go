package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultOllamaURL is the local Ollama daemon address.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaBackend talks to a local Ollama server's chat endpoint.
type OllamaBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaBackend(baseURL, model string, client *http.Client) *OllamaBackend {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaBackend{baseURL: strings.TrimRight(baseURL, "/"), model: model, httpClient: client}
}

func (o *OllamaBackend) Name() string { return "ollama/" + o.model }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error"`
}

func (o *OllamaBackend) Chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "ollama: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "ollama: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ollama: request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrap(err, "ollama: read response")
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("ollama: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", eris.Wrap(err, "ollama: decode response")
	}
	if out.Error != "" {
		return "", eris.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}
