package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultHFBaseURL is the hosted Hugging Face inference endpoint.
const DefaultHFBaseURL = "https://api-inference.huggingface.co/models"

// HFBackend calls the Hugging Face text-generation inference API.
type HFBackend struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHFBackend(baseURL, apiKey, model string, client *http.Client) *HFBackend {
	if baseURL == "" {
		baseURL = DefaultHFBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HFBackend{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, httpClient: client}
}

func (h *HFBackend) Name() string { return "huggingface/" + h.model }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HFBackend) Chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: 512},
	})
	if err != nil {
		return "", eris.Wrap(err, "huggingface: marshal request")
	}

	endpoint := h.baseURL + "/" + url.PathEscape(h.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "huggingface: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "huggingface: request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrap(err, "huggingface: read response")
	}
	// 503 is returned while the model is loading.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("huggingface: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var list []hfGeneration
	if err := json.Unmarshal(respBody, &list); err == nil {
		if len(list) == 0 {
			return "", eris.New("huggingface: empty generation list")
		}
		return list[0].GeneratedText, nil
	}
	var single hfGeneration
	if err := json.Unmarshal(respBody, &single); err != nil {
		return "", eris.Wrap(err, "huggingface: decode response")
	}
	return single.GeneratedText, nil
}
