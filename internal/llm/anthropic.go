package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// DefaultAnthropicModel is used when no model is named.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicBackend calls the Anthropic Messages API through the SDK.
// Retries are left to ResilientBackend.
type AnthropicBackend struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

func NewAnthropicBackend(apiKey, model string, maxTokens int64, baseURL string) *AnthropicBackend {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{
		client:    sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (a *AnthropicBackend) Name() string { return "anthropic/" + a.model }

func (a *AnthropicBackend) Chat(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500) {
			return "", &RetryableError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.New("anthropic: response has no text content")
	}
	return sb.String(), nil
}
