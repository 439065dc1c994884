package narrator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/user/solo-adventure/internal/types"
)

// OpenRouterClient talks to an OpenAI-compatible chat completions API
type OpenRouterClient struct {
	client openai.Client
	model  string
}

// NewOpenRouterClient creates a client for baseURL. The SDK does not retry;
// a failed turn is surfaced to the player instead.
func NewOpenRouterClient(baseURL, apiKey, model string, timeout time.Duration) *OpenRouterClient {
	return &OpenRouterClient{
		client: openai.NewClient(
			option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
		model: model,
	}
}

// Complete sends the window as a chat completion and returns the raw reply
func (c *OpenRouterClient) Complete(ctx context.Context, system string, window []types.Turn) (string, error) {
	if c.model == "" {
		return "", ErrNoModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, turn := range window {
		if turn.Role == types.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(turn.Content))
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// ListModels returns the available model ids, sorted
func (c *OpenRouterClient) ListModels(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}
