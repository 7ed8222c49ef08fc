package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient implements the Client interface for Anthropic models.
type AnthropicClient struct {
	client anthropic.Client
	config *LLMConfig
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(config *LLMConfig) (*AnthropicClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if config.Model == "" {
		config.Model = defaultAnthropicModel
	}

	// Retries belong to RetryClient.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		config: config,
	}, nil
}

// Chat implements Client.
func (a *AnthropicClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	system, conversation := splitSystem(messages)
	return a.send(ctx, system, conversation)
}

// ChatWithStructuredOutput appends the schema to the system prompt; the
// Messages API has no native JSON mode.
func (a *AnthropicClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	system, conversation := splitSystem(messages)
	if system != "" {
		system += "\n\n"
	}
	system += "Respond with a single JSON object that matches this schema and nothing else:\n" + string(schemaBytes)

	return a.send(ctx, system, conversation)
}

// Close implements Client.
func (a *AnthropicClient) Close() error {
	return nil
}

func (a *AnthropicClient) send(ctx context.Context, system string, messages []types.Message) (*types.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.config.Model),
		MaxTokens:   int64(a.config.MaxTokens),
		Temperature: anthropic.Float(float64(a.config.Temperature)),
		Messages:    make([]anthropic.MessageParam, 0, len(messages)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages request failed: %w", anthropicError(err))
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return nil, NewEmptyResponseError("unexpected response format: no text blocks")
	}
	if message.StopReason == anthropic.StopReasonRefusal {
		return nil, NewRefusalError(text.String())
	}

	return &types.Response{
		Content:      text.String(),
		FinishReason: string(message.StopReason),
		Model:        string(message.Model),
		TokensUsed: &types.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// anthropicError marks HTTP 429 answers as rate limited.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	return rateLimited("anthropic", err, errors.As(err, &apiErr) && isTooManyRequests(apiErr.StatusCode))
}
