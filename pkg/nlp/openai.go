package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// OpenAIClient implements the Client interface for OpenAI and
// OpenAI-compatible chat completion endpoints.
type OpenAIClient struct {
	client *openai.Client
	config *LLMConfig
}

// NewOpenAIClient creates a new OpenAI client.
// Supports OpenAI-compatible services through custom BaseURL configuration.
func NewOpenAIClient(config *LLMConfig) (*OpenAIClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}

	var client *openai.Client
	if config.BaseURL != "" {
		if err := validateBaseURL(config.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}

		// Some compatible services do not require authentication
		apiKey := config.APIKey
		if apiKey == "" {
			apiKey = "dummy-key"
		}

		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = config.BaseURL
		// Many services expect "/v1" to be appended to the base URL
		if !hasAPIPath(config.BaseURL) {
			clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/") + "/v1"
		}
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		client = openai.NewClient(config.APIKey)
	}

	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: client,
		config: config,
	}, nil
}

// Chat sends a chat completion request to OpenAI or OpenAI-compatible service.
func (c *OpenAIClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	req, err := c.buildChatRequest(messages, nil)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, req)
}

// ChatWithStructuredOutput sends a chat completion request with a JSON schema response format.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	req, err := c.buildChatRequest(messages, schema)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, req)
}

// Close cleans up resources (no-op for OpenAI client).
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*types.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", openAIError(err))
	}

	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError("no choices returned from openai")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, NewRefusalError(choice.Message.Refusal)
	}

	response := &types.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}

	// Some OpenAI-compatible services do not report usage
	if resp.Usage.TotalTokens > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return response, nil
}

func (c *OpenAIClient) buildChatRequest(messages []types.Message, schema any) (openai.ChatCompletionRequest, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:     c.config.Model,
		Messages:  openaiMessages,
		MaxTokens: c.config.MaxTokens,
		// go-openai drops a zero temperature from the request body.
		Temperature: c.config.Temperature,
	}
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}

	if schema != nil {
		raw, err := schemaMarshaler(schema)
		if err != nil {
			return req, err
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "extraction",
				Schema: raw,
				Strict: c.config.BaseURL == "",
			},
		}
	}

	return req, nil
}

// schemaMarshaler normalizes a schema value into a json.Marshaler.
func schemaMarshaler(schema any) (json.Marshaler, error) {
	if m, ok := schema.(json.Marshaler); ok {
		return m, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return json.RawMessage(b), nil
}

// hasAPIPath checks if the base URL already includes an API path component.
func hasAPIPath(baseURL string) bool {
	trimmed := strings.TrimSuffix(baseURL, "/")
	return strings.HasSuffix(trimmed, "/v1") || strings.HasSuffix(trimmed, "/api")
}

// openAIError marks HTTP 429 answers as rate limited.
func openAIError(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	limited := (errors.As(err, &apiErr) && isTooManyRequests(apiErr.HTTPStatusCode)) ||
		(errors.As(err, &reqErr) && isTooManyRequests(reqErr.HTTPStatusCode))
	return rateLimited("openai", err, limited)
}
