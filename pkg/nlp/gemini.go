package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/lorekeeper/pkg/types"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements the Client interface for Google Gemini models.
type GeminiClient struct {
	client *genai.Client
	config *LLMConfig
}

// NewGeminiClient creates a new Gemini client against the Gemini API backend.
func NewGeminiClient(ctx context.Context, config *LLMConfig) (*GeminiClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Chat implements the Client interface for Gemini.
func (g *GeminiClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return g.generate(ctx, messages, nil)
}

// ChatWithStructuredOutput requests a JSON response constrained to schema.
func (g *GeminiClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return g.generate(ctx, messages, schema)
}

// Close implements Client.
func (g *GeminiClient) Close() error {
	return nil
}

func (g *GeminiClient) generate(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	system, conversation := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(conversation))
	for _, msg := range conversation {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		MaxOutputTokens: int32(g.config.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = schema
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", geminiError(err))
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, NewRefusalError(fmt.Sprintf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason))
		}
		return nil, NewEmptyResponseError("no candidates returned from gemini")
	}

	response := &types.Response{
		Content:      resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
		Model:        resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return response, nil
}

// geminiError marks HTTP 429 and RESOURCE_EXHAUSTED answers as rate limited.
func geminiError(err error) error {
	var apiErr genai.APIError
	limited := errors.As(err, &apiErr) &&
		(isTooManyRequests(apiErr.Code) || strings.Contains(apiErr.Status, "RESOURCE_EXHAUSTED"))
	return rateLimited("gemini", err, limited)
}
