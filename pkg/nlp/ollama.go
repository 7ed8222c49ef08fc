package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"unicode/utf8"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/soundprediction/lorekeeper/pkg/types"
	"golang.org/x/sync/semaphore"
)

// Ollama grows the context window only when a prompt would overflow the default.
const (
	ollamaDefaultContext = 4096
	ollamaReserveTokens  = 1024
)

// OllamaClient implements the Client interface for a local Ollama server.
type OllamaClient struct {
	client  *api.Client
	config  *LLMConfig
	reqLock *semaphore.Weighted

	countOnce sync.Once
	count     func(string) int
}

// NewOllamaClient creates a new Ollama client. An empty BaseURL falls back to
// OLLAMA_HOST and then to the local default.
func NewOllamaClient(config *LLMConfig) (*OllamaClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: ollama requires a model name", ErrInvalidModel)
	}

	var (
		client *api.Client
		err    error
	)
	if config.BaseURL != "" {
		u, perr := url.Parse(config.BaseURL)
		if perr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", perr)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	limit := int64(config.MaxConcurrent)
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	return &OllamaClient{
		client:  client,
		config:  config,
		reqLock: semaphore.NewWeighted(limit),
	}, nil
}

// Chat implements Client.
func (c *OllamaClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.chat(ctx, messages, nil)
}

// ChatWithStructuredOutput passes the schema as Ollama's format constraint.
func (c *OllamaClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	format, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return c.chat(ctx, messages, format)
}

// Close implements Client.
func (c *OllamaClient) Close() error {
	return nil
}

func (c *OllamaClient) chat(ctx context.Context, messages []types.Message, format json.RawMessage) (*types.Response, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: make([]api.Message, len(messages)),
		Stream:   &stream,
		Format:   format,
		Options: map[string]any{
			"temperature": c.config.Temperature,
			"num_predict": c.config.MaxTokens,
		},
	}
	for i, msg := range messages {
		req.Messages[i] = api.Message{Role: string(msg.Role), Content: msg.Content}
	}
	if n := c.contextSize(messages); n > ollamaDefaultContext {
		req.Options["num_ctx"] = n
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.DoneReason = cr.DoneReason
			final.Model = cr.Model
			final.Metrics = cr.Metrics
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		limited := errors.As(err, &statusErr) && isTooManyRequests(statusErr.StatusCode)
		return nil, fmt.Errorf("ollama chat failed: %w", rateLimited("ollama", err, limited))
	}
	if final.Message.Content == "" {
		return nil, NewEmptyResponseError("ollama returned no content")
	}

	return &types.Response{
		Content:      final.Message.Content,
		FinishReason: final.DoneReason,
		Model:        final.Model,
		TokensUsed: &types.TokenUsage{
			PromptTokens:     final.Metrics.PromptEvalCount,
			CompletionTokens: final.Metrics.EvalCount,
			TotalTokens:      final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		},
	}, nil
}

// contextSize estimates the context window the prompt needs plus headroom for the answer.
func (c *OllamaClient) contextSize(messages []types.Message) int {
	c.countOnce.Do(func() {
		if c.count != nil {
			return
		}
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			// The encoding is fetched on first use; offline hosts fall back to a rough estimate.
			c.count = func(s string) int { return utf8.RuneCountInString(s)/4 + 1 }
			return
		}
		c.count = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	})

	tokens := ollamaReserveTokens
	for _, msg := range messages {
		tokens += c.count(msg.Content)
	}
	return tokens
}
