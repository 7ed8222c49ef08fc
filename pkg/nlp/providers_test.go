package nlp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entities": map[string]any{"type": "array"},
	},
	"required": []string{"entities"},
}

func TestOpenAIClient_StructuredOutput(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "lore-model",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"entities\": []}"}}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 4, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(NewLLMConfig().WithBaseURL(server.URL).WithModel("lore-model"))
	require.NoError(t, err)

	resp, err := client.ChatWithStructuredOutput(context.Background(), []types.Message{
		NewSystemMessage("extract"),
		NewUserMessage("Diluc is the son of Crepus."),
	}, extractionSchema)
	require.NoError(t, err)

	assert.Equal(t, `{"entities": []}`, resp.Content)
	assert.Equal(t, "lore-model", resp.Model)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 15, resp.TokensUsed.TotalTokens)

	format, ok := captured["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing from request")
	assert.Equal(t, "json_schema", format["type"])
	jsonSchema, ok := format["json_schema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "extraction", jsonSchema["name"])
	assert.NotNil(t, jsonSchema["schema"])

	// Zero temperature must still reach the server.
	assert.Contains(t, captured, "temperature")
}

func TestOpenAIClient_RequiresKeyWithoutBaseURL(t *testing.T) {
	_, err := NewOpenAIClient(NewLLMConfig())
	assert.Error(t, err)
}

func TestOllamaClient_StructuredOutput(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"qwen3","message":{"role":"assistant","content":"{\"entities\": []}"},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":3}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(NewLLMConfig().WithBaseURL(server.URL).WithModel("qwen3"))
	require.NoError(t, err)
	client.count = func(s string) int { return len(s) }

	resp, err := client.ChatWithStructuredOutput(context.Background(), testMessages, extractionSchema)
	require.NoError(t, err)

	assert.Equal(t, `{"entities": []}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 12, resp.TokensUsed.TotalTokens)

	assert.Equal(t, "qwen3", captured["model"])
	assert.Equal(t, false, captured["stream"])
	format, ok := captured["format"].(map[string]any)
	require.True(t, ok, "format should carry the schema object")
	assert.Equal(t, "object", format["type"])
	options, ok := captured["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), options["temperature"])
}

func TestOllamaClient_RequiresModel(t *testing.T) {
	_, err := NewOllamaClient(NewLLMConfig().WithBaseURL("http://localhost:11434"))
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestAnthropicClient_StructuredOutput(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"entities\": []}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(NewLLMConfig().WithAPIKey("test").WithBaseURL(server.URL).WithModel("claude-test"))
	require.NoError(t, err)

	resp, err := client.ChatWithStructuredOutput(context.Background(), []types.Message{
		NewSystemMessage("extract"),
		NewUserMessage("Diluc is the son of Crepus."),
	}, extractionSchema)
	require.NoError(t, err)

	assert.Equal(t, `{"entities": []}`, resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 25, resp.TokensUsed.TotalTokens)

	system, ok := captured["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	text := system[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "extract")
	assert.Contains(t, text, `"entities"`)

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestProviders_RateLimitedAnswers(t *testing.T) {
	messages := []types.Message{NewUserMessage("Diluc is the son of Crepus.")}

	t.Run("openai", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(NewLLMConfig().WithBaseURL(server.URL).WithModel("lore-model"))
		require.NoError(t, err)

		_, err = client.Chat(context.Background(), messages)
		require.Error(t, err)
		assert.ErrorIs(t, err, &RateLimitError{})
		assert.True(t, isRetryableError(err))
	})

	t.Run("anthropic", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
		}))
		defer server.Close()

		client, err := NewAnthropicClient(NewLLMConfig().WithAPIKey("test").WithBaseURL(server.URL).WithModel("claude-test"))
		require.NoError(t, err)

		_, err = client.Chat(context.Background(), messages)
		require.Error(t, err)
		assert.ErrorIs(t, err, &RateLimitError{})
		assert.Equal(t, 1, calls)
	})

	t.Run("openai server error is not rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "bad schema", "type": "invalid_request_error"}}`))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(NewLLMConfig().WithBaseURL(server.URL).WithModel("lore-model"))
		require.NoError(t, err)

		_, err = client.Chat(context.Background(), messages)
		require.Error(t, err)
		assert.NotErrorIs(t, err, &RateLimitError{})
	})
}

func TestGeminiError_ResourceExhausted(t *testing.T) {
	assert.ErrorIs(t, geminiError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), &RateLimitError{})
	assert.ErrorIs(t, geminiError(genai.APIError{Status: "RESOURCE_EXHAUSTED"}), &RateLimitError{})
	assert.NotErrorIs(t, geminiError(genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}), &RateLimitError{})
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.NLPModelConfig{Provider: "rustbert"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewClient_Providers(t *testing.T) {
	client, err := NewClient(context.Background(), config.NLPModelConfig{Provider: "ollama", Model: "qwen3", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, client)

	client, err = NewClient(context.Background(), config.NLPModelConfig{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	client, err = NewClient(context.Background(), config.NLPModelConfig{Provider: "anthropic", APIKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, client)

	_, err = NewClient(context.Background(), config.NLPModelConfig{Provider: "gemini"})
	assert.Error(t, err, "gemini without a key must fail")
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]types.Message{
		NewSystemMessage("a"),
		NewUserMessage("u"),
		NewSystemMessage("b"),
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []types.Message{NewUserMessage("u")}, rest)
}
