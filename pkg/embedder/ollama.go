package embedder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder implements Client against a local Ollama server.
type OllamaEmbedder struct {
	client *api.Client
	config *Config
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty BaseURL falls back
// to OLLAMA_HOST and then to the local default.
func NewOllamaEmbedder(config *Config) (*OllamaEmbedder, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama embedder requires a model name")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	var client *api.Client
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &OllamaEmbedder{
		client: client,
		config: config,
	}, nil
}

// Embed implements Client.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.config.BatchSize) {
		resp, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.config.Model,
			Input: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embed failed: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(resp.Embeddings), len(batch))
		}
		for _, vec := range resp.Embeddings {
			if err := checkWidth(vec, e.config.Dimensions); err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

// EmbedSingle implements Client.
func (e *OllamaEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, e, text)
}

// Dimensions implements Client.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close implements Client.
func (e *OllamaEmbedder) Close() error {
	return nil
}
