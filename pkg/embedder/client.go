package embedder

import (
	"context"
	"fmt"

	"github.com/soundprediction/lorekeeper/pkg/config"
)

// Client generates embeddings for text.
type Client interface {
	// Embed generates embeddings for the given texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the number of dimensions in the embeddings.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds configuration for embedding clients.
type Config struct {
	Model      string `json:"model"`
	APIKey     string `json:"-"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions"`
	// BatchSize caps the number of texts per request.
	BatchSize int `json:"batch_size,omitempty"`
}

const defaultBatchSize = 64

// NewClient creates the embedding client named by m.Provider.
func NewClient(m config.NLPModelConfig) (Client, error) {
	cfg := &Config{
		Model:      m.Model,
		APIKey:     m.APIKey,
		BaseURL:    m.BaseURL,
		Dimensions: m.Dimensions,
	}
	switch m.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", m.Provider)
	}
}

// embedSingle adapts a batch call to a single text.
func embedSingle(ctx context.Context, c Client, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// batches splits texts into consecutive groups of at most size.
func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}

func checkWidth(vec []float32, dims int) error {
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), dims)
	}
	return nil
}
