package embedder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/embedder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		requests++

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lore-embed", req.Model)

		// Answer out of order to exercise index mapping.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	e, err := embedder.NewOpenAIEmbedder(&embedder.Config{
		Model:      "lore-embed",
		BaseURL:    server.URL,
		Dimensions: 3,
		BatchSize:  2,
	})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1, 0}, {2, 1, 0}, {3, 1, 0}}, vecs)
	assert.Equal(t, 2, requests)

	vec, err := e.EmbedSingle(context.Background(), "Deshret")
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 1, 0}, vec)
	assert.Equal(t, 3, e.Dimensions())
}

func TestOpenAIEmbedderRejectsWrongWidth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,2]}]}`))
	}))
	defer server.Close()

	e, err := embedder.NewOpenAIEmbedder(&embedder.Config{Model: "m", BaseURL: server.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.EmbedSingle(context.Background(), "x")
	assert.ErrorContains(t, err, "expected 3")
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embeddings := make([][]float32, len(req.Input))
		for i := range req.Input {
			embeddings[i] = []float32{0, 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})
	}))
	defer server.Close()

	e, err := embedder.NewOllamaEmbedder(&embedder.Config{Model: "nomic-embed-text", BaseURL: server.URL, Dimensions: 2})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"Al-Ahmar", "Scarlet King"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestNewClient(t *testing.T) {
	c, err := embedder.NewClient(config.NLPModelConfig{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434", Dimensions: 768})
	require.NoError(t, err)
	assert.Equal(t, 768, c.Dimensions())

	_, err = embedder.NewClient(config.NLPModelConfig{Provider: "embedeverything"})
	assert.Error(t, err)

	_, err = embedder.NewClient(config.NLPModelConfig{Provider: "ollama"})
	assert.Error(t, err)
}
