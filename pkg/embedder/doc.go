// Package embedder provides text embedding clients used for entity resolution.
//
// # Supported Providers
//
//   - OpenAI: text-embedding-3-small and other OpenAI-compatible embedding endpoints
//   - Ollama: local embedding models such as nomic-embed-text
//
// # Usage
//
//	client, err := embedder.NewClient(cfg.NLP.Models[config.ModelEmbedding])
//	if err != nil {
//		return err
//	}
//	vec, err := client.EmbedSingle(ctx, "King Deshret")
//
// Every vector a client returns has exactly Dimensions() components;
// implementations reject provider answers of a different width.
package embedder
