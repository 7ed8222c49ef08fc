// Package nlp provides language model clients used by the extraction adapter.
//
// The Client interface is implemented for OpenAI (and OpenAI-compatible
// servers), Ollama, Google Gemini and Anthropic. Every client supports
// structured output: the caller passes a JSON Schema and the provider
// constrains its answer to it as far as the API allows.
//
// # Client Wrappers
//
//   - RetryClient: retry transient failures with exponential backoff
//   - CircuitBreakerClient: stop calling an endpoint that keeps failing
//   - TokenTrackingClient: tally token usage per run, optionally to Parquet
//
// # Usage
//
//	client, err := nlp.NewClient(ctx, cfg.NLP.Models[config.ModelExtraction])
//	if err != nil {
//		return err
//	}
//	client = nlp.Wrap(client, cfg.Retry, cfg.CircuitBreaker, "extraction", logger)
//	resp, err := client.ChatWithStructuredOutput(ctx, messages, schema)
//
// # Error Handling
//
// RateLimitError, RefusalError and EmptyResponseError support errors.Is()
// for type checking through wrapped errors.
package nlp
