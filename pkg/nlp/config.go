package nlp

import (
	"fmt"
	"net/url"

	"github.com/soundprediction/lorekeeper/pkg/config"
)

// Default configuration values
const (
	DefaultMaxTokens     = 8192
	DefaultMaxConcurrent = 1
)

// LLMConfig holds configuration for a single model endpoint.
type LLMConfig struct {
	// APIKey is the authentication key for accessing the LLM API.
	// Excluded from JSON serialization to prevent accidental exposure in logs/responses.
	APIKey string `json:"-"`

	// Model is the specific LLM model to use for generating responses
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL of the LLM API service
	BaseURL string `json:"base_url,omitempty"`

	// Temperature controls randomness in generation. Extraction runs at 0.
	Temperature float32 `json:"temperature"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// MaxConcurrent caps in-flight requests (local providers only)
	MaxConcurrent int `json:"max_concurrent,omitempty"`
}

// NewLLMConfig creates a new LLMConfig with default values
func NewLLMConfig() *LLMConfig {
	return &LLMConfig{
		MaxTokens:     DefaultMaxTokens,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

// FromModelConfig converts the file/env model section to an LLMConfig.
func FromModelConfig(m config.NLPModelConfig) *LLMConfig {
	c := NewLLMConfig().
		WithAPIKey(m.APIKey).
		WithModel(m.Model).
		WithBaseURL(m.BaseURL).
		WithTemperature(m.Temperature)
	if m.MaxTokens > 0 {
		c.WithMaxTokens(m.MaxTokens)
	}
	if m.MaxConcurrent > 0 {
		c.MaxConcurrent = m.MaxConcurrent
	}
	return c
}

// WithAPIKey sets the API key
func (c *LLMConfig) WithAPIKey(apiKey string) *LLMConfig {
	c.APIKey = apiKey
	return c
}

// WithModel sets the model
func (c *LLMConfig) WithModel(model string) *LLMConfig {
	c.Model = model
	return c
}

// WithBaseURL sets the base URL
func (c *LLMConfig) WithBaseURL(baseURL string) *LLMConfig {
	c.BaseURL = baseURL
	return c
}

// WithTemperature sets the temperature
func (c *LLMConfig) WithTemperature(temperature float32) *LLMConfig {
	c.Temperature = temperature
	return c
}

// WithMaxTokens sets the max tokens
func (c *LLMConfig) WithMaxTokens(maxTokens int) *LLMConfig {
	c.MaxTokens = maxTokens
	return c
}

// validateBaseURL validates the base URL format.
func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("baseURL cannot be empty")
	}

	// Validate URL format
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}

	// Ensure URL has a valid scheme
	if parsedURL.Scheme == "" {
		return fmt.Errorf("baseURL must include scheme (http:// or https://)")
	}

	// Ensure scheme is http or https
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme")
	}

	return nil
}
