package nlp

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidModel means the model section names no usable model.
	ErrInvalidModel = errors.New("invalid model specified")

	// ErrUnknownProvider means the configured provider is not supported.
	ErrUnknownProvider = errors.New("unknown model provider")
)

// RateLimitError is a provider refusing a call for rate or quota reasons
// (HTTP 429, RESOURCE_EXHAUSTED). The retry client always retries it.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s rate limit exceeded", e.Provider)
	}
	return fmt.Sprintf("%s rate limit exceeded: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is matches any *RateLimitError, so errors.Is(err, &RateLimitError{}) works.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError wraps a provider error that signalled rate limiting.
func NewRateLimitError(provider string, err error) *RateLimitError {
	return &RateLimitError{Provider: provider, Err: err}
}

// rateLimited wraps err in a *RateLimitError when limited is true.
func rateLimited(provider string, err error, limited bool) error {
	if limited {
		return NewRateLimitError(provider, err)
	}
	return err
}

func isTooManyRequests(code int) bool {
	return code == http.StatusTooManyRequests
}

// RefusalError means the model declined to answer the prompt.
type RefusalError struct {
	Message string
}

func (e *RefusalError) Error() string {
	return e.Message
}

func (e *RefusalError) Is(target error) bool {
	_, ok := target.(*RefusalError)
	return ok
}

// NewRefusalError creates a refusal error carrying the model's explanation.
func NewRefusalError(message string) *RefusalError {
	return &RefusalError{Message: message}
}

// EmptyResponseError means the provider answered without any content.
type EmptyResponseError struct {
	Message string
}

func (e *EmptyResponseError) Error() string {
	return e.Message
}

func (e *EmptyResponseError) Is(target error) bool {
	_, ok := target.(*EmptyResponseError)
	return ok
}

// NewEmptyResponseError creates an empty response error.
func NewEmptyResponseError(message string) *EmptyResponseError {
	return &EmptyResponseError{Message: message}
}
