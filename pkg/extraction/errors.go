package extraction

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	// KindMalformedOutput means the model answered with unparseable or incomplete JSON.
	KindMalformedOutput ErrorKind = "malformed_output"
	// KindModelUnavailable means the model call failed or timed out.
	KindModelUnavailable ErrorKind = "model_unavailable"
	// KindPrompt means the extraction prompt could not be rendered.
	KindPrompt ErrorKind = "prompt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrMalformedOutput  = errors.New("model output is malformed")
	ErrModelUnavailable = errors.New("model is unavailable")
)

// ExtractionError reports why a chunk produced no candidate set.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
	// Raw is the model output, when there was one.
	Raw string
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels and other ExtractionErrors of the same kind.
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrMalformedOutput:
		return e.Kind == KindMalformedOutput
	case ErrModelUnavailable:
		return e.Kind == KindModelUnavailable
	}
	t, ok := target.(*ExtractionError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

func malformed(raw string, err error) *ExtractionError {
	return &ExtractionError{Kind: KindMalformedOutput, Err: err, Raw: raw}
}

func unavailable(err error) *ExtractionError {
	return &ExtractionError{Kind: KindModelUnavailable, Err: err}
}
