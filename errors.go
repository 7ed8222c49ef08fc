package lorekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/soundprediction/lorekeeper/pkg/extraction"
	"github.com/soundprediction/lorekeeper/pkg/utils"
)

// ConnectionError reports a store that could not be reached at startup.
// It is fatal: no chunk can be processed without the graph or resolution store.
type ConnectionError struct {
	Store string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s store: %v", e.Store, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Chunk failure reasons.
const (
	ReasonMalformedOutput  = "malformed_output"
	ReasonModelUnavailable = "model_unavailable"
	ReasonResolver         = "resolver_error"
	ReasonMerge            = "merge_error"
	ReasonPanic            = "panic"
	ReasonCanceled         = "canceled"
	// ReasonInternal covers errors no other reason accounts for.
	ReasonInternal = "internal"
)

// stage names the step of ProcessChunk that failed.
type stage string

const (
	stageExtract stage = "extract"
	stageResolve stage = "resolve"
	stageMerge   stage = "merge"
)

// stageError tags an error with the step that produced it.
type stageError struct {
	stage stage
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

// FailureReason classifies an error returned by ProcessChunk.
func FailureReason(err error) string {
	var panicErr *utils.PanicError
	var se *stageError
	switch {
	case errors.As(err, &panicErr):
		return ReasonPanic
	case errors.Is(err, extraction.ErrMalformedOutput):
		return ReasonMalformedOutput
	case errors.Is(err, extraction.ErrModelUnavailable):
		return ReasonModelUnavailable
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.As(err, &se) && se.stage == stageResolve:
		return ReasonResolver
	case errors.As(err, &se) && se.stage == stageMerge:
		return ReasonMerge
	default:
		return ReasonInternal
	}
}

// ChunkFailure records a chunk that was skipped because processing failed.
type ChunkFailure struct {
	DocumentID string `json:"document_id" yaml:"document_id"`
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`
	Reason     string `json:"reason" yaml:"reason"`
	Message    string `json:"message" yaml:"message"`
	Err        error  `json:"-" yaml:"-"`
}

func newChunkFailure(documentID string, index int, err error) ChunkFailure {
	return ChunkFailure{
		DocumentID: documentID,
		ChunkIndex: index,
		Reason:     FailureReason(err),
		Message:    err.Error(),
		Err:        err,
	}
}
