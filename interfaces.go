package lorekeeper

import (
	"context"

	"github.com/soundprediction/lorekeeper/pkg/extraction"
	"github.com/soundprediction/lorekeeper/pkg/merge"
	"github.com/soundprediction/lorekeeper/pkg/resolver"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// The pipeline depends on these narrow interfaces rather than on concrete
// packages so each stage can be replaced in tests.

// Extractor turns one chunk of text into a validated candidate set.
type Extractor interface {
	// Extract calls the model once for chunk. Errors are recoverable and
	// classified by the extraction package.
	Extract(ctx context.Context, chunk string) (*types.CandidateExtraction, error)
}

// EntityResolver maps raw entity names onto canonical names.
type EntityResolver interface {
	// Resolve returns the canonical name for raw, registering raw as a new
	// canonical name when nothing similar enough exists.
	Resolve(ctx context.Context, raw string) (string, error)

	// Lookup returns the canonical name for raw without registering anything.
	Lookup(ctx context.Context, raw string) (string, bool, error)
}

// GraphMerger writes resolved entities and relationships idempotently.
type GraphMerger interface {
	Merge(ctx context.Context, entities []types.ResolvedEntity, rels []types.ResolvedRelationship, sourceDoc string) (*types.MergeResult, error)
}

var (
	_ Extractor      = (*extraction.Extractor)(nil)
	_ EntityResolver = (*resolver.Resolver)(nil)
	_ GraphMerger    = (*merge.Engine)(nil)
)
