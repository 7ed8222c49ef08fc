// Package merge folds resolved extraction results into the lore graph.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/lorekeeper/pkg/driver"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// Engine writes one chunk's entities and relationships through a graph driver.
// Every write is an idempotent merge, so chunks may be merged concurrently and
// re-merged without duplicating nodes or edges.
type Engine struct {
	store  driver.Merger
	logger *slog.Logger
}

// New creates a merge engine over store.
func New(store driver.Merger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Merge upserts entities first, then relationships between them.
// Relationships with a missing endpoint or a self-loop are reported in
// MergeResult.Skipped. A store error aborts the merge and returns the counts
// accumulated so far.
func (e *Engine) Merge(ctx context.Context, entities []types.ResolvedEntity, rels []types.ResolvedRelationship, sourceDoc string) (*types.MergeResult, error) {
	result := &types.MergeResult{}

	for _, entity := range FoldEntities(entities, sourceDoc) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		created, err := e.store.UpsertEntity(ctx, entity)
		if err != nil {
			return result, fmt.Errorf("merge entity %q: %w", entity.Name, err)
		}
		if created {
			result.EntitiesCreated++
		} else {
			result.EntitiesUpdated++
		}
	}

	seen := make(map[types.RelationshipKey]struct{}, len(rels))
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, dup := seen[rel.Key()]; dup {
			continue
		}
		seen[rel.Key()] = struct{}{}

		if err := rel.Validate(); err != nil {
			e.skip(result, rel, types.SkipInvalid, sourceDoc)
			continue
		}
		if rel.Source == rel.Target {
			e.skip(result, rel, types.SkipSelfLoop, sourceDoc)
			continue
		}

		outcome, err := e.store.MergeRelationship(ctx, rel, sourceDoc)
		if err != nil {
			return result, fmt.Errorf("merge relationship %s-[%s]->%s: %w", rel.Source, rel.Type, rel.Target, err)
		}
		switch outcome {
		case driver.OutcomeCreated:
			result.RelationshipsCreated++
		case driver.OutcomeExisting:
			result.RelationshipsExisting++
		case driver.OutcomeMissingSource:
			e.skip(result, rel, types.SkipMissingSource, sourceDoc)
		case driver.OutcomeMissingTarget:
			e.skip(result, rel, types.SkipMissingTarget, sourceDoc)
		case driver.OutcomeMissingBoth:
			e.skip(result, rel, types.SkipMissingBoth, sourceDoc)
		default:
			return result, fmt.Errorf("unexpected merge outcome %v", outcome)
		}
	}

	return result, nil
}

func (e *Engine) skip(result *types.MergeResult, rel types.Relationship, reason, sourceDoc string) {
	result.RelationshipsSkipped++
	result.Skipped = append(result.Skipped, types.SkippedRelationship{Relationship: rel, Reason: reason})
	e.logger.Debug("relationship skipped",
		"source", rel.Source,
		"target", rel.Target,
		"type", rel.Type,
		"reason", reason,
		"document", sourceDoc)
}

// FoldEntities collapses resolved entities that share a canonical name.
// The raw name is kept as an alias when it differs from the canonical name,
// the first non-empty label wins, and order of first appearance is preserved.
func FoldEntities(entities []types.ResolvedEntity, sourceDoc string) []*types.Entity {
	var refs []string
	if sourceDoc != "" {
		refs = []string{sourceDoc}
	}

	byName := make(map[string]*types.Entity, len(entities))
	out := make([]*types.Entity, 0, len(entities))
	for _, re := range entities {
		if re.Name == "" {
			continue
		}
		folded, ok := byName[re.Name]
		if !ok {
			folded = &types.Entity{Name: re.Name, Aliases: []string{}, SourceRefs: refs}
			byName[re.Name] = folded
			out = append(out, folded)
		}
		for _, alias := range append([]string{re.RawName}, re.Aliases...) {
			if alias != re.Name {
				folded.Aliases = types.UnionStrings(folded.Aliases, alias)
			}
		}
		if folded.Label == "" {
			folded.Label = re.Label
		}
	}
	return out
}
