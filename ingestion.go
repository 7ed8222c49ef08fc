package lorekeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/lorekeeper/pkg/checkpoint"
	"github.com/soundprediction/lorekeeper/pkg/corpus"
	"github.com/soundprediction/lorekeeper/pkg/types"
	"github.com/soundprediction/lorekeeper/pkg/utils"
)

// chunkResult is the outcome of one chunk inside ProcessDocument.
type chunkResult struct {
	index    int
	merge    *types.MergeResult
	rejected int
	err      error
	// skipped is set for chunks the ledger said not to process.
	skipped skipKind
}

type skipKind int

const (
	notSkipped skipKind = iota
	skipResumed
	skipNotFailed
)

// DocumentReport summarizes one document.
type DocumentReport struct {
	DocumentID            string
	Skipped               bool
	ChunksProcessed       int
	ChunksResumed         int
	ChunksSkipped         int
	RelationshipsRejected int
	Merge                 types.MergeResult
	Failures              []ChunkFailure
}

// Run processes every document of src and returns the run report. Chunk
// failures are recorded in the report; only a corpus read error or a canceled
// context ends the run early.
func (p *Pipeline) Run(ctx context.Context, src corpus.Source) (*RunReport, error) {
	report := newRunReport(uuid.NewString())
	ctx = context.WithValue(ctx, types.ContextKeyRunID, report.RunID)

	p.logger.Info("starting extraction run", "run_id", report.RunID, "concurrency", p.concurrency)

	for doc, err := range src.Documents(ctx) {
		if err != nil {
			report.finish(p.tracker)
			return report, fmt.Errorf("failed to read corpus: %w", err)
		}

		docReport, err := p.ProcessDocument(ctx, doc)
		if docReport != nil {
			report.addDocument(docReport)
		}
		if err != nil {
			report.finish(p.tracker)
			return report, err
		}
	}

	report.finish(p.tracker)
	p.logger.Info("extraction run complete",
		"run_id", report.RunID,
		"documents", report.DocumentsProcessed,
		"chunks", report.ChunksProcessed,
		"failed", report.ChunksFailed,
		"entities_created", report.Merge.EntitiesCreated,
		"relationships_created", report.Merge.RelationshipsCreated,
		"relationships_skipped", report.Merge.RelationshipsSkipped,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// ProcessDocument chunks doc and processes each chunk. Documents without
// enough content are skipped. The returned error is only non-nil when ctx is
// done; chunk failures are reported in the DocumentReport.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc types.Document) (*DocumentReport, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	report := &DocumentReport{DocumentID: doc.ID}
	if !p.chunker.IsContent(doc.Content) {
		p.logger.Debug("skipping document without content", "document_id", doc.ID)
		report.Skipped = true
		return report, nil
	}

	var results []chunkResult
	if p.concurrency > 1 {
		results = p.processParallel(ctx, doc)
	} else {
		for idx, chunk := range p.chunker.Chunks(doc.Content) {
			if ctx.Err() != nil {
				break
			}
			results = append(results, p.runChunk(ctx, doc.ID, idx, chunk))
		}
	}

	for _, r := range results {
		switch r.skipped {
		case skipResumed:
			report.ChunksResumed++
			continue
		case skipNotFailed:
			report.ChunksSkipped++
			continue
		}
		report.RelationshipsRejected += r.rejected
		// A failed merge may still have written part of the chunk.
		report.Merge.Add(r.merge)
		if r.err != nil {
			report.Failures = append(report.Failures, newChunkFailure(doc.ID, r.index, r.err))
			continue
		}
		report.ChunksProcessed++
	}

	p.logger.Info("processed document",
		"document_id", doc.ID,
		"chunks", report.ChunksProcessed,
		"failed", len(report.Failures),
		"resumed", report.ChunksResumed,
		"entities_created", report.Merge.EntitiesCreated,
		"relationships_created", report.Merge.RelationshipsCreated)
	return report, ctx.Err()
}

// processParallel runs the chunks of doc through a bounded errgroup. Results
// keep chunk order.
func (p *Pipeline) processParallel(ctx context.Context, doc types.Document) []chunkResult {
	results := make([]chunkResult, p.chunker.Count(doc.Content))
	filled := make([]bool, len(results))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for idx, chunk := range p.chunker.Chunks(doc.Content) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := p.runChunk(gctx, doc.ID, idx, chunk)
			mu.Lock()
			results[idx] = r
			filled[idx] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for i, r := range results {
		if filled[i] {
			out = append(out, r)
		}
	}
	return out
}

// runChunk consults the ledger, processes one chunk and records its outcome.
func (p *Pipeline) runChunk(ctx context.Context, docID string, idx int, chunk string) chunkResult {
	var hash string
	if p.ledger != nil {
		hash = checkpoint.ChunkHash(docID, chunk)
		if p.onlyFailed {
			rec, seen := p.ledger.Get(hash)
			if !seen || !rec.CanRetry(p.maxAttempts) {
				return chunkResult{index: idx, skipped: skipNotFailed}
			}
		} else if p.resume && p.ledger.IsDone(hash) {
			return chunkResult{index: idx, skipped: skipResumed}
		}
	}

	result, rejected, err := p.processChunk(ctx, docID, idx, chunk)
	r := chunkResult{index: idx, merge: result, rejected: rejected, err: err}

	chunkCtx := types.WithChunk(ctx, docID, idx)
	if err != nil {
		p.logger.WarnContext(chunkCtx, "chunk skipped",
			"document_id", docID,
			"chunk_index", idx,
			"reason", FailureReason(err),
			"error", err)
	}

	if p.ledger != nil && ctx.Err() == nil {
		var ledgerErr error
		if err != nil {
			ledgerErr = p.ledger.MarkFailed(docID, idx, hash, FailureReason(err))
		} else {
			ledgerErr = p.ledger.MarkDone(docID, idx, hash)
		}
		if ledgerErr != nil {
			p.logger.WarnContext(chunkCtx, "failed to update ledger", "error", ledgerErr)
		}
	}
	return r
}

// ProcessChunk extracts, resolves and merges a single chunk. Any failure,
// including a panic in one of the stages, is returned as an error and leaves
// other chunks unaffected.
func (p *Pipeline) ProcessChunk(ctx context.Context, docID string, idx int, chunk string) (*types.MergeResult, error) {
	result, _, err := p.processChunk(ctx, docID, idx, chunk)
	return result, err
}

func (p *Pipeline) processChunk(ctx context.Context, docID string, idx int, chunk string) (result *types.MergeResult, rejected int, err error) {
	defer utils.RecoverAsError(&err)

	ctx = types.WithChunk(ctx, docID, idx)
	start := time.Now()

	candidates, err := p.extractor.Extract(ctx, chunk)
	if err != nil {
		return nil, 0, &stageError{stage: stageExtract, err: err}
	}
	if candidates == nil {
		candidates = &types.CandidateExtraction{}
	}
	rejected = len(candidates.Rejected)
	for _, r := range candidates.Rejected {
		p.logger.DebugContext(ctx, "relationship rejected",
			"source", r.Relationship.Source,
			"target", r.Relationship.Target,
			"type", r.Relationship.Type,
			"reason", r.Reason)
	}

	entities, canonical, err := p.resolveEntities(ctx, candidates.Entities)
	if err != nil {
		return nil, rejected, &stageError{stage: stageResolve, err: err}
	}

	rels, err := p.resolveRelationships(ctx, candidates.Relationships, canonical)
	if err != nil {
		return nil, rejected, &stageError{stage: stageResolve, err: err}
	}

	result, err = p.merger.Merge(ctx, entities, rels, docID)
	if err != nil {
		return result, rejected, &stageError{stage: stageMerge, err: err}
	}

	p.logger.DebugContext(ctx, "processed chunk",
		"document_id", docID,
		"chunk_index", idx,
		"entities", len(entities),
		"relationships", len(rels),
		"duration", time.Since(start))
	return result, rejected, nil
}

// resolveEntities maps each candidate onto its canonical name. The returned
// map sends every raw name and alias seen in the chunk to its canonical name.
func (p *Pipeline) resolveEntities(ctx context.Context, candidates []types.CandidateEntity) ([]types.ResolvedEntity, map[string]string, error) {
	entities := make([]types.ResolvedEntity, 0, len(candidates))
	canonical := make(map[string]string, len(candidates))

	for _, c := range candidates {
		raw := strings.TrimSpace(c.CanonicalName)
		if raw == "" {
			continue
		}
		name, err := p.resolver.Resolve(ctx, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve %q: %w", raw, err)
		}

		entities = append(entities, types.ResolvedEntity{
			Name:    name,
			RawName: raw,
			Aliases: c.Aliases,
			Label:   c.Label,
		})
		canonical[raw] = name
		for _, alias := range c.Aliases {
			alias = strings.TrimSpace(alias)
			if _, taken := canonical[alias]; alias != "" && !taken {
				canonical[alias] = name
			}
		}
	}
	return entities, canonical, nil
}

// resolveRelationships rewrites relationship endpoints to canonical names.
// Endpoints that were not emitted as entities in this chunk are looked up
// without registration; unknown ones keep their raw name and are later
// reported as missing by the merge engine.
func (p *Pipeline) resolveRelationships(ctx context.Context, candidates []types.CandidateRelationship, canonical map[string]string) ([]types.ResolvedRelationship, error) {
	endpoint := func(raw string) (string, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return "", nil
		}
		if name, ok := canonical[raw]; ok {
			return name, nil
		}
		name, found, err := p.resolver.Lookup(ctx, raw)
		if err != nil {
			return "", fmt.Errorf("failed to look up %q: %w", raw, err)
		}
		if !found {
			name = raw
		}
		canonical[raw] = name
		return name, nil
	}

	rels := make([]types.ResolvedRelationship, 0, len(candidates))
	for _, c := range candidates {
		source, err := endpoint(c.Source)
		if err != nil {
			return nil, err
		}
		target, err := endpoint(c.Target)
		if err != nil {
			return nil, err
		}
		rels = append(rels, types.ResolvedRelationship{Source: source, Target: target, Type: c.Type})
	}
	return rels, nil
}
