package lorekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/lorekeeper/pkg/checkpoint"
	"github.com/soundprediction/lorekeeper/pkg/chunker"
	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/corpus"
	"github.com/soundprediction/lorekeeper/pkg/driver"
	"github.com/soundprediction/lorekeeper/pkg/extraction"
	"github.com/soundprediction/lorekeeper/pkg/merge"
	"github.com/soundprediction/lorekeeper/pkg/resolver"
	"github.com/soundprediction/lorekeeper/pkg/types"
	"github.com/soundprediction/lorekeeper/pkg/utils"
)

// fakeExtractor answers with the extraction registered for the first key
// contained in the chunk.
type fakeExtractor struct {
	mu      sync.Mutex
	answers map[string]*types.CandidateExtraction
	errs    map[string]error
	panics  string
	calls   atomic.Int64
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		answers: make(map[string]*types.CandidateExtraction),
		errs:    make(map[string]error),
	}
}

func (f *fakeExtractor) on(key string, c *types.CandidateExtraction) *fakeExtractor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[key] = c
	delete(f.errs, key)
	return f
}

func (f *fakeExtractor) fail(key string, err error) *fakeExtractor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
	return f
}

func (f *fakeExtractor) Extract(_ context.Context, chunk string) (*types.CandidateExtraction, error) {
	f.calls.Add(1)
	if f.panics != "" && strings.Contains(chunk, f.panics) {
		panic("model client exploded")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, err := range f.errs {
		if strings.Contains(chunk, key) {
			return nil, err
		}
	}
	for key, c := range f.answers {
		if strings.Contains(chunk, key) {
			return c, nil
		}
	}
	return &types.CandidateExtraction{}, nil
}

// fakeResolver resolves through a fixed synonym table. A raw name maps onto
// its synonym only once the synonym has been registered.
type fakeResolver struct {
	mu         sync.Mutex
	synonyms   map[string]string
	registered map[string]bool
	fails      string
}

func newFakeResolver(synonyms map[string]string) *fakeResolver {
	return &fakeResolver{synonyms: synonyms, registered: make(map[string]bool)}
}

func (r *fakeResolver) Resolve(_ context.Context, raw string) (string, error) {
	if r.fails != "" && raw == r.fails {
		return "", errors.New("resolution store unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := raw
	if s, ok := r.synonyms[raw]; ok && r.registered[s] {
		name = s
	}
	r.registered[name] = true
	return name, nil
}

func (r *fakeResolver) Lookup(_ context.Context, raw string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered[raw] {
		return raw, true, nil
	}
	if s, ok := r.synonyms[raw]; ok && r.registered[s] {
		return s, true, nil
	}
	return "", false, nil
}

type harness struct {
	graph     *driver.MemoryDriver
	extractor *fakeExtractor
	resolver  *fakeResolver
	chunker   *chunker.Chunker
}

func newHarness(t *testing.T, synonyms map[string]string) *harness {
	t.Helper()
	ch, err := chunker.New(2000, 20)
	require.NoError(t, err)
	return &harness{
		graph:     driver.NewMemoryDriver(),
		extractor: newFakeExtractor(),
		resolver:  newFakeResolver(synonyms),
		chunker:   ch,
	}
}

func (h *harness) pipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	p, err := NewPipeline(h.chunker, h.extractor, h.resolver, merge.New(h.graph, opts.Logger), opts)
	require.NoError(t, err)
	return p
}

const (
	dilucText   = "Diluc is the son of Crepus. Diluc was trapped in Dragonspine."
	deshretText = "Deshret ruled the desert long ago and built the great city of Aaru."
	kingText    = "King Deshret is said to have made a pact with the goddess of flowers."
)

func dilucExtraction() *types.CandidateExtraction {
	return &types.CandidateExtraction{
		Entities: []types.CandidateEntity{
			{CanonicalName: "Diluc", Label: "Person"},
			{CanonicalName: "Crepus", Label: "Person"},
			{CanonicalName: "Dragonspine", Label: "Location"},
		},
		Relationships: []types.CandidateRelationship{
			{Source: "Diluc", Target: "Crepus", Type: "CHILD_OF"},
			{Source: "Diluc", Target: "Dragonspine", Type: "TRAPPED_IN"},
		},
	}
}

func TestPipelineDilucScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{{ID: "mondstadt.txt", Content: dilucText}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocumentsProcessed)
	assert.Equal(t, 1, report.ChunksProcessed)
	assert.Equal(t, 3, report.Merge.EntitiesCreated)
	assert.Equal(t, 2, report.Merge.RelationshipsCreated)
	assert.Equal(t, 0, report.Merge.RelationshipsSkipped)
	assert.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)

	rels, err := h.graph.GetRelationships(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []types.Relationship{
		{Source: "Diluc", Target: "Crepus", Type: "CHILD_OF"},
		{Source: "Diluc", Target: "Dragonspine", Type: "TRAPPED_IN"},
	}, rels)

	doc, ok := h.graph.EdgeSource(types.Relationship{Source: "Diluc", Target: "Crepus", Type: "CHILD_OF"})
	require.True(t, ok)
	assert.Equal(t, "mondstadt.txt", doc)
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())
	p := h.pipeline(t, Options{})
	src := corpus.SliceSource{{ID: "mondstadt.txt", Content: dilucText}}

	_, err := p.Run(ctx, src)
	require.NoError(t, err)
	before, err := h.graph.Stats(ctx)
	require.NoError(t, err)

	report, err := p.Run(ctx, src)
	require.NoError(t, err)
	after, err := h.graph.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.EntityCount, after.EntityCount)
	assert.Equal(t, before.RelationshipCount, after.RelationshipCount)
	assert.Equal(t, 0, report.Merge.EntitiesCreated)
	assert.Equal(t, 3, report.Merge.EntitiesUpdated)
	assert.Equal(t, 0, report.Merge.RelationshipsCreated)
	assert.Equal(t, 2, report.Merge.RelationshipsExisting)
}

func TestPipelineAliasUnion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{"King Deshret": "Deshret"})
	h.extractor.
		on("Deshret ruled", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "Deshret", Label: "Character"}},
		}).
		on("King Deshret", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "King Deshret", Aliases: []string{"Al-Ahmar"}}},
		})
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{
		{ID: "a.txt", Content: deshretText},
		{ID: "b.txt", Content: kingText},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merge.EntitiesCreated)
	assert.Equal(t, 1, report.Merge.EntitiesUpdated)

	e, err := h.graph.GetEntity(ctx, "Deshret")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"King Deshret", "Al-Ahmar"}, e.Aliases)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, e.SourceRefs)
	assert.Equal(t, "Character", e.Label)

	_, err = h.graph.GetEntity(ctx, "King Deshret")
	assert.ErrorIs(t, err, driver.ErrEntityNotFound)
}

func TestPipelineEndpointsUseAliasesAndLookup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{"Scarlet King": "Al-Ahmar"})
	h.extractor.
		on("Deshret ruled", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "Al-Ahmar"}},
		}).
		on("King Deshret", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "Nabu Malikata", Aliases: []string{"Goddess of Flowers"}}},
			Relationships: []types.CandidateRelationship{
				// Scarlet King is not emitted in this chunk and is found by Lookup.
				{Source: "Scarlet King", Target: "Goddess of Flowers", Type: "ALLIED_WITH"},
			},
		})
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{
		{ID: "a.txt", Content: deshretText},
		{ID: "b.txt", Content: kingText},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merge.RelationshipsCreated)

	rels, err := h.graph.GetRelationships(ctx, "Al-Ahmar")
	require.NoError(t, err)
	assert.Equal(t, []types.Relationship{{Source: "Al-Ahmar", Target: "Nabu Malikata", Type: "ALLIED_WITH"}}, rels)
}

func TestPipelineMissingEndpointIsCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", &types.CandidateExtraction{
		Entities: []types.CandidateEntity{{CanonicalName: "Diluc"}},
		Relationships: []types.CandidateRelationship{
			{Source: "Diluc", Target: "Rhinedottir", Type: "ENEMY_OF"},
		},
	})
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{{ID: "mondstadt.txt", Content: dilucText}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ChunksProcessed)
	assert.Equal(t, 0, report.Merge.RelationshipsCreated)
	assert.Equal(t, 1, report.Merge.RelationshipsSkipped)
	require.Len(t, report.Merge.Skipped, 1)
	assert.Equal(t, types.SkipMissingTarget, report.Merge.Skipped[0].Reason)

	_, err = h.graph.GetEntity(ctx, "Rhinedottir")
	assert.ErrorIs(t, err, driver.ErrEntityNotFound)
}

func TestPipelineFailedChunkDoesNotStopRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.
		on("Diluc", dilucExtraction()).
		fail("Deshret", fmt.Errorf("parse response: %w", extraction.ErrMalformedOutput))
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{
		{ID: "desert.txt", Content: deshretText},
		{ID: "mondstadt.txt", Content: dilucText},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.DocumentsProcessed)
	assert.Equal(t, 1, report.ChunksProcessed)
	assert.Equal(t, 1, report.ChunksFailed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "desert.txt", report.Failures[0].DocumentID)
	assert.Equal(t, 0, report.Failures[0].ChunkIndex)
	assert.Equal(t, ReasonMalformedOutput, report.Failures[0].Reason)
	assert.Equal(t, 3, report.Merge.EntitiesCreated)
}

func TestPipelinePanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())
	h.extractor.panics = "Deshret"
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{
		{ID: "desert.txt", Content: deshretText},
		{ID: "mondstadt.txt", Content: dilucText},
	})
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, ReasonPanic, report.Failures[0].Reason)
	var panicErr *utils.PanicError
	assert.ErrorAs(t, report.Failures[0].Err, &panicErr)
	assert.Equal(t, 2, report.Merge.RelationshipsCreated)
}

func TestPipelineResolverFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())
	h.resolver.fails = "Dragonspine"
	p := h.pipeline(t, Options{})

	report, err := p.Run(ctx, corpus.SliceSource{{ID: "mondstadt.txt", Content: dilucText}})
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, ReasonResolver, report.Failures[0].Reason)
	assert.Equal(t, 0, report.Merge.EntitiesCreated)
}

// typeFailingGraph fails every relationship merge of one type.
type typeFailingGraph struct {
	*driver.MemoryDriver
	failType string
}

func (g typeFailingGraph) MergeRelationship(ctx context.Context, rel types.Relationship, sourceDoc string) (driver.MergeOutcome, error) {
	if rel.Type == g.failType {
		return 0, errors.New("neo4j connection reset")
	}
	return g.MemoryDriver.MergeRelationship(ctx, rel, sourceDoc)
}

func TestPipelinePartialMergeIsCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())
	logger := slog.New(slog.DiscardHandler)
	graph := typeFailingGraph{MemoryDriver: h.graph, failType: "TRAPPED_IN"}

	p, err := NewPipeline(h.chunker, h.extractor, h.resolver, merge.New(graph, logger), Options{Logger: logger})
	require.NoError(t, err)

	report, err := p.Run(ctx, corpus.SliceSource{{ID: "mondstadt.txt", Content: dilucText}})
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, ReasonMerge, report.Failures[0].Reason)
	assert.Equal(t, 0, report.ChunksProcessed)

	stats, err := h.graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.EntityCount)
	assert.Equal(t, int64(1), stats.RelationshipCount)
	assert.Equal(t, 3, report.Merge.EntitiesCreated)
	assert.Equal(t, 1, report.Merge.RelationshipsCreated)
}

func TestPipelineSkipsDocumentsWithoutContent(t *testing.T) {
	h := newHarness(t, nil)
	p := h.pipeline(t, Options{})

	report, err := p.Run(context.Background(), corpus.SliceSource{
		{ID: "empty.txt", Content: "   \n"},
		{ID: "short.txt", Content: "stub"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.DocumentsProcessed)
	assert.Equal(t, 2, report.DocumentsSkipped)
	assert.Zero(t, h.extractor.calls.Load())
}

func TestPipelineCorpusErrorIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	p := h.pipeline(t, Options{})

	_, err := p.Run(context.Background(), corpus.NewDirSource(filepath.Join(t.TempDir(), "missing"), ""))
	assert.Error(t, err)
}

func TestPipelineConcurrentChunks(t *testing.T) {
	ctx := context.Background()
	ch, err := chunker.New(120, 20)
	require.NoError(t, err)

	h := newHarness(t, nil)
	h.chunker = ch
	var next atomic.Int64
	extractor := extractorFunc(func(_ context.Context, chunk string) (*types.CandidateExtraction, error) {
		n := next.Add(1)
		return &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: fmt.Sprintf("Hilichurl %d", n)}, {CanonicalName: "Mondstadt"}},
		}, nil
	})

	content := strings.Repeat("The hilichurls gathered near Mondstadt at dusk. ", 20)
	want := ch.Count(content)
	require.Greater(t, want, 4)

	p, err := NewPipeline(ch, extractor, h.resolver, merge.New(h.graph, nil), Options{
		Concurrency: 4,
		Logger:      slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	report, err := p.Run(ctx, corpus.SliceSource{{ID: "hilichurls.txt", Content: content}})
	require.NoError(t, err)

	assert.Equal(t, want, report.ChunksProcessed)
	assert.Equal(t, want+1, report.Merge.EntitiesCreated)
	assert.Equal(t, want-1, report.Merge.EntitiesUpdated)

	stats, err := h.graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(want+1), stats.EntityCount)
}

func TestPipelineLedgerResume(t *testing.T) {
	ctx := context.Background()
	ledgerPath := filepath.Join(t.TempDir(), "ledger.json")
	src := corpus.SliceSource{
		{ID: "desert.txt", Content: deshretText},
		{ID: "mondstadt.txt", Content: dilucText},
	}

	h := newHarness(t, nil)
	h.extractor.on("Diluc", dilucExtraction())

	ledger, err := checkpoint.Open(ctx, ledgerPath)
	require.NoError(t, err)
	_, err = h.pipeline(t, Options{Ledger: ledger}).Run(ctx, src)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())
	calls := h.extractor.calls.Load()

	ledger, err = checkpoint.Open(ctx, ledgerPath)
	require.NoError(t, err)
	defer ledger.Close()

	report, err := h.pipeline(t, Options{Ledger: ledger, Resume: true}).Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ChunksResumed)
	assert.Equal(t, 0, report.ChunksProcessed)
	assert.Equal(t, calls, h.extractor.calls.Load())
}

func TestPipelineLedgerOnlyFailed(t *testing.T) {
	ctx := context.Background()
	ledger, err := checkpoint.Open(ctx, filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	defer ledger.Close()

	src := corpus.SliceSource{
		{ID: "desert.txt", Content: deshretText},
		{ID: "mondstadt.txt", Content: dilucText},
	}

	h := newHarness(t, nil)
	h.extractor.
		on("Diluc", dilucExtraction()).
		fail("Deshret", fmt.Errorf("call model: %w", extraction.ErrModelUnavailable))

	report, err := h.pipeline(t, Options{Ledger: ledger}).Run(ctx, src)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, ReasonModelUnavailable, report.Failures[0].Reason)

	done, failed := ledger.Counts()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, failed)

	h.extractor.on("Deshret", &types.CandidateExtraction{
		Entities: []types.CandidateEntity{{CanonicalName: "Deshret"}},
	})
	report, err = h.pipeline(t, Options{Ledger: ledger, OnlyFailed: true}).Run(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ChunksProcessed)
	assert.Equal(t, 1, report.ChunksSkipped)
	assert.Empty(t, report.Failures)
	assert.Empty(t, ledger.Failed())

	_, err = h.graph.GetEntity(ctx, "Deshret")
	assert.NoError(t, err)
}

func TestPipelineOnlyFailedHonorsMaxAttempts(t *testing.T) {
	ctx := context.Background()
	ledger, err := checkpoint.Open(ctx, filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	defer ledger.Close()

	src := corpus.SliceSource{{ID: "desert.txt", Content: deshretText}}
	h := newHarness(t, nil)
	h.extractor.fail("Deshret", fmt.Errorf("call model: %w", extraction.ErrModelUnavailable))

	_, err = h.pipeline(t, Options{Ledger: ledger}).Run(ctx, src)
	require.NoError(t, err)

	retry := h.pipeline(t, Options{Ledger: ledger, OnlyFailed: true, MaxAttempts: 2})
	report, err := retry.Run(ctx, src)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), h.extractor.calls.Load())

	// Two attempts recorded: the chunk is no longer retried.
	report, err = retry.Run(ctx, src)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.ChunksSkipped)
	assert.Equal(t, int64(2), h.extractor.calls.Load())

	failed := ledger.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].AttemptCount)
}

func TestPipelineWithVectorResolver(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.extractor.
		on("Deshret ruled", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "Deshret"}},
		}).
		on("King Deshret", &types.CandidateExtraction{
			Entities: []types.CandidateEntity{{CanonicalName: "King Deshret"}},
		})

	res, err := resolver.New(resolver.NewMemoryStore(), vectorEmbedder{
		"Deshret":      {1, 0, 0},
		"King Deshret": {0.98, 0.2, 0},
	}, resolver.Options{Threshold: 0.85})
	require.NoError(t, err)

	p, err := NewPipeline(h.chunker, h.extractor, res, merge.New(h.graph, nil), Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	report, err := p.Run(ctx, corpus.SliceSource{
		{ID: "a.txt", Content: deshretText},
		{ID: "b.txt", Content: kingText},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merge.EntitiesCreated)

	e, err := h.graph.GetEntity(ctx, "Deshret")
	require.NoError(t, err)
	assert.Equal(t, []string{"King Deshret"}, e.Aliases)
}

func TestNewPipelineValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := NewPipeline(nil, h.extractor, h.resolver, merge.New(h.graph, nil), Options{})
	assert.Error(t, err)

	_, err = NewPipeline(h.chunker, h.extractor, h.resolver, merge.New(h.graph, nil), Options{Resume: true})
	assert.Error(t, err)

	p, err := NewPipeline(h.chunker, h.extractor, h.resolver, merge.New(h.graph, nil), Options{Concurrency: -3})
	require.NoError(t, err)
	assert.Equal(t, 1, p.concurrency)
	assert.Nil(t, p.Graph())
	assert.NoError(t, p.Close())
}

func TestOpenGraphConnectionError(t *testing.T) {
	_, err := OpenGraph(context.Background(), config.DatabaseConfig{Driver: "flatfile"})

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "graph", connErr.Store)
	assert.Contains(t, err.Error(), "graph store")
}

func TestOpenGraphMemory(t *testing.T) {
	g, err := OpenGraph(context.Background(), config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, driver.GraphProviderMemory, g.Provider())
	assert.NoError(t, g.Close())
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"malformed", &stageError{stage: stageExtract, err: extraction.ErrMalformedOutput}, ReasonMalformedOutput},
		{"unavailable", &stageError{stage: stageExtract, err: extraction.ErrModelUnavailable}, ReasonModelUnavailable},
		{"resolver", &stageError{stage: stageResolve, err: errors.New("boom")}, ReasonResolver},
		{"merge", &stageError{stage: stageMerge, err: errors.New("boom")}, ReasonMerge},
		{"panic", &utils.PanicError{Value: "boom"}, ReasonPanic},
		{"canceled", &stageError{stage: stageMerge, err: context.Canceled}, ReasonCanceled},
		{"prompt", &stageError{stage: stageExtract, err: &extraction.ExtractionError{Kind: extraction.KindPrompt}}, ReasonInternal},
		{"unclassified", errors.New("boom"), ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureReason(tt.err))
		})
	}
}

type extractorFunc func(ctx context.Context, chunk string) (*types.CandidateExtraction, error)

func (f extractorFunc) Extract(ctx context.Context, chunk string) (*types.CandidateExtraction, error) {
	return f(ctx, chunk)
}

// vectorEmbedder returns fixed vectors by text.
type vectorEmbedder map[string][]float32

func (v vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := v[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		out[i] = vec
	}
	return out, nil
}

func (v vectorEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := v.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (v vectorEmbedder) Dimensions() int { return 3 }
func (v vectorEmbedder) Close() error    { return nil }
