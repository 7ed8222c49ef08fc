package lorekeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/soundprediction/lorekeeper/pkg/checkpoint"
	"github.com/soundprediction/lorekeeper/pkg/chunker"
	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/driver"
	"github.com/soundprediction/lorekeeper/pkg/embedder"
	"github.com/soundprediction/lorekeeper/pkg/extraction"
	"github.com/soundprediction/lorekeeper/pkg/merge"
	"github.com/soundprediction/lorekeeper/pkg/nlp"
	"github.com/soundprediction/lorekeeper/pkg/resolver"
)

// ConnectTimeout bounds the startup connectivity check of the graph store.
const ConnectTimeout = 30 * time.Second

// Options configures a Pipeline built with NewPipeline.
type Options struct {
	// Concurrency is the number of chunks of one document processed at once.
	// Values below 2 process chunks sequentially.
	Concurrency int
	// Ledger, when set, records chunk outcomes.
	Ledger *checkpoint.Manager
	// Resume skips chunks the ledger records as done.
	Resume bool
	// OnlyFailed processes only chunks the ledger records as failed.
	OnlyFailed bool
	// MaxAttempts stops OnlyFailed from retrying a chunk the ledger has
	// already attempted this many times. Zero means no limit.
	MaxAttempts int
	// Tracker, when set, supplies token totals for the run report.
	Tracker *nlp.TokenTracker
	Logger  *slog.Logger
}

// Pipeline runs documents through chunking, extraction, resolution and merge.
type Pipeline struct {
	chunker   *chunker.Chunker
	extractor Extractor
	resolver  EntityResolver
	merger    GraphMerger
	graph     driver.GraphDriver

	ledger      *checkpoint.Manager
	resume      bool
	onlyFailed  bool
	maxAttempts int
	concurrency int
	tracker     *nlp.TokenTracker

	// closers are released in reverse order by Close.
	closers []io.Closer
	logger  *slog.Logger
}

// NewPipeline assembles a pipeline from already constructed stages.
func NewPipeline(ch *chunker.Chunker, ex Extractor, res EntityResolver, merger GraphMerger, opts Options) (*Pipeline, error) {
	if ch == nil || ex == nil || res == nil || merger == nil {
		return nil, errors.New("pipeline requires a chunker, extractor, resolver and merger")
	}
	if (opts.Resume || opts.OnlyFailed) && opts.Ledger == nil {
		return nil, errors.New("resume and only-failed require a ledger")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		chunker:     ch,
		extractor:   ex,
		resolver:    res,
		merger:      merger,
		ledger:      opts.Ledger,
		resume:      opts.Resume,
		onlyFailed:  opts.OnlyFailed,
		maxAttempts: opts.MaxAttempts,
		concurrency: opts.Concurrency,
		tracker:     opts.Tracker,
		logger:      opts.Logger,
	}, nil
}

// New builds a pipeline from configuration. A graph or resolution store that
// cannot be reached returns a *ConnectionError.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var closers []io.Closer
	fail := func(err error) (*Pipeline, error) {
		closeAll(closers)
		return nil, err
	}

	graph, err := OpenGraph(ctx, cfg.Database)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, graph)

	res, resCloser, err := OpenResolver(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, resCloser)

	client, tracker, err := openModel(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, client)

	ex, err := extraction.New(client, extraction.Options{
		Rules:      extraction.RulesFromConfig(cfg.Extraction.Rules),
		Timeout:    cfg.Extraction.Timeout,
		RepairJSON: cfg.Extraction.RepairJSON,
		Logger:     logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create extractor: %w", err))
	}

	ch, err := chunker.New(cfg.Extraction.MaxChars, cfg.Extraction.MinContent, chunker.WithBoundaries(cfg.Extraction.Boundaries))
	if err != nil {
		return fail(fmt.Errorf("failed to create chunker: %w", err))
	}

	var ledger *checkpoint.Manager
	if cfg.Pipeline.LedgerPath != "" {
		if ledger, err = checkpoint.Open(ctx, cfg.Pipeline.LedgerPath); err != nil {
			return fail(err)
		}
		closers = append(closers, ledger)
	}

	p, err := NewPipeline(ch, ex, res, merge.New(graph, logger), Options{
		Concurrency: cfg.Pipeline.Concurrency,
		Ledger:      ledger,
		Resume:      cfg.Pipeline.Resume,
		OnlyFailed:  cfg.Pipeline.OnlyFailed,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Tracker:     tracker,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	p.graph = graph
	p.closers = closers

	logger.Info("pipeline ready",
		"graph", graph.Provider(),
		"resolver_backend", cfg.Resolver.Backend,
		"threshold", res.Threshold(),
		"concurrency", p.concurrency,
		"ledger", cfg.Pipeline.LedgerPath)
	return p, nil
}

// OpenGraph connects to the configured graph store and ensures its schema.
func OpenGraph(ctx context.Context, cfg config.DatabaseConfig) (driver.GraphDriver, error) {
	graph, err := driver.New(cfg)
	if err != nil {
		return nil, &ConnectionError{Store: "graph", Err: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := graph.VerifyConnectivity(connectCtx); err != nil {
		graph.Close()
		return nil, &ConnectionError{Store: "graph", Err: err}
	}
	if err := graph.EnsureSchema(connectCtx); err != nil {
		graph.Close()
		return nil, &ConnectionError{Store: "graph", Err: fmt.Errorf("failed to ensure schema: %w", err)}
	}
	return graph, nil
}

// OpenResolver builds the embedder, the resolution store and the resolver on
// top of them. The returned closer releases the store and the embedder.
func OpenResolver(cfg *config.Config, logger *slog.Logger) (*resolver.Resolver, io.Closer, error) {
	emb, err := embedder.NewClient(cfg.NLP.Models[config.ModelEmbedding])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	store, err := resolver.NewStore(cfg.Resolver, emb.Dimensions())
	if err != nil {
		emb.Close()
		return nil, nil, &ConnectionError{Store: "resolution", Err: err}
	}

	res, err := resolver.New(store, emb, resolver.Options{
		Threshold: cfg.Resolver.Threshold,
		CacheSize: cfg.Resolver.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		closeAll([]io.Closer{emb, store})
		return nil, nil, err
	}
	return res, closerFunc(func() error {
		return errors.Join(store.Close(), emb.Close())
	}), nil
}

// openModel builds the extraction model client with retry, circuit breaking
// and token accounting.
func openModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (nlp.Client, *nlp.TokenTracker, error) {
	m := cfg.NLP.Models[config.ModelExtraction]
	if m.Temperature != 0 {
		logger.Warn("extraction runs at temperature 0; ignoring configured temperature",
			"temperature", m.Temperature)
		m.Temperature = 0
	}

	client, err := nlp.NewClient(ctx, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extraction model client: %w", err)
	}
	client = nlp.Wrap(client, cfg.Retry, cfg.CircuitBreaker, m.Provider+"/"+m.Model, logger)

	var dir string
	if cfg.Telemetry.Enabled && cfg.Telemetry.ParquetPath != "" {
		dir = filepath.Join(cfg.Telemetry.ParquetPath, "tokens")
	}
	tracker, err := nlp.NewTokenTracker(dir)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return nlp.NewTokenTrackingClient(client, tracker, logger), tracker, nil
}

// Graph returns the graph store the pipeline writes to, or nil when the
// pipeline was assembled with NewPipeline.
func (p *Pipeline) Graph() driver.GraphDriver {
	return p.graph
}

// Resolver returns the entity resolver.
func (p *Pipeline) Resolver() EntityResolver {
	return p.resolver
}

// Ledger returns the chunk ledger, or nil when none is configured.
func (p *Pipeline) Ledger() *checkpoint.Manager {
	return p.ledger
}

// Close releases every store and client the pipeline owns.
func (p *Pipeline) Close() error {
	err := closeAll(p.closers)
	p.closers = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range slices.Backward(closers) {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
