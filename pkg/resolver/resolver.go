package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soundprediction/lorekeeper/pkg/embedder"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

const (
	// DefaultThreshold is the minimum cosine similarity for two names to merge.
	DefaultThreshold = 0.85
	// DefaultCacheSize bounds the raw name memo.
	DefaultCacheSize = 4096
)

// ErrInvalidThreshold is returned for thresholds outside (0, 1].
var ErrInvalidThreshold = errors.New("resolver threshold must be in (0, 1]")

// Options configures a Resolver.
type Options struct {
	// Threshold is the similarity cutoff. Zero means DefaultThreshold.
	Threshold float64
	// CacheSize bounds the raw->canonical memo. Zero means DefaultCacheSize.
	CacheSize int
	Logger    *slog.Logger
}

// Resolver maps raw entity names to canonical names.
type Resolver struct {
	store    Store
	embedder embedder.Client
	maxDist  float64
	cache    *lru.Cache[string, string]
	logger   *slog.Logger

	// mu serializes lookup+register within the process.
	mu sync.Mutex
}

// New creates a resolver over store, embedding names with emb.
// The resolver does not own store or emb.
func New(store Store, emb embedder.Client, opts Options) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("resolver store is required")
	}
	if emb == nil {
		return nil, errors.New("resolver embedder is required")
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, opts.Threshold)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Resolver{
		store:    store,
		embedder: emb,
		maxDist:  1 - opts.Threshold,
		cache:    cache,
		logger:   opts.Logger,
	}, nil
}

// Threshold returns the configured similarity cutoff.
func (r *Resolver) Threshold() float64 {
	return 1 - r.maxDist
}

// Resolve returns the canonical name for raw, registering raw as a new
// canonical name when no stored name is similar enough.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", types.ErrEmptyName
	}
	if canonical, ok := r.cache.Get(raw); ok {
		return canonical, nil
	}

	vec, err := r.embedder.EmbedSingle(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("failed to embed %q: %w", raw, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if canonical, ok := r.cache.Get(raw); ok {
		return canonical, nil
	}

	match, err := r.store.Nearest(ctx, vec)
	if err != nil {
		return "", fmt.Errorf("nearest neighbour lookup for %q failed: %w", raw, err)
	}
	if match != nil && match.Distance < r.maxDist {
		if match.Name != raw {
			r.logger.Debug("resolved entity",
				"raw", raw,
				"canonical", match.Name,
				"distance", match.Distance)
		}
		r.cache.Add(raw, match.Name)
		return match.Name, nil
	}

	created, err := r.store.Register(ctx, raw, vec)
	if err != nil {
		return "", fmt.Errorf("failed to register %q: %w", raw, err)
	}
	if created {
		r.logger.Debug("registered canonical entity", "name", raw)
	}
	r.cache.Add(raw, raw)
	return raw, nil
}

// Lookup returns the canonical name for raw without registering anything.
// The boolean is false when no stored name is similar enough.
func (r *Resolver) Lookup(ctx context.Context, raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, types.ErrEmptyName
	}
	if canonical, ok := r.cache.Get(raw); ok {
		return canonical, true, nil
	}

	vec, err := r.embedder.EmbedSingle(ctx, raw)
	if err != nil {
		return "", false, fmt.Errorf("failed to embed %q: %w", raw, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	match, err := r.store.Nearest(ctx, vec)
	if err != nil {
		return "", false, fmt.Errorf("nearest neighbour lookup for %q failed: %w", raw, err)
	}
	if match == nil || (match.Distance >= r.maxDist && match.Name != raw) {
		return "", false, nil
	}
	return match.Name, true, nil
}

// Len returns the number of canonical names in the store.
func (r *Resolver) Len(ctx context.Context) (int, error) {
	return r.store.Len(ctx)
}
