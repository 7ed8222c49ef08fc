package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/utils"
)

// ErrDimensionMismatch is returned when an embedding does not match the store width.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Match is the closest stored canonical name and its cosine distance.
type Match struct {
	Name     string
	Distance float64
}

// Store persists canonical names with their embeddings.
type Store interface {
	// Nearest returns the closest canonical name, or nil when the store is empty.
	// Ties are broken by the lexicographically smaller name.
	Nearest(ctx context.Context, embedding []float32) (*Match, error)

	// Register stores name if it is absent. It reports whether the name was added.
	// The insert is atomic: two callers registering the same name see exactly one true.
	Register(ctx context.Context, name string, embedding []float32) (bool, error)

	// Len returns the number of canonical names.
	Len(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// NewStore opens the store selected by cfg.Backend.
func NewStore(cfg config.ResolverConfig, dims int) (Store, error) {
	switch cfg.Backend {
	case "", "badger":
		s, err := NewBadgerStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlitevec":
		s, err := NewSQLiteVecStore(cfg.Path, dims)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown resolver backend %q", cfg.Backend)
	}
}

type entry struct {
	name string
	vec  []float32
}

// index is an exhaustive in-process vector index. Callers synchronize access.
type index struct {
	entries []entry
	names   map[string]struct{}
	dims    int
}

func newIndex() *index {
	return &index{names: make(map[string]struct{})}
}

func (ix *index) check(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	if ix.dims != 0 && len(vec) != ix.dims {
		return fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, len(vec), ix.dims)
	}
	return nil
}

func (ix *index) has(name string) bool {
	_, ok := ix.names[name]
	return ok
}

func (ix *index) add(name string, vec []float32) bool {
	if ix.has(name) {
		return false
	}
	if ix.dims == 0 {
		ix.dims = len(vec)
	}
	ix.names[name] = struct{}{}
	ix.entries = append(ix.entries, entry{name: name, vec: vec})
	return true
}

func (ix *index) nearest(vec []float32) *Match {
	var best *Match
	for _, e := range ix.entries {
		d := utils.CosineDistance(vec, e.vec)
		if best == nil || d < best.Distance || (d == best.Distance && e.name < best.Name) {
			best = &Match{Name: e.name, Distance: d}
		}
	}
	return best
}

// MemoryStore keeps canonical names in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	ix *index
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ix: newIndex()}
}

func (s *MemoryStore) Nearest(_ context.Context, embedding []float32) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ix.check(embedding); err != nil {
		return nil, err
	}
	return s.ix.nearest(embedding), nil
}

func (s *MemoryStore) Register(_ context.Context, name string, embedding []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ix.check(embedding); err != nil {
		return false, err
	}
	return s.ix.add(name, embedding), nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ix.entries), nil
}

func (s *MemoryStore) Close() error { return nil }
