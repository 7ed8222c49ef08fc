package resolver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	namePrefix       = "name/"
	maxConflictRetry = 5
)

// BadgerStore persists canonical names in a Badger key-value store.
// Vectors are loaded into an in-process index at open; Badger's directory
// lock keeps a second process from opening the same store.
type BadgerStore struct {
	db *badger.DB
	mu sync.RWMutex
	ix *index
}

// NewBadgerStore opens (or creates) a store at path. An empty path opens an
// in-memory store.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %q: %w", path, err)
	}
	s := &BadgerStore{db: db, ix: newIndex()}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) load() error {
	prefix := []byte(namePrefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(prefix):])
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read vector for %q: %w", name, err)
			}
			vec, err := decodeVector(raw)
			if err != nil {
				return fmt.Errorf("corrupt vector for %q: %w", name, err)
			}
			s.ix.add(name, vec)
		}
		return nil
	})
}

func (s *BadgerStore) Nearest(_ context.Context, embedding []float32) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ix.check(embedding); err != nil {
		return nil, err
	}
	return s.ix.nearest(embedding), nil
}

func (s *BadgerStore) Register(ctx context.Context, name string, embedding []float32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ix.check(embedding); err != nil {
		return false, err
	}

	key := []byte(namePrefix + name)
	val := encodeVector(embedding)
	var created bool
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		created = false
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			created = true
			return txn.Set(key, val)
		})
		if err == nil {
			break
		}
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetry {
			continue
		}
		return false, fmt.Errorf("failed to register %q: %w", name, err)
	}

	s.ix.add(name, embedding)
	return created, nil
}

func (s *BadgerStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ix.entries), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 0, 4*len(vec))
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
